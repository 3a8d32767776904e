// Package broadcast は複数の購読者への値の配信を提供する
package broadcast

import "sync"

// Hub は値を複数の購読者に配信する
// 配信はノンブロッキングで、バッファが一杯の購読者はその値を受け取らない
type Hub[T any] struct {
	mu      sync.RWMutex
	clients map[chan T]struct{}
	closed  bool
}

// NewHub は新しいHubを作成する
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		clients: make(map[chan T]struct{}),
	}
}

// Subscribe は値を受け取るチャンネルと購読解除関数を返す
// 購読解除関数は複数回呼び出しても安全
func (h *Hub[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		})
	}

	return ch, cancel
}

// Publish は全購読者に値を送信する
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- v:
		default:
			// バッファが一杯の購読者はスキップ
		}
	}
}

// Len は現在の購読者数を返す
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close は全購読者のチャンネルをクローズし、以降の購読を拒否する
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}
