package camera

import "sync"

// notificationCenter はバックエンドからのセッション状態通知を購読者に配る
type notificationCenter struct {
	mu        sync.RWMutex
	nextID    int
	observers map[int]func(Notification)
}

// Subscribe は通知の購読を登録し、解除関数を返す
func (c *notificationCenter) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observers == nil {
		c.observers = make(map[int]func(Notification))
	}
	id := c.nextID
	c.nextID++
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// post は全購読者に通知する
func (c *notificationCenter) post(n Notification) {
	c.mu.RLock()
	fns := make([]func(Notification), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
}

// subscribers は現在の購読者数を返す
func (c *notificationCenter) subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers)
}
