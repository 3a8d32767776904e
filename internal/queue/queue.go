// Package queue は直列実行キューを提供する
//
// # 責務
// - 投入された関数を投入順に1つのゴルーチンで実行する
// - 呼び出し元をブロックしない非同期投入
// - 安全な停止（残りのタスクを実行してから終了）
//
// # 使い分け
// カメラ操作用のワークキューと、状態遷移を担うメインキュー（UI相当のコンテキスト）の
// 両方にこのパッケージを使用する。
package queue

import (
	"sync"

	"go.uber.org/zap"
)

// Queue は投入された関数を1つのゴルーチン上で順番に実行する
type Queue struct {
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool

	done chan struct{}
}

// New は新しいQueueを作成し、実行ゴルーチンを開始する
func New(name string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		logger: logger.Named(name),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()

	return q
}

// Async は関数をキューに追加する。停止済みの場合は false を返す
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, fn)
	q.cond.Signal()
	return true
}

// Sync は関数をキューに追加し、実行完了まで待機する
// キュー上のタスクから呼び出すとデッドロックする
func (q *Queue) Sync(fn func()) bool {
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}

	<-finished
	return true
}

// Close は新規タスクの受付を停止し、残りのタスクを実行してから終了する
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()

	<-q.done
}

// Done はキューの実行ゴルーチンが終了したときにクローズされるチャンネルを返す
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// run はタスクを順番に実行する
func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}

		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.execute(fn)
	}
}

// execute は1つのタスクを実行する。panicしてもキューは継続する
func (q *Queue) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("タスクの実行中にpanicが発生しました", zap.Any("panic", r))
		}
	}()

	fn()
}
