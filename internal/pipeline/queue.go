package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// queue is a bounded inbound buffer for one worker. A full queue blocks the
// producer (or rejects on the non-blocking path); it never drops. The
// channel itself is never closed, so a producer racing shutdown gets
// ErrClosed instead of a panic; the worker drains whatever was buffered.
type queue[T any] struct {
	ch   chan T
	done chan struct{}

	closeOnce sync.Once
	received  atomic.Int64
}

func newQueue[T any](capacity int) *queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// send blocks until there is room, the context is done, or the queue closes.
func (q *queue[T]) send(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- item:
		q.received.Add(1)
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend never blocks; a full queue reports ErrOverloaded.
func (q *queue[T]) trySend(item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- item:
		q.received.Add(1)
		return nil
	default:
		return ErrOverloaded
	}
}

// close stops accepting sends. Buffered items remain receivable.
func (q *queue[T]) close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *queue[T]) items() <-chan T { return q.ch }

func (q *queue[T]) closed() <-chan struct{} { return q.done }

func (q *queue[T]) depth() int { return len(q.ch) }
