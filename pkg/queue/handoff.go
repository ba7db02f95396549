package queue

import (
	"context"
	"sync"
)

// HandoffQueue is an unbounded FIFO shared by any number of producers and
// consumers. Push never blocks; Pop blocks until an item is available.
//
// With several consumers popping concurrently the order in which items are
// handed out is still FIFO, but the order in which consumers finish their
// work is not, so downstream order is unspecified.
type HandoffQueue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
	head  int
}

func NewHandoffQueue[T any]() *HandoffQueue[T] {
	q := &HandoffQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the tail and wakes one blocked consumer.
func (q *HandoffQueue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until the queue is non-empty, then removes and returns the head.
func (q *HandoffQueue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.lenLocked() == 0 {
		q.cond.Wait()
	}
	return q.takeLocked()
}

// PopContext is Pop that also returns when ctx is done.
func (q *HandoffQueue[T]) PopContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.lenLocked() == 0 {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.cond.Wait()
	}
	return q.takeLocked(), nil
}

// TryPop removes and returns the head if there is one. Unlike checking
// IsEmpty and then calling Pop, the check and the removal are atomic.
func (q *HandoffQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		var zero T
		return zero, false
	}
	return q.takeLocked(), true
}

// IsEmpty is a snapshot; it may be stale as soon as it returns.
func (q *HandoffQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *HandoffQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *HandoffQueue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *HandoffQueue[T]) takeLocked() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}
