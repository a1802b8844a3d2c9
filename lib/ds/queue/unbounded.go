package queue

import (
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

// Unbounded is a concurrent queue without a capacity bound.
// Push never blocks, so producers can never be stalled by consumers.
// The flip side is that a slow consumer lets the queue grow without
// limit; callers are expected to bound their own intake instead.
type Unbounded[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	inner  *NaiveQueue[T]
	closed bool
}

func NewUnbounded[T any]() *Unbounded[T] {
	q := &Unbounded[T]{inner: NewNaive[T](0)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v to the queue. It returns [ErrQueueClosed] if the
// queue has been closed.
func (q *Unbounded[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.inner.Enqueue(v)
	q.cond.Signal()

	return nil
}

// Recv blocks until an element is available and removes it.
// After Close, Recv keeps returning queued elements until the queue
// is empty, then returns [ErrQueueClosed].
func (q *Unbounded[T]) Recv() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.inner.Len() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.inner.Len() > 0 {
		return q.inner.Dequeue()
	}

	var zero T
	return zero, ErrQueueClosed
}

// TryDequeue removes the front element without blocking.
// It returns [ErrQueueEmpty] when nothing is currently queued.
func (q *Unbounded[T]) TryDequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inner.Len() == 0 {
		var zero T
		if q.closed {
			return zero, ErrQueueClosed
		}
		return zero, ErrQueueEmpty
	}

	return q.inner.Dequeue()
}

func (q *Unbounded[T]) Len() uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inner.Len()
}

// Close marks the queue closed and wakes all blocked receivers.
// Already-queued elements remain receivable. Close is idempotent.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.cond.Broadcast()
}
