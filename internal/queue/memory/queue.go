// Package memory provides the in-process FIFO backing the publish queue.
package memory

// Queue is an unbounded FIFO. It is not safe for concurrent use; callers
// serialize access under their own lock.
type Queue[T any] struct {
	items []T
}

// NewQueue constructs an empty queue with room for capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{items: make([]T, 0, capacity)}
}

// Push appends items to the tail.
func (q *Queue[T]) Push(items ...T) {
	q.items = append(q.items, items...)
}

// Pop removes and returns the head. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	return item, true
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Snapshot returns a copy of the queued items in order.
func (q *Queue[T]) Snapshot() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
