// Package pqueue provides a small comparator-ordered queue used for
// time-ordered pending task invocations. It is tuned for tens of elements:
// insertion is O(log n) search plus a slice shift, front/back access is O(1).
package pqueue

import (
	"slices"
	"sort"
)

// Less reports whether a orders before b.
type Less[T any] func(a, b T) bool

// Queue keeps its elements sorted by the comparator given at construction.
// Elements that compare equal keep their insertion order.
type Queue[T any] struct {
	items []T
	less  Less[T]
}

// New returns an empty queue ordered by less.
func New[T any](less Less[T]) *Queue[T] {
	return &Queue[T]{less: less}
}

// FromSlice builds a queue from an existing slice with a single stable sort,
// rather than n individual insertions. The input slice is not retained.
func FromSlice[T any](items []T, less Less[T]) *Queue[T] {
	q := &Queue[T]{
		items: slices.Clone(items),
		less:  less,
	}
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.less(q.items[i], q.items[j])
	})
	return q
}

// Push inserts v before the first element that orders strictly after it,
// so equal-priority elements run in the order they were pushed.
func (q *Queue[T]) Push(v T) {
	i := sort.Search(len(q.items), func(i int) bool {
		return q.less(v, q.items[i])
	})
	q.items = slices.Insert(q.items, i, v)
}

// Front returns the minimum element. The second return is false when the
// queue is empty.
func (q *Queue[T]) Front() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Back returns the maximum element. The second return is false when the
// queue is empty.
func (q *Queue[T]) Back() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[len(q.items)-1], true
}

// Pop removes the front element. Popping an empty queue is a no-op.
func (q *Queue[T]) Pop() {
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

// Clear removes every element.
func (q *Queue[T]) Clear() {
	q.items = nil
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// ToSlice returns the elements in priority order without mutating the queue.
func (q *Queue[T]) ToSlice() []T {
	return slices.Clone(q.items)
}
