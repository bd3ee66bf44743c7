package pqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intAscending(a, b int) bool { return a < b }

func TestPushKeepsSortedOrder(t *testing.T) {
	q := New(intAscending)
	for _, v := range []int{5, 3, 4, 1, 2} {
		q.Push(v)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, q.ToSlice())
	assert.Equal(t, 5, q.Len())
}

func TestPushStableForEqualPriority(t *testing.T) {
	type item struct {
		key int
		seq int
	}
	q := New(func(a, b item) bool { return a.key < b.key })
	q.Push(item{key: 1, seq: 0})
	q.Push(item{key: 2, seq: 1})
	q.Push(item{key: 1, seq: 2})
	q.Push(item{key: 1, seq: 3})
	q.Push(item{key: 2, seq: 4})

	var got []item
	for _, it := range q.ToSlice() {
		got = append(got, it)
	}
	// Equal keys keep insertion order.
	assert.Equal(t, []item{
		{1, 0}, {1, 2}, {1, 3}, {2, 1}, {2, 4},
	}, got)
}

func TestFromSlice(t *testing.T) {
	q := FromSlice([]int{5, 3, 4, 1, 2}, intAscending)

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 1, front)

	back, ok := q.Back()
	require.True(t, ok)
	assert.Equal(t, 5, back)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, q.ToSlice())
	assert.Equal(t, 5, q.Len())
}

func TestFromSliceDoesNotRetainInput(t *testing.T) {
	input := []int{3, 1, 2}
	q := FromSlice(input, intAscending)
	input[0] = 99
	assert.Equal(t, []int{1, 2, 3}, q.ToSlice())
}

func TestEmptyQueueBehavior(t *testing.T) {
	q := New(intAscending)

	_, ok := q.Front()
	assert.False(t, ok)
	_, ok = q.Back()
	assert.False(t, ok)

	// Popping empty is a no-op, not an error.
	q.Pop()
	assert.Equal(t, 0, q.Len())
}

func TestPopRemovesFront(t *testing.T) {
	q := FromSlice([]int{2, 1, 3}, intAscending)
	q.Pop()
	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 2, front)
	assert.Equal(t, 2, q.Len())
}

func TestClear(t *testing.T) {
	q := FromSlice([]int{2, 1, 3}, intAscending)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok := q.Front()
	assert.False(t, ok)
}

func TestToSliceDoesNotMutate(t *testing.T) {
	q := FromSlice([]int{2, 1}, intAscending)
	_ = q.ToSlice()
	_ = q.ToSlice()
	assert.Equal(t, 2, q.Len())
}
