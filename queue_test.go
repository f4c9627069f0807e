package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTask(priority int) *task {
	return &task{priority: priority, resultCh: make(chan Result, 1)}
}

func TestPriorityQueueFIFOWithinBand(t *testing.T) {
	var q priorityQueue
	a, b, c := newTestTask(3), newTestTask(3), newTestTask(3)
	q.insert(a)
	q.insert(b)
	q.insert(c)

	require.Equal(t, 3, q.len())
	require.Same(t, a, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, b, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, c, q.pickFirstMatching(func(*task) bool { return true }))
	require.Equal(t, 0, q.len())
}

func TestPriorityQueueOrdersByPriorityThenFIFO(t *testing.T) {
	var q priorityQueue
	low := newTestTask(9)
	high := newTestTask(0)
	mid := newTestTask(5)
	q.insert(low)
	q.insert(high)
	q.insert(mid)

	require.Same(t, high, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, mid, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, low, q.pickFirstMatching(func(*task) bool { return true }))
}

func TestPriorityQueuePickFirstMatchingSkipsNonMatching(t *testing.T) {
	var q priorityQueue
	tooBig := newTestTask(0)
	tooBig.capacity = 100
	fits := newTestTask(5)
	fits.capacity = 1
	q.insert(tooBig)
	q.insert(fits)

	picked := q.pickFirstMatching(func(t *task) bool { return t.capacity <= 10 })
	require.Same(t, fits, picked)
	require.Equal(t, 1, q.len())
}

func TestPriorityQueueRemoveIsIdempotent(t *testing.T) {
	var q priorityQueue
	a := newTestTask(4)
	q.insert(a)
	q.remove(a)
	q.remove(a) // second call must be a no-op, not a panic
	require.Equal(t, 0, q.len())
	require.False(t, a.inQueue)
}

func TestPriorityQueuePeekLast(t *testing.T) {
	var q priorityQueue
	require.Nil(t, q.peekLast())

	first := newTestTask(2)
	second := newTestTask(2)
	worst := newTestTask(9)
	q.insert(first)
	q.insert(second)
	q.insert(worst)

	require.Same(t, worst, q.peekLast())
}

func TestPriorityQueuePeekFirst(t *testing.T) {
	var q priorityQueue
	require.Nil(t, q.peekFirst())

	low := newTestTask(9)
	high := newTestTask(0)
	q.insert(low)
	q.insert(high)

	require.Same(t, high, q.peekFirst())
}

func TestPriorityQueueInsertFrontPreservesPriorityOrder(t *testing.T) {
	var q priorityQueue
	a, b, c := newTestTask(3), newTestTask(3), newTestTask(3)
	q.insert(a)
	q.insert(b)
	q.remove(b)
	// b was picked for dispatch and is being put back: insertFront lands
	// it at the head of its band, ahead of a and of c (admitted after it
	// was first picked), rather than behind c.
	q.insertFront(b)
	q.insert(c)

	require.Same(t, b, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, a, q.pickFirstMatching(func(*task) bool { return true }))
	require.Same(t, c, q.pickFirstMatching(func(*task) bool { return true }))
}
