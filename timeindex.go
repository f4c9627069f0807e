package scheduler

import (
	"container/heap"
	"container/list"
	"time"
)

// agingIndex is the FIFO-by-admission-time index ("Time-ageing
// index"): same membership as the priority queue, ordered purely by
// timeAdded, used by queue-overflow's "replace" policy to find the
// oldest pending task in O(1).
type agingIndex struct {
	l list.List
}

func (a *agingIndex) insert(t *task) {
	t.agingElem = a.l.PushBack(t)
}

func (a *agingIndex) remove(t *task) {
	if t.agingElem == nil {
		return
	}
	a.l.Remove(t.agingElem)
	t.agingElem = nil
}

// oldest returns the head of the FIFO (earliest timeAdded) or nil.
func (a *agingIndex) oldest() *task {
	if e := a.l.Front(); e != nil {
		return e.Value.(*task)
	}
	return nil
}

// deadlineHeap is a container/heap.Interface ordering tasks by
// timeLimit, ascending (earliest deadline first).
type deadlineHeap []*task

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	return h[i].timeLimit.Before(h[j].timeLimit)
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].deadlineIdx = i
	h[j].deadlineIdx = j
}
func (h *deadlineHeap) Push(x any) {
	t := x.(*task)
	t.deadlineIdx = len(*h)
	*h = append(*h, t)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.deadlineIdx = -1
	*h = old[:n-1]
	return t
}

// deadlineIndex is the deadline-ordered index: membership is
// exactly the pending tasks whose timeLimit is set.
type deadlineIndex struct {
	h deadlineHeap
}

func (d *deadlineIndex) insert(t *task) {
	heap.Push(&d.h, t)
}

func (d *deadlineIndex) remove(t *task) {
	if t.deadlineIdx < 0 || t.deadlineIdx >= len(d.h) {
		return
	}
	heap.Remove(&d.h, t.deadlineIdx)
}

// peekFirst returns the task with the earliest timeLimit, or nil.
func (d *deadlineIndex) peekFirst() *task {
	if len(d.h) == 0 {
		return nil
	}
	return d.h[0]
}

// aged returns the earliest-deadline task if its timeLimit has already
// elapsed at now, or nil otherwise.
func (d *deadlineIndex) aged(now time.Time) *task {
	t := d.peekFirst()
	if t == nil {
		return nil
	}
	if t.timeLimit.After(now) {
		return nil
	}
	return t
}
