package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgingIndexOldestIsFIFO(t *testing.T) {
	var a agingIndex
	require.Nil(t, a.oldest())

	t1, t2, t3 := newTestTask(0), newTestTask(0), newTestTask(0)
	a.insert(t1)
	a.insert(t2)
	a.insert(t3)
	require.Same(t, t1, a.oldest())

	a.remove(t1)
	require.Same(t, t2, a.oldest())

	a.remove(t2)
	a.remove(t2) // idempotent
	require.Same(t, t3, a.oldest())
}

func TestDeadlineIndexOrdersByTimeLimitAscending(t *testing.T) {
	var d deadlineIndex
	now := time.Now()

	late := newTestTask(0)
	late.timeLimit = now.Add(time.Hour)
	soon := newTestTask(0)
	soon.timeLimit = now.Add(time.Minute)
	soonest := newTestTask(0)
	soonest.timeLimit = now.Add(time.Second)

	d.insert(late)
	d.insert(soon)
	d.insert(soonest)

	require.Same(t, soonest, d.peekFirst())

	d.remove(soonest)
	require.Same(t, soon, d.peekFirst())

	d.remove(soon)
	require.Same(t, late, d.peekFirst())
}

func TestDeadlineIndexAged(t *testing.T) {
	var d deadlineIndex
	now := time.Now()

	future := newTestTask(0)
	future.timeLimit = now.Add(time.Hour)
	d.insert(future)
	require.Nil(t, d.aged(now))

	past := newTestTask(0)
	past.timeLimit = now.Add(-time.Second)
	d.insert(past)
	require.Same(t, past, d.aged(now))
}
