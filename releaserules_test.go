package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCatchUpTimeSnapsToGrid(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := 10 * time.Minute

	require.True(t, catchUpTime(base, base, interval).Equal(base))
	require.True(t, catchUpTime(base.Add(25*time.Minute), base, interval).Equal(base.Add(20*time.Minute)))
	require.True(t, catchUpTime(base.Add(9*time.Minute), base, interval).Equal(base))
}

func TestReleaseRuleDriverAppliesSingleResetOnEnable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := &ReleaseRule{Kind: ReleaseReset, Value: 0, Interval: time.Hour}

	d := newReleaseRuleDriver()
	d.setRules([]*ReleaseRule{rule}, base)
	d.disable()

	acct := accountant{maxCapacity: floatPtr(100), usedCapacity: 80}
	later := base.Add(90 * time.Minute) // one full interval missed
	d.enable(later, &acct)

	require.Equal(t, 0.0, acct.usedCapacity)
}

func TestReleaseRuleDriverMultiResetCatchUpPicksLatestWin(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	slow := &ReleaseRule{Kind: ReleaseReset, Value: 10, Interval: time.Hour}
	fast := &ReleaseRule{Kind: ReleaseReset, Value: 50, Interval: 20 * time.Minute}

	d := newReleaseRuleDriver()
	d.setRules([]*ReleaseRule{slow, fast}, base)
	d.disable()

	acct := accountant{maxCapacity: floatPtr(1000), usedCapacity: 999}
	// at 85min, fast's most recent grid point is 80min and slow's is
	// 60min; fast's later catch-up instant wins.
	later := base.Add(85 * time.Minute)
	d.enable(later, &acct)

	require.Equal(t, 50.0, acct.usedCapacity)
}

func TestReleaseRuleDriverReduceFiringsSinceBaseline(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reduce := &ReleaseRule{Kind: ReleaseReduce, Value: 1, Interval: time.Minute}

	d := newReleaseRuleDriver()
	d.setRules([]*ReleaseRule{reduce}, base)
	d.disable()

	acct := accountant{maxCapacity: floatPtr(100), usedCapacity: 10}
	later := base.Add(3*time.Minute + 30*time.Second)
	d.enable(later, &acct)

	require.Equal(t, 7.0, acct.usedCapacity)
}

func TestReleaseRuleDriverApplyFiringAppliesOnceAndRecordsLastApplied(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reduce := &ReleaseRule{Kind: ReleaseReduce, Value: 2, Interval: time.Minute}

	d := newReleaseRuleDriver()
	d.setRules([]*ReleaseRule{reduce}, base)
	acct := accountant{maxCapacity: floatPtr(100), usedCapacity: 10}

	d.applyFiring(reduce, base.Add(time.Minute), &acct)
	require.Equal(t, 8.0, acct.usedCapacity)
	require.True(t, d.state[reduce.id].lastApplied.Equal(base.Add(time.Minute)))
}
