package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestAccountantFitsRespectsBothLimits(t *testing.T) {
	a := accountant{maxCapacity: floatPtr(10), maxConcurrent: intPtr(1)}
	small := &task{capacity: 5}
	require.True(t, a.fits(small))

	a.reserve(small)
	other := &task{capacity: 1}
	require.False(t, a.fits(other), "maxConcurrent exhausted")

	a.release(small)
	big := &task{capacity: 11}
	require.False(t, a.fits(big), "exceeds maxCapacity")
}

func TestAccountantReserveReserveStrategyReleasesOnCompletion(t *testing.T) {
	a := accountant{maxCapacity: floatPtr(10), strategy: CapacityReserve}
	tk := &task{capacity: 4}
	a.reserve(tk)
	require.Equal(t, 4.0, a.usedCapacity)

	a.release(tk)
	require.Equal(t, 0.0, a.usedCapacity)
	require.Equal(t, 0.0, tk.reservedCapacity)
}

func TestAccountantClaimStrategyDoesNotReleaseOnCompletion(t *testing.T) {
	a := accountant{maxCapacity: floatPtr(10), strategy: CapacityClaim}
	tk := &task{capacity: 4}
	a.reserve(tk)
	require.Equal(t, 4.0, a.usedCapacity)

	a.release(tk)
	require.Equal(t, 4.0, a.usedCapacity, "claim strategy must not auto-release")
}

func TestAccountantSetUsedCapacityRequiresMaxCapacity(t *testing.T) {
	var a accountant
	err := a.setUsedCapacity(5)
	require.Error(t, err)
	var schedErr *SchedulerError
	require.ErrorAs(t, err, &schedErr)
	require.Equal(t, ErrInvalidCall, schedErr.Type)
}

func TestAccountantSetUsedCapacityBounds(t *testing.T) {
	a := accountant{maxCapacity: floatPtr(10)}
	require.Error(t, a.setUsedCapacity(-1))
	require.Error(t, a.setUsedCapacity(11))
	require.NoError(t, a.setUsedCapacity(7))
	require.Equal(t, 7.0, a.usedCapacity)
}

func TestAccountantAdjustUsedCapacityClamps(t *testing.T) {
	a := accountant{maxCapacity: floatPtr(10), usedCapacity: 5}
	v, err := a.adjustUsedCapacity(-100)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	v, err = a.adjustUsedCapacity(100)
	require.NoError(t, err)
	require.Equal(t, 10.0, v)
}

func TestAccountantApplyReduceFloorsAtZero(t *testing.T) {
	a := accountant{usedCapacity: 5}
	a.applyReduce(2, 10)
	require.Equal(t, 0.0, a.usedCapacity)
}
