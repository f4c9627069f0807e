package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryTimeoutFormula(t *testing.T) {
	opts := RetryOptions{MinTimeout: 50 * time.Millisecond, Factor: 1}
	require.Equal(t, 50*time.Millisecond, retryTimeout(1, opts))
	require.Equal(t, 50*time.Millisecond, retryTimeout(2, opts))
	require.Equal(t, 50*time.Millisecond, retryTimeout(3, opts))
}

func TestRetryTimeoutFactorGrowsExponentially(t *testing.T) {
	opts := RetryOptions{MinTimeout: 100 * time.Millisecond, Factor: 2}
	require.Equal(t, 100*time.Millisecond, retryTimeout(1, opts))
	require.Equal(t, 200*time.Millisecond, retryTimeout(2, opts))
	require.Equal(t, 400*time.Millisecond, retryTimeout(3, opts))
}

func TestRetryTimeoutRespectsMaxTimeout(t *testing.T) {
	opts := RetryOptions{MinTimeout: 100 * time.Millisecond, Factor: 2, MaxTimeout: 250 * time.Millisecond}
	require.Equal(t, 200*time.Millisecond, retryTimeout(2, opts))
	require.Equal(t, 250*time.Millisecond, retryTimeout(3, opts))
}

func TestDecideFailureNoneSettlesImmediately(t *testing.T) {
	taskErr := errors.New("boom")
	d := decideFailure(1, taskErr, FailRecoveryStrategy{Kind: FailRecoveryNone})
	require.False(t, d.retry)
	require.Equal(t, taskErr, d.finalErr)
}

func TestDecideFailureRetryStopsAfterConfiguredAttempts(t *testing.T) {
	taskErr := errors.New("boom")
	strategy := FailRecoveryStrategy{Kind: FailRecoveryRetry, Retry: RetryOptions{Retries: 2, MinTimeout: time.Millisecond, Factor: 1}}

	d1 := decideFailure(1, taskErr, strategy)
	require.True(t, d1.retry)
	d2 := decideFailure(2, taskErr, strategy)
	require.True(t, d2.retry)
	d3 := decideFailure(3, taskErr, strategy)
	require.False(t, d3.retry)
	require.Equal(t, taskErr, d3.finalErr)
}

func TestDecideFailureCustomDefersToHook(t *testing.T) {
	d := decideFailure(1, errors.New("boom"), FailRecoveryStrategy{Kind: FailRecoveryCustom})
	require.True(t, d.needsCustom)
}
