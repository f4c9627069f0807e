package scheduler

import (
	"math"
	"math/rand"
	"time"
)

// retryTimeout computes the node-retry-compatible backoff for a
// 1-based attempt number:
//
//	timeout = min(maxTimeout, round(randFactor * max(minTimeout,1ms) * factor^(attempt-1)))
//
// randFactor is 1, or uniform in [1,2) when opts.Randomize is set.
func retryTimeout(attempt int, opts RetryOptions) time.Duration {
	minTimeout := opts.MinTimeout
	if minTimeout < time.Millisecond {
		minTimeout = time.Millisecond
	}
	factor := opts.Factor
	if factor <= 0 {
		factor = 2
	}
	randFactor := 1.0
	if opts.Randomize {
		randFactor = 1 + rand.Float64()
	}
	raw := randFactor * float64(minTimeout) * math.Pow(factor, float64(attempt-1))
	timeout := time.Duration(math.Round(raw))
	if opts.MaxTimeout > 0 && timeout > opts.MaxTimeout {
		timeout = opts.MaxTimeout
	}
	return timeout
}

// retryDecision is the outcome of consulting a task's effective
// fail-recovery strategy after a callback error.
type retryDecision struct {
	retry       bool
	after       time.Duration
	finalErr    error // set when retry is false: the error to settle with
	needsCustom bool  // set when the strategy is Custom: caller must invoke the hook out-of-line
}

// decideFailure applies the None and Retry strategies
// directly; Custom is flagged via needsCustom so the scheduler loop can
// invoke the caller's hook without blocking on it.
func decideFailure(attemptIfRetried int, taskErr error, strategy FailRecoveryStrategy) retryDecision {
	switch strategy.Kind {
	case FailRecoveryNone:
		return retryDecision{retry: false, finalErr: taskErr}
	case FailRecoveryCustom:
		return retryDecision{needsCustom: true}
	case FailRecoveryRetry:
		opts := strategy.Retry
		if opts.Retries == 0 && opts.MinTimeout == 0 && opts.Factor == 0 {
			opts = DefaultRetryOptions()
		}
		if attemptIfRetried > opts.Retries {
			return retryDecision{retry: false, finalErr: taskErr}
		}
		return retryDecision{retry: true, after: retryTimeout(attemptIfRetried, opts)}
	default:
		return retryDecision{retry: false, finalErr: taskErr}
	}
}
