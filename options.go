package scheduler

import (
	"time"

	"github.com/huandu/go-clone"
)

// QueueSizeExceededStrategy selects the admission-time overflow policy
// applied once MaxQueueSize is reached.
type QueueSizeExceededStrategy int

const (
	QueueSizeThrowError QueueSizeExceededStrategy = iota
	QueueSizeReplace
	QueueSizeReplaceByPriority
)

// TaskExceedsMaxCapacityStrategy selects what happens to a task whose
// requested capacity is larger than MaxCapacity.
type TaskExceedsMaxCapacityStrategy int

const (
	TaskExceedsMaxCapacityThrowError TaskExceedsMaxCapacityStrategy = iota
	TaskExceedsMaxCapacityWaitForFull
)

// Options configures a Scheduler. The zero value is valid and describes
// an unbounded, unlimited, single-priority-default scheduler.
type Options struct {
	MaxCapacity           *float64
	InitiallyUsedCapacity float64
	MaxConcurrent         *int
	MaxQueueSize          *int

	QueueSizeExceededStrategy      QueueSizeExceededStrategy
	TaskExceedsMaxCapacityStrategy TaskExceedsMaxCapacityStrategy
	CapacityStrategy               CapacityStrategy

	ReleaseRules []*ReleaseRule

	QueueWaitingLimit   *time.Duration
	QueueWaitingTimeout *time.Duration
	ExecutionTimeout    *time.Duration

	// MinDelayBetweenTasks enforces a minimum wall-time gap between
	// successive dispatches, regardless of priority or capacity.
	MinDelayBetweenTasks time.Duration

	FailRecoveryStrategy FailRecoveryStrategy

	// ReapplyQueueWaitingTimeoutOnRetry controls whether a retried task
	// is re-subjected to QueueWaitingTimeout on re-admission. By default
	// (false) a retried task is exempt from it. Set true to re-arm the
	// waiting-timeout timer on every retry re-admission instead.
	ReapplyQueueWaitingTimeoutOnRetry bool

	// Observer receives structural lifecycle notifications. It never
	// receives individual task outcomes (those only ever reach the
	// caller via the task's own result channel). Nil disables
	// all observation.
	Observer Observer
}

// Validate checks field combinations for consistency. Errors returned here are
// always *SchedulerError with Type ErrInvalidArgument or ErrInvalidCall.
func (o *Options) Validate() error {
	if o.MaxCapacity != nil && *o.MaxCapacity < 0 {
		return newError(ErrInvalidArgument, "non-negative maxCapacity required")
	}
	if o.MaxCapacity == nil {
		if o.InitiallyUsedCapacity != 0 {
			return newError(ErrInvalidCall, "cannot set used capacity without maxCapacity")
		}
		if len(o.ReleaseRules) > 0 {
			return newError(ErrInvalidArgument, "cannot use releaseRules without maxCapacity")
		}
		if o.CapacityStrategy != CapacityReserve {
			return newError(ErrInvalidArgument, "cannot use capacityStrategy without maxCapacity")
		}
	} else {
		if o.InitiallyUsedCapacity < 0 || o.InitiallyUsedCapacity > *o.MaxCapacity {
			return newError(ErrInvalidArgument, "used-capacity bounds: must be within [0, maxCapacity]")
		}
	}
	for _, r := range o.ReleaseRules {
		if r.Interval <= 0 {
			return newError(ErrInvalidArgument, "release rule interval must be positive")
		}
		if r.Kind == ReleaseReduce && r.Value <= 0 {
			return newError(ErrInvalidArgument, "reduce release rule value must be positive")
		}
		if r.Kind == ReleaseReset && r.Value < 0 {
			return newError(ErrInvalidArgument, "reset release rule value must be non-negative")
		}
	}
	if o.MinDelayBetweenTasks < 0 {
		return newError(ErrInvalidArgument, "non-negative minDelayBetweenTasks required")
	}
	return nil
}

// clone returns a deep copy suitable for both the internal snapshot
// kept by the scheduler and the value returned by GetOptions, so a
// caller mutating the returned Options can never reach into live
// scheduler state.
func (o *Options) clone() *Options {
	return clone.Clone(o).(*Options)
}

func validPriority(p int) bool {
	return p >= 0 && p <= 9
}

const defaultPriority = 5
