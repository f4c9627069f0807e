package scheduler

import "fmt"

// ErrorType classifies a SchedulerError, mirroring the closed set of
// error bands described by the engine: synchronous misuse, recoverable
// task failures, and engine-initiated failures.
type ErrorType int

const (
	// ErrInvalidArgument marks a synchronously rejected bad argument
	// (negative capacity, out-of-range priority, negative maxCapacity, ...).
	ErrInvalidArgument ErrorType = iota
	// ErrInvalidCall marks a synchronously rejected call that is
	// structurally disallowed given current configuration (e.g.
	// adjusting capacity when no maxCapacity is configured).
	ErrInvalidCall
	// ErrMaxCapacityExceeded is returned when a task's capacity exceeds
	// maxCapacity and TaskExceedsMaxCapacityStrategy is ThrowError.
	ErrMaxCapacityExceeded
	// ErrQueueSizeExceeded settles a task evicted or rejected by the
	// queue-overflow policy.
	ErrQueueSizeExceeded
	// ErrQueueTimeout settles a task that waited past QueueWaitingTimeout.
	ErrQueueTimeout
	// ErrExecutionTimeout settles a task whose execution timer fired
	// before the callback returned. The callback is not cancelled.
	ErrExecutionTimeout
	// ErrOnFailureError wraps an error raised by a custom fail-recovery
	// hook (as Cause), with the original task error retained in TaskErr.
	ErrOnFailureError
	// ErrStopped settles a task because the scheduler is stopped, or
	// because Stop was asked to reject it.
	ErrStopped
)

func (t ErrorType) String() string {
	switch t {
	case ErrInvalidArgument:
		return "invalid-argument"
	case ErrInvalidCall:
		return "invalid-call"
	case ErrMaxCapacityExceeded:
		return "max-capacity-exceeded"
	case ErrQueueSizeExceeded:
		return "queue-size-exceeded"
	case ErrQueueTimeout:
		return "queue-timeout"
	case ErrExecutionTimeout:
		return "execution-timeout"
	case ErrOnFailureError:
		return "on-failure-error"
	case ErrStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SchedulerError is the single tagged error type returned by every
// scheduler operation, synchronously or via a task's result channel.
type SchedulerError struct {
	Type    ErrorType
	Message string
	Cause   error
	// TaskErr is set only for ErrOnFailureError: the original task
	// error, retained alongside the custom hook's own error (Cause).
	TaskErr error
}

func newError(t ErrorType, format string, args ...any) *SchedulerError {
	return &SchedulerError{Type: t, Message: fmt.Sprintf(format, args...)}
}

func (e *SchedulerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scheduler: %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("scheduler: %s: %s", e.Type, e.Message)
}

func (e *SchedulerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *SchedulerError of the same ErrorType,
// so callers can write errors.Is(err, &SchedulerError{Type: ErrStopped}).
func (e *SchedulerError) Is(target error) bool {
	other, ok := target.(*SchedulerError)
	if !ok {
		return false
	}
	return e.Type == other.Type
}
