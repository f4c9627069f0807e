package scheduler

import (
	"container/list"
	"context"
	"time"

	"github.com/google/uuid"
)

// Callback is the caller-supplied unit of work. ctx carries values and
// a deadline propagated from the Schedule call for tracing purposes
// only: the engine never cancels it on timeout or Stop, matching the
// documented "cannot cancel running work" limitation.
type Callback func(ctx context.Context) (any, error)

// Result is what a task's result channel is settled with, exactly once.
// TaskID is the correlation id assigned at admission time, so a caller
// holding several in-flight result channels can tell which task a
// given Result belongs to (e.g. when logging or fanning results back
// into a map keyed by id).
type Result struct {
	TaskID uuid.UUID
	Value  any
	Err    error
}

// newTaskID mints a fresh correlation id for a newly admitted task.
func newTaskID() uuid.UUID {
	return uuid.New()
}

// RetryOptions configures the "retry" fail-recovery strategy, matching
// node-retry's option shape and backoff formula.
type RetryOptions struct {
	Retries     int           // default 10
	MinTimeout  time.Duration // default 1s
	MaxTimeout  time.Duration // default: unbounded (0 means no cap)
	Factor      float64       // default 2
	Randomize   bool          // default false
}

// DefaultRetryOptions returns the alias used when a caller asks for
// FailRecoveryStrategy{Kind: FailRecoveryRetry} without options.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{Retries: 10, MinTimeout: time.Second, Factor: 2}
}

// FailRecoveryKind is the closed set of recovery strategies a failed
// task can consult.
type FailRecoveryKind int

const (
	FailRecoveryNone FailRecoveryKind = iota
	FailRecoveryRetry
	FailRecoveryCustom
)

// RetryDecision is returned by a custom fail-recovery hook: either
// retry after Timeout, or settle with Err (defaulting to the original
// task error if Err is left nil).
type RetryDecision struct {
	Retry   bool
	Timeout time.Duration
	Err     error
}

// CustomFailureHook is invoked on task failure when FailRecoveryCustom
// is in effect. A returned error is surfaced to the caller wrapped as
// ErrOnFailureError (as its Cause), with the original task error
// retained in TaskErr.
type CustomFailureHook func(ctx context.Context, taskErr error, retryAttempt int) (RetryDecision, error)

// FailRecoveryStrategy is a tagged variant: exactly one of Retry or
// OnFailure is consulted, depending on Kind.
type FailRecoveryStrategy struct {
	Kind      FailRecoveryKind
	Retry     RetryOptions
	OnFailure CustomFailureHook
}

// ReleaseRuleKind distinguishes the two periodic capacity-release
// effects.
type ReleaseRuleKind int

const (
	ReleaseReset ReleaseRuleKind = iota
	ReleaseReduce
)

// ReleaseRule is a periodic rule applied against usedCapacity.
// reset sets usedCapacity to Value; reduce subtracts Value*firings,
// floored at zero. Rule identity is the stable id assigned the first
// time a rule is passed to New or SetOptions, not the pointer: a rule
// round-tripped through GetOptions (which deep-clones it) and back
// into SetOptions is still recognized as the same rule, so its
// runtime state (lastApplied, armed timer) survives the round trip.
type ReleaseRule struct {
	Kind     ReleaseRuleKind
	Value    float64       // must be > 0 for reduce; >= 0 for reset (default 0)
	Interval time.Duration // must be > 0

	id uint64
}

// ScheduleParams is the third, most general Schedule shape: a record
// supplying capacity, priority, and per-task overrides of the scheduler
// defaults.
type ScheduleParams struct {
	Capacity float64
	// Priority in [0, 9], lower is more urgent. Zero value 0 is a valid
	// priority, so PriorityUnset distinguishes "use scheduler default".
	Priority            int
	PriorityUnset       bool
	ExecutionTimeout    *time.Duration
	QueueWaitingLimit   *time.Duration
	QueueWaitingTimeout *time.Duration
	FailRecovery        *FailRecoveryStrategy
	Callback            Callback
}

// task is the scheduler-owned, exclusively-held record for one
// admitted unit of work. A caller only ever sees the task's result
// channel; task and its Handle are never handed out.
type task struct {
	handle Handle
	id     uuid.UUID

	capacity float64
	priority int

	timeAdded time.Time
	timeLimit time.Time // zero value means unset

	reservedCapacity   float64
	reservedConcurrent int
	retryAttempt       int
	lastErr            error

	executionTimer    *time.Timer
	queueWaitingTimer *time.Timer
	retryTimer        *time.Timer

	callback Callback
	ctx      context.Context

	executionTimeout       time.Duration // used only when hasExecutionTimeout; otherwise the scheduler default applies
	queueWaitingLimit      time.Duration
	queueWaitingTimeout    time.Duration
	hasExecutionTimeout    bool
	hasQueueWaitingLimit   bool
	hasQueueWaitingTimeout bool
	failRecovery           *FailRecoveryStrategy // nil means "use scheduler default"

	resultCh chan Result
	settled  bool

	// queue membership, for O(1) removal without a secondary index.
	queueElem   *list.Element // in priorityQueue bucket, nil if absent
	queueBucket int
	agingElem   *list.Element // in tasksByTimeAdded, nil if absent
	deadlineIdx int           // index in the deadline heap, -1 if absent
	inQueue     bool
	executing   bool
	retrying    bool
	// awaitingHook is set while a custom fail-recovery hook is running
	// for this task, in its own background goroutine.
	awaitingHook bool
	// agedPromoted is set once promoteAged moves t to the front of the
	// queue because it waited past its queueWaitingLimit. While set, t
	// holds the head of dispatch: if it does not currently fit, nothing
	// else may be dispatched either, so a large aged task cannot be
	// starved by smaller ones jumping ahead of it. Cleared when t leaves
	// the pending indices (dispatched, evicted, or timed out).
	agedPromoted bool
}

// settle delivers a result exactly once. It does not, by itself, free
// the task's arena slot: a task settled while still physically
// executing (Stop's RejectExecutingTasks) must keep its slot alive
// until the real completion event releases capacity, see
// Scheduler.freeIfDone.
func (t *task) settle(value any, err error) {
	if t.settled {
		return
	}
	t.settled = true
	if t.queueWaitingTimer != nil {
		t.queueWaitingTimer.Stop()
	}
	t.resultCh <- Result{TaskID: t.id, Value: value, Err: err}
	close(t.resultCh)
}

// done reports whether t holds no further claim on the scheduler: its
// result is settled and it is not pending, executing, retrying, or
// waiting on a custom hook. Only then is its arena slot safe to free.
func (t *task) done() bool {
	return t.settled && !t.inQueue && !t.executing && !t.retrying && !t.awaitingHook
}

func (t *task) effectiveExecutionTimeout(def time.Duration, defSet bool) (time.Duration, bool) {
	if t.hasExecutionTimeout {
		return t.executionTimeout, true
	}
	return def, defSet
}

func (t *task) effectiveQueueWaitingLimit(def time.Duration, defSet bool) (time.Duration, bool) {
	if t.hasQueueWaitingLimit {
		return t.queueWaitingLimit, true
	}
	return def, defSet
}

func (t *task) effectiveQueueWaitingTimeout(def time.Duration, defSet bool) (time.Duration, bool) {
	if t.hasQueueWaitingTimeout {
		return t.queueWaitingTimeout, true
	}
	return def, defSet
}

func (t *task) effectiveFailRecovery(def FailRecoveryStrategy) FailRecoveryStrategy {
	if t.failRecovery != nil {
		return *t.failRecovery
	}
	return def
}
