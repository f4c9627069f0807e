// Package scheduler implements a single-process asynchronous task
// scheduler that admits caller-supplied units of work and decides, for
// each, when it may run under a set of resource and timing constraints.
//
// Use case
//
// The resource the scheduler multiplexes, "capacity", is an
// uninterpreted non-negative quantity chosen by the caller: memory
// pages, API tokens, concurrent connection slots, CPU hogs. Tasks carry
// a capacity cost and a priority, and the scheduler admits as many as
// currently fit, honoring priority order, FIFO order within a priority
// band, ageing (a waiting task eventually jumps the queue), per-task
// and global timeouts, retry policies on failure, and periodic
// capacity-release rules.
//
// Concurrency model
//
// All scheduler state is owned by a single internal goroutine that
// processes one command at a time from an unbuffered channel:
// admissions, reconfiguration, manual capacity mutations, Stop, and
// every timer firing or task completion are all commands. This gives
// the scheduling step single-threaded cooperative semantics without
// needing a lock around it.
//
// Cancellation
//
// The engine can cancel waiting tasks cleanly (timers, queue
// membership). It cannot cancel a running callback: once dispatched,
// the underlying work runs to its natural end and the engine merely
// disowns the result on timeout or Stop.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler multiplexes tasks over a configurable capacity budget. Use
// New to construct one; the zero value is not usable.
type Scheduler struct {
	cmds chan any

	// loop-owned state: touched only by the run goroutine.
	arena       arena
	queue       priorityQueue
	aging       agingIndex
	deadlines   deadlineIndex
	acct        accountant
	rules       *releaseRuleDriver
	executing   map[Handle]*task
	retrying    map[Handle]*task
	hooks       map[Handle]*task
	opts        Options
	stopped     bool
	stopWaiters []chan struct{}

	agingTimer      *time.Timer
	minDelayLimiter *rate.Limiter
}

// observer returns the active Observer, or nil if none is configured.
func (s *Scheduler) observer() Observer {
	return s.opts.Observer
}

// New constructs and starts a Scheduler. It validates opts
// and returns an error synchronously if they are invalid.
func New(opts Options) (*Scheduler, error) {
	o := opts
	if err := o.Validate(); err != nil {
		return nil, err
	}
	assignRuleIDs(o.ReleaseRules)
	s := &Scheduler{
		cmds:      make(chan any),
		executing: make(map[Handle]*task),
		retrying:  make(map[Handle]*task),
		hooks:     make(map[Handle]*task),
		rules:     newReleaseRuleDriver(),
		opts:      *o.clone(),
		deadlines: deadlineIndex{h: deadlineHeap{}},
	}
	s.acct = accountant{
		maxCapacity:   o.MaxCapacity,
		maxConcurrent: o.MaxConcurrent,
		strategy:      o.CapacityStrategy,
		usedCapacity:  o.InitiallyUsedCapacity,
	}
	if o.MinDelayBetweenTasks > 0 {
		s.minDelayLimiter = newMinDelayLimiter(o.MinDelayBetweenTasks)
	}
	s.rules.fire = func(r *ReleaseRule) { s.cmds <- cmdReleaseRuleFire{rule: r} }
	s.rules.onCatchUp = func(r *ReleaseRule, used float64) {
		if ob := s.observer(); ob != nil {
			ob.OnReleaseRuleCatchUp(r, used)
		}
	}
	s.rules.setRules(o.ReleaseRules, time.Now())

	if s.opts.Observer != nil {
		s.opts.Observer.OnStarted(*s.opts.clone())
	}

	go s.run()
	return s, nil
}

// ---- command types ----

type cmdSchedule struct{ t *task }

type cmdSetOptions struct {
	opts *Options
	resp chan error
}

type cmdGetOptions struct{ resp chan *Options }

type cmdSetUsedCapacity struct {
	n    float64
	resp chan error
}

type cmdAdjustUsedCapacity struct {
	delta float64
	resp  chan adjustResult
}

type adjustResult struct {
	value float64
	err   error
}

type cmdGetUsedCapacity struct{ resp chan float64 }

type cmdStop struct {
	params StopParams
	done   chan struct{}
}

type cmdTaskCompleted struct {
	handle Handle
	value  any
}

type cmdTaskFailed struct {
	handle Handle
	err    error
}

type cmdExecutionTimeout struct{ handle Handle }

type cmdQueueTimeout struct{ handle Handle }

type cmdRetryFire struct{ handle Handle }

type cmdReleaseRuleFire struct{ rule *ReleaseRule }

type cmdCustomHookResult struct {
	handle   Handle
	decision RetryDecision
	hookErr  error
}

type cmdPing struct{}

// ---- public API ----

// Schedule admits fn with default capacity 1 and default priority.
func (s *Scheduler) Schedule(ctx context.Context, fn Callback) (<-chan Result, error) {
	return s.ScheduleParams(ctx, ScheduleParams{Capacity: 1, PriorityUnset: true, Callback: fn})
}

// ScheduleCapacity admits fn with the given capacity and default priority.
func (s *Scheduler) ScheduleCapacity(ctx context.Context, capacity float64, fn Callback) (<-chan Result, error) {
	return s.ScheduleParams(ctx, ScheduleParams{Capacity: capacity, PriorityUnset: true, Callback: fn})
}

// ScheduleParams is the general admission entry point: capacity,
// priority, and per-task overrides of the scheduler's defaults.
func (s *Scheduler) ScheduleParams(ctx context.Context, p ScheduleParams) (<-chan Result, error) {
	priority := defaultPriority
	if !p.PriorityUnset {
		priority = p.Priority
	}
	if p.Capacity < 0 {
		return nil, newError(ErrInvalidArgument, "non-negative task capacity required")
	}
	if !validPriority(priority) {
		return nil, newError(ErrInvalidArgument, "priority must be in 0..9")
	}

	t := &task{
		id:           newTaskID(),
		capacity:     p.Capacity,
		priority:     priority,
		timeAdded:    time.Now(),
		callback:     p.Callback,
		ctx:          ctx,
		resultCh:     make(chan Result, 1),
		deadlineIdx:  -1,
		failRecovery: p.FailRecovery,
	}
	if p.ExecutionTimeout != nil {
		t.hasExecutionTimeout, t.executionTimeout = true, *p.ExecutionTimeout
	}
	if p.QueueWaitingLimit != nil {
		t.hasQueueWaitingLimit, t.queueWaitingLimit = true, *p.QueueWaitingLimit
	}
	if p.QueueWaitingTimeout != nil {
		t.hasQueueWaitingTimeout, t.queueWaitingTimeout = true, *p.QueueWaitingTimeout
	}

	// t.handle is assigned by the loop goroutine inside admitTask: the
	// arena is loop-owned state and must never be touched from the
	// caller's goroutine.
	select {
	case s.cmds <- cmdSchedule{t: t}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.resultCh, nil
}

// Wrap returns a callable forwarding through ScheduleParams, for callers
// that want to pass a schedule-and-run closure around as a value.
func (s *Scheduler) Wrap(p ScheduleParams) func(ctx context.Context) (<-chan Result, error) {
	return func(ctx context.Context) (<-chan Result, error) {
		return s.ScheduleParams(ctx, p)
	}
}

// GetOptions returns a deep copy of the active configuration.
func (s *Scheduler) GetOptions() Options {
	resp := make(chan *Options, 1)
	s.cmds <- cmdGetOptions{resp: resp}
	return *<-resp
}

// SetOptions validates and applies new configuration. It never
// disturbs already-pending, executing, or retrying tasks, beyond the
// effect the new limits have on future admission scans.
func (s *Scheduler) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	resp := make(chan error, 1)
	s.cmds <- cmdSetOptions{opts: &opts, resp: resp}
	return <-resp
}

// GetUsedCapacity returns usedCapacity, applying any pending
// release-rule catch-up first.
func (s *Scheduler) GetUsedCapacity() float64 {
	resp := make(chan float64, 1)
	s.cmds <- cmdGetUsedCapacity{resp: resp}
	return <-resp
}

// SetUsedCapacity sets usedCapacity absolutely; requires maxCapacity to
// be configured and 0 <= n <= maxCapacity.
func (s *Scheduler) SetUsedCapacity(n float64) error {
	resp := make(chan error, 1)
	s.cmds <- cmdSetUsedCapacity{n: n, resp: resp}
	return <-resp
}

// AdjustUsedCapacity applies usedCapacity += delta, clamped to
// [0, maxCapacity], and pings the loop.
func (s *Scheduler) AdjustUsedCapacity(delta float64) (float64, error) {
	resp := make(chan adjustResult, 1)
	s.cmds <- cmdAdjustUsedCapacity{delta: delta, resp: resp}
	r := <-resp
	return r.value, r.err
}

// Stop begins (or continues) an orderly shutdown and blocks until every
// remaining queued, executing, and retrying task has settled, or ctx is
// done. Stopping an already-stopped scheduler is a no-op beyond
// applying any newly requested StopParams.
func (s *Scheduler) Stop(ctx context.Context, params StopParams) error {
	done := make(chan struct{})
	s.cmds <- cmdStop{params: params.normalize(), done: done}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
