package scheduler

import (
	"time"

	"golang.org/x/time/rate"
)

// run is the single goroutine that owns every piece of scheduler state.
// It processes one command at a time and, after each one, re-derives
// the three things a command may have invalidated: which tasks have
// aged past their queueWaitingLimit, when the next ageing check is
// due, and whether anything newly fits within capacity.
func (s *Scheduler) run() {
	for cmd := range s.cmds {
		now := time.Now()
		switch c := cmd.(type) {
		case cmdSchedule:
			s.admitTask(c.t, now)

		case cmdSetOptions:
			s.applySetOptions(c, now)

		case cmdGetOptions:
			c.resp <- s.opts.clone()

		case cmdSetUsedCapacity:
			c.resp <- s.acct.setUsedCapacity(c.n)

		case cmdAdjustUsedCapacity:
			v, err := s.acct.adjustUsedCapacity(c.delta)
			c.resp <- adjustResult{value: v, err: err}

		case cmdGetUsedCapacity:
			if !s.rules.enabled && s.queue.len() == 0 {
				s.rules.enable(now, &s.acct)
				s.rules.disable()
			}
			c.resp <- s.acct.usedCapacity

		case cmdStop:
			s.applyStop(c, now)

		case cmdTaskCompleted:
			s.handleTaskCompleted(c, now)

		case cmdTaskFailed:
			s.handleTaskFailed(c, now)

		case cmdExecutionTimeout:
			s.handleExecutionTimeout(c)

		case cmdQueueTimeout:
			s.handleQueueTimeout(c)

		case cmdRetryFire:
			s.handleRetryFire(c, now)

		case cmdReleaseRuleFire:
			s.rules.applyFiring(c.rule, now, &s.acct)

		case cmdCustomHookResult:
			s.handleCustomHookResult(c, now)

		case cmdPing:
			// no-op: exists only to wake the loop for the common
			// post-processing below (ageing check, dispatch retry).
		}

		s.promoteAged(now)
		s.rearmAgingTimer(now)
		s.dispatchPending(now)
		s.maybeFinishStop()
	}
}

// freeIfDone frees t's arena slot once it holds no further claim on the
// scheduler (settled, and not queued, executing, retrying, or awaiting
// a custom hook).
func (s *Scheduler) freeIfDone(t *task) {
	if t.done() {
		s.arena.free(t.handle)
	}
}

// ---- admission ----

func (s *Scheduler) admitTask(t *task, now time.Time) {
	s.arena.alloc(t)

	if s.stopped {
		t.settle(nil, newError(ErrStopped, "scheduler is stopped"))
		s.freeIfDone(t)
		return
	}

	if s.acct.maxCapacity != nil && t.capacity > *s.acct.maxCapacity {
		switch s.opts.TaskExceedsMaxCapacityStrategy {
		case TaskExceedsMaxCapacityThrowError:
			t.settle(nil, newError(ErrMaxCapacityExceeded, "task capacity %v exceeds maxCapacity %v", t.capacity, *s.acct.maxCapacity))
			s.freeIfDone(t)
			return
		case TaskExceedsMaxCapacityWaitForFull:
			// Clamped to maxCapacity: the task is admitted and waits
			// until the whole capacity is free.
			t.capacity = *s.acct.maxCapacity
		}
	}

	if s.opts.MaxQueueSize != nil && s.queue.len() >= *s.opts.MaxQueueSize {
		if !s.admitOverflow(t) {
			return
		}
	}

	s.enqueue(t, now, true)
}

// admitOverflow applies the queue-size-exceeded policy. It returns
// false if t itself was rejected and must not be enqueued.
func (s *Scheduler) admitOverflow(t *task) bool {
	switch s.opts.QueueSizeExceededStrategy {
	case QueueSizeReplace:
		if oldest := s.aging.oldest(); oldest != nil {
			s.evict(oldest)
		}
		return true
	case QueueSizeReplaceByPriority:
		victim := s.queue.peekLast()
		if victim == nil || victim.priority <= t.priority {
			t.settle(nil, newError(ErrQueueSizeExceeded, "queue is full"))
			s.freeIfDone(t)
			return false
		}
		s.evict(victim)
		return true
	default: // QueueSizeThrowError
		t.settle(nil, newError(ErrQueueSizeExceeded, "queue is full"))
		s.freeIfDone(t)
		return false
	}
}

// evict forcibly settles a currently-queued task to make room for a
// new admission.
func (s *Scheduler) evict(t *task) {
	s.removeFromPendingIndices(t)
	t.settle(nil, newError(ErrQueueSizeExceeded, "evicted to admit another task"))
	s.freeIfDone(t)
}

// enqueue places t in every pending-task index and arms whichever
// waiting timers its effective options call for. applyTimeout gates
// QueueWaitingTimeout specifically, so a retry re-admission can honor
// Options.ReapplyQueueWaitingTimeoutOnRetry.
func (s *Scheduler) enqueue(t *task, now time.Time, applyTimeout bool) {
	s.queue.insert(t)
	s.aging.insert(t)
	if s.queue.len() == 1 {
		s.rules.enable(now, &s.acct)
	}

	if limit, ok := t.effectiveQueueWaitingLimit(s.queueWaitingLimitDefault()); ok && limit > 0 {
		t.timeLimit = now.Add(limit)
		s.deadlines.insert(t)
	}

	if applyTimeout {
		if timeout, ok := t.effectiveQueueWaitingTimeout(s.queueWaitingTimeoutDefault()); ok && timeout > 0 {
			h := t.handle
			t.queueWaitingTimer = time.AfterFunc(timeout, func() { s.cmds <- cmdQueueTimeout{handle: h} })
		}
	}
}

func (s *Scheduler) queueWaitingLimitDefault() (time.Duration, bool) {
	if s.opts.QueueWaitingLimit != nil {
		return *s.opts.QueueWaitingLimit, true
	}
	return 0, false
}

func (s *Scheduler) queueWaitingTimeoutDefault() (time.Duration, bool) {
	if s.opts.QueueWaitingTimeout != nil {
		return *s.opts.QueueWaitingTimeout, true
	}
	return 0, false
}

func (s *Scheduler) executionTimeoutDefault() (time.Duration, bool) {
	if s.opts.ExecutionTimeout != nil {
		return *s.opts.ExecutionTimeout, true
	}
	return 0, false
}

// removeFromPendingIndices clears every pending-index membership for t
// and disables the release-rule driver if the queue just went empty.
// Idempotent: safe to call on a task already removed from some indices.
func (s *Scheduler) removeFromPendingIndices(t *task) {
	s.queue.remove(t)
	s.aging.remove(t)
	s.deadlines.remove(t)
	t.timeLimit = time.Time{}
	t.agedPromoted = false
	if t.queueWaitingTimer != nil {
		t.queueWaitingTimer.Stop()
		t.queueWaitingTimer = nil
	}
	if s.queue.len() == 0 {
		s.rules.disable()
	}
}

// ---- ageing / promotion ----

// promoteAged boosts every pending task whose queueWaitingLimit has
// elapsed to the highest priority band and to the very front of the
// queue, a one-shot effect: once promoted a task no longer carries a
// deadline. A promoted task stays marked agedPromoted until dispatched
// or otherwise removed, so dispatchPending can block behind it rather
// than let smaller tasks jump ahead (see dispatchPending).
func (s *Scheduler) promoteAged(now time.Time) {
	var aged []*task
	for {
		t := s.deadlines.aged(now)
		if t == nil {
			break
		}
		s.deadlines.remove(t)
		t.timeLimit = time.Time{}
		aged = append(aged, t)
	}
	// s.deadlines.aged returns tasks earliest-deadline first; inserting
	// in reverse order leaves the earliest-deadline task at the true
	// front of the queue.
	for i := len(aged) - 1; i >= 0; i-- {
		t := aged[i]
		s.queue.remove(t)
		t.priority = 0
		t.agedPromoted = true
		s.queue.insertFront(t)
	}
}

func (s *Scheduler) rearmAgingTimer(now time.Time) {
	if s.agingTimer != nil {
		s.agingTimer.Stop()
		s.agingTimer = nil
	}
	t := s.deadlines.peekFirst()
	if t == nil {
		return
	}
	d := t.timeLimit.Sub(now)
	if d < 0 {
		d = 0
	}
	s.agingTimer = time.AfterFunc(d, func() { s.cmds <- cmdPing{} })
}

// ---- dispatch ----

func newMinDelayLimiter(d time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(d), 1)
}

func (s *Scheduler) dispatchPending(now time.Time) {
	for {
		if head := s.queue.peekFirst(); head != nil && head.agedPromoted && !s.acct.fits(head) {
			// The aged task at the head of the queue does not currently
			// fit: block all dispatch until it does, rather than let a
			// smaller, lower-priority task jump ahead of it and starve
			// it indefinitely.
			return
		}
		t := s.queue.pickFirstMatching(s.acct.fits)
		if t == nil {
			return
		}
		if s.minDelayLimiter != nil {
			r := s.minDelayLimiter.Reserve()
			if !r.OK() {
				s.dispatchTask(t, now)
				continue
			}
			if d := r.Delay(); d > 0 {
				r.Cancel()
				// put t back at the head of its priority band and retry
				// once the minimum delay has elapsed, preserving FIFO
				// order among equal-priority tasks.
				s.queue.insertFront(t)
				time.AfterFunc(d, func() { s.cmds <- cmdPing{} })
				return
			}
		}
		s.dispatchTask(t, now)
	}
}

func (s *Scheduler) dispatchTask(t *task, now time.Time) {
	s.removeFromPendingIndices(t)
	s.acct.reserve(t)
	t.executing = true
	s.executing[t.handle] = t

	if to, ok := t.effectiveExecutionTimeout(s.executionTimeoutDefault()); ok && to > 0 {
		h := t.handle
		t.executionTimer = time.AfterFunc(to, func() { s.cmds <- cmdExecutionTimeout{handle: h} })
	}

	go s.runCallback(t)
}

func (s *Scheduler) runCallback(t *task) {
	value, err := t.callback(t.ctx)
	if err != nil {
		s.cmds <- cmdTaskFailed{handle: t.handle, err: err}
	} else {
		s.cmds <- cmdTaskCompleted{handle: t.handle, value: value}
	}
}

// ---- completion / failure / retry ----

func (s *Scheduler) handleTaskCompleted(c cmdTaskCompleted, now time.Time) {
	t := s.arena.get(c.handle)
	if t == nil {
		return
	}
	s.releaseExecuting(t)
	t.settle(c.value, nil)
	s.freeIfDone(t)
}

func (s *Scheduler) handleTaskFailed(c cmdTaskFailed, now time.Time) {
	t := s.arena.get(c.handle)
	if t == nil {
		return
	}
	s.releaseExecuting(t)

	if t.settled {
		// already settled, e.g. by Stop's RejectExecutingTasks: the
		// real outcome only gets to release resources, never to decide
		// retry.
		s.freeIfDone(t)
		return
	}

	t.lastErr = c.err
	strategy := t.effectiveFailRecovery(s.opts.FailRecoveryStrategy)
	decision := decideFailure(t.retryAttempt+1, c.err, strategy)
	switch {
	case decision.needsCustom:
		t.awaitingHook = true
		s.hooks[t.handle] = t
		go s.runCustomHook(t, c.err)
	case decision.retry:
		s.armRetry(t, decision.after)
	default:
		t.settle(nil, decision.finalErr)
		s.freeIfDone(t)
	}
}

func (s *Scheduler) releaseExecuting(t *task) {
	if t.executing {
		s.acct.release(t)
		t.executing = false
		delete(s.executing, t.handle)
	}
	if t.executionTimer != nil {
		t.executionTimer.Stop()
		t.executionTimer = nil
	}
}

func (s *Scheduler) handleExecutionTimeout(c cmdExecutionTimeout) {
	t := s.arena.get(c.handle)
	if t == nil || !t.executing {
		return
	}
	// The callback is not cancelled: it keeps the task "executing" and
	// holding its reserved resources until its real completion or
	// failure arrives, which will find t already settled and simply
	// release.
	t.settle(nil, newError(ErrExecutionTimeout, "execution timeout exceeded"))
}

func (s *Scheduler) handleQueueTimeout(c cmdQueueTimeout) {
	t := s.arena.get(c.handle)
	if t == nil || !t.inQueue {
		return
	}
	s.removeFromPendingIndices(t)
	t.settle(nil, newError(ErrQueueTimeout, "queue waiting timeout exceeded"))
	s.freeIfDone(t)
}

func (s *Scheduler) armRetry(t *task, after time.Duration) {
	t.retrying = true
	s.retrying[t.handle] = t
	h := t.handle
	t.retryTimer = time.AfterFunc(after, func() { s.cmds <- cmdRetryFire{handle: h} })
}

func (s *Scheduler) handleRetryFire(c cmdRetryFire, now time.Time) {
	t := s.arena.get(c.handle)
	if t == nil || !t.retrying {
		return
	}
	delete(s.retrying, t.handle)
	t.retrying = false
	t.retryTimer = nil
	t.retryAttempt++
	s.enqueue(t, now, s.opts.ReapplyQueueWaitingTimeoutOnRetry)
}

func (s *Scheduler) runCustomHook(t *task, taskErr error) {
	strategy := t.effectiveFailRecovery(s.opts.FailRecoveryStrategy)
	decision, hookErr := strategy.OnFailure(t.ctx, taskErr, t.retryAttempt+1)
	s.cmds <- cmdCustomHookResult{handle: t.handle, decision: decision, hookErr: hookErr}
}

func (s *Scheduler) handleCustomHookResult(c cmdCustomHookResult, now time.Time) {
	t := s.arena.get(c.handle)
	if t == nil {
		return
	}
	t.awaitingHook = false
	delete(s.hooks, t.handle)

	if t.settled {
		s.freeIfDone(t)
		return
	}

	if c.hookErr != nil {
		t.settle(nil, &SchedulerError{Type: ErrOnFailureError, Message: "custom fail-recovery hook returned an error", Cause: c.hookErr, TaskErr: t.lastErr})
		s.freeIfDone(t)
		return
	}
	if c.decision.Retry {
		s.armRetry(t, c.decision.Timeout)
		return
	}
	finalErr := c.decision.Err
	if finalErr == nil {
		finalErr = t.lastErr
	}
	t.settle(nil, finalErr)
	s.freeIfDone(t)
}

// ---- reconfiguration ----

func (s *Scheduler) applySetOptions(c cmdSetOptions, now time.Time) {
	assignRuleIDs(c.opts.ReleaseRules)
	old := s.opts
	s.opts = *c.opts.clone()

	s.acct.maxCapacity = s.opts.MaxCapacity
	s.acct.maxConcurrent = s.opts.MaxConcurrent
	s.acct.strategy = s.opts.CapacityStrategy

	if s.opts.MinDelayBetweenTasks > 0 {
		if s.minDelayLimiter == nil || old.MinDelayBetweenTasks != s.opts.MinDelayBetweenTasks {
			s.minDelayLimiter = newMinDelayLimiter(s.opts.MinDelayBetweenTasks)
		}
	} else {
		s.minDelayLimiter = nil
	}

	s.rules.setRules(s.opts.ReleaseRules, now)
	if s.queue.len() > 0 {
		s.rules.enable(now, &s.acct)
	}

	if ob := s.observer(); ob != nil {
		ob.OnReconfigured(*s.opts.clone())
	}
	c.resp <- nil
}

// ---- stop ----

func (s *Scheduler) applyStop(c cmdStop, now time.Time) {
	if !s.stopped {
		s.stopped = true
		if ob := s.observer(); ob != nil {
			ob.OnStopping(c.params)
		}
	}

	if c.params.StopWaitingTasks {
		for {
			t := s.queue.pickFirstMatching(func(*task) bool { return true })
			if t == nil {
				break
			}
			s.removeFromPendingIndices(t)
			t.settle(nil, newError(ErrStopped, "scheduler is stopping"))
			s.freeIfDone(t)
		}
	}

	if c.params.StopTaskRetries {
		for h, t := range s.retrying {
			if t.retryTimer != nil {
				t.retryTimer.Stop()
				t.retryTimer = nil
			}
			delete(s.retrying, h)
			t.retrying = false
			t.settle(nil, newError(ErrStopped, "scheduler is stopping"))
			s.freeIfDone(t)
		}
	}

	if c.params.RejectExecutingTasks {
		for _, t := range s.executing {
			t.settle(nil, newError(ErrStopped, "scheduler is stopping"))
		}
	}

	s.stopWaiters = append(s.stopWaiters, c.done)
}

func (s *Scheduler) maybeFinishStop() {
	if !s.stopped || len(s.stopWaiters) == 0 {
		return
	}
	if s.queue.len() > 0 || len(s.retrying) > 0 || len(s.hooks) > 0 {
		return
	}
	for _, t := range s.executing {
		if !t.settled {
			return
		}
	}
	if ob := s.observer(); ob != nil {
		ob.OnStopped()
	}
	for _, w := range s.stopWaiters {
		close(w)
	}
	s.stopWaiters = nil
}
