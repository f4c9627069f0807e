package scheduler

import (
	"sync/atomic"
	"time"
)

// ruleIDSeq mints stable identities for ReleaseRules, so a rule
// surviving a GetOptions/SetOptions round trip (which deep-clones the
// Options tree, including every *ReleaseRule) can still be recognized
// as the same rule by id even though its pointer changed.
var ruleIDSeq uint64

// assignRuleIDs gives every rule that doesn't already have one a fresh
// id. Must run before the Options value holding rules is cloned, so
// the clone carries the assigned id forward.
func assignRuleIDs(rules []*ReleaseRule) {
	for _, r := range rules {
		if r.id == 0 {
			r.id = atomic.AddUint64(&ruleIDSeq, 1)
		}
	}
}

// ruleState is the runtime bookkeeping for one release rule: the last
// instant its effect was applied, and its currently-armed timer.
type ruleState struct {
	lastApplied time.Time
	timer       *time.Timer
}

// releaseRuleDriver owns the periodic application of ReleaseRules
// against the accountant. Timers are disabled whenever the
// queue is empty (so the process can exit cleanly) and re-armed, with
// catch-up, on the next admission.
type releaseRuleDriver struct {
	rules   []*ReleaseRule
	state   map[uint64]*ruleState
	enabled bool
	// fire is invoked (from a timer goroutine) when a rule's periodic
	// interval elapses; the scheduler loop wires this to post a command
	// back onto its own command channel so the apply happens on the
	// single loop goroutine, never directly from the timer goroutine.
	fire func(rule *ReleaseRule)
	// onCatchUp is invoked synchronously on the loop goroutine whenever
	// enable applies a missed reset or reduce firing, for Observer
	// notification only.
	onCatchUp func(rule *ReleaseRule, usedCapacity float64)
}

func newReleaseRuleDriver() *releaseRuleDriver {
	return &releaseRuleDriver{state: make(map[uint64]*ruleState)}
}

// setRules reconciles the configured rule list: rules whose id is
// unchanged keep their lastApplied/timer; removed rules have their
// timer cancelled; new rules start with lastApplied = now and, if the
// driver is currently enabled, an armed timer. Callers must have
// already run assignRuleIDs over rules.
func (d *releaseRuleDriver) setRules(rules []*ReleaseRule, now time.Time) {
	next := make(map[uint64]*ruleState, len(rules))
	for _, r := range rules {
		if st, ok := d.state[r.id]; ok {
			next[r.id] = st
			continue
		}
		st := &ruleState{lastApplied: now}
		next[r.id] = st
		if d.enabled {
			d.arm(r, st, r.Interval)
		}
	}
	for id, st := range d.state {
		if _, stillPresent := next[id]; !stillPresent && st.timer != nil {
			st.timer.Stop()
		}
	}
	d.rules = append([]*ReleaseRule(nil), rules...)
	d.state = next
}

func (d *releaseRuleDriver) arm(r *ReleaseRule, st *ruleState, delay time.Duration) {
	if delay <= 0 {
		delay = time.Nanosecond
	}
	st.timer = time.AfterFunc(delay, func() {
		if d.fire != nil {
			d.fire(r)
		}
	})
}

// disable stops every rule's timer without losing lastApplied, so a
// later catch-up can compute exactly how many firings were missed.
func (d *releaseRuleDriver) disable() {
	if !d.enabled {
		return
	}
	d.enabled = false
	for _, st := range d.state {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

// enable re-arms timers, applying any missed firings since lastApplied
// first; among reset rules with a missed firing, only the one with the
// latest catch-up instant is applied.
func (d *releaseRuleDriver) enable(now time.Time, a *accountant) {
	if d.enabled {
		return
	}
	d.enabled = true
	if len(d.rules) == 0 {
		return
	}

	var latestResetCatchUp *time.Time
	var winningReset *ReleaseRule
	var winningCatchUp time.Time

	for _, r := range d.rules {
		if r.Kind != ReleaseReset {
			continue
		}
		st := d.state[r.id]
		catchUp := catchUpTime(now, st.lastApplied, r.Interval)
		if !catchUp.After(st.lastApplied) {
			continue // no firing missed
		}
		if winningReset == nil || catchUp.After(winningCatchUp) {
			winningReset = r
			winningCatchUp = catchUp
		}
	}
	if winningReset != nil {
		a.applyReset(winningReset.Value)
		if d.onCatchUp != nil {
			d.onCatchUp(winningReset, a.usedCapacity)
		}
		for _, r := range d.rules {
			if r.Kind != ReleaseReset {
				continue
			}
			st := d.state[r.id]
			if r == winningReset {
				st.lastApplied = winningCatchUp
			} else {
				st.lastApplied = catchUpTime(now, st.lastApplied, r.Interval)
			}
		}
		latestResetCatchUp = &winningCatchUp
	}

	for _, r := range d.rules {
		if r.Kind != ReleaseReduce {
			continue
		}
		st := d.state[r.id]
		catchUp := catchUpTime(now, st.lastApplied, r.Interval)
		baseline := st.lastApplied
		if latestResetCatchUp != nil && latestResetCatchUp.After(baseline) {
			baseline = *latestResetCatchUp
		}
		firings := int(catchUp.Sub(baseline) / r.Interval)
		if firings > 0 && a.usedCapacity > 0 {
			a.applyReduce(r.Value, firings)
			if d.onCatchUp != nil {
				d.onCatchUp(r, a.usedCapacity)
			}
		}
		st.lastApplied = catchUp
	}

	for _, r := range d.rules {
		st := d.state[r.id]
		residual := r.Interval - now.Sub(st.lastApplied)
		d.arm(r, st, residual)
	}
}

// applyFiring is called for a single periodic (non-catch-up) firing,
// in response to a rule's timer; it applies exactly one firing and
// re-arms the rule for another full interval.
func (d *releaseRuleDriver) applyFiring(r *ReleaseRule, now time.Time, a *accountant) {
	st, ok := d.state[r.id]
	if !ok {
		return
	}
	switch r.Kind {
	case ReleaseReset:
		a.applyReset(r.Value)
	case ReleaseReduce:
		if a.usedCapacity > 0 {
			a.applyReduce(r.Value, 1)
		}
	}
	st.lastApplied = now
	if d.enabled {
		d.arm(r, st, r.Interval)
	}
}

// catchUpTime returns the latest instant at or before now that lies on
// the lastApplied + k*interval grid, for some integer k >= 0.
func catchUpTime(now, lastApplied time.Time, interval time.Duration) time.Time {
	elapsed := now.Sub(lastApplied)
	if elapsed <= 0 {
		return lastApplied
	}
	mod := elapsed % interval
	return now.Add(-mod)
}
