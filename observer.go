package scheduler

// Observer receives structural lifecycle notifications from a
// Scheduler. It is purely a diagnostic hook: error reporting never
// depends on it, and no task outcome is ever routed through it — only
// construction, reconfiguration, stop progress, and release-rule
// catch-up firings.
type Observer interface {
	OnStarted(opts Options)
	OnReconfigured(opts Options)
	OnStopping(params StopParams)
	OnStopped()
	OnReleaseRuleCatchUp(rule *ReleaseRule, usedCapacity float64)
}

// NoopObserver implements Observer with no-ops, for callers that want
// an explicit Observer value instead of leaving Options.Observer nil.
type NoopObserver struct{}

func (NoopObserver) OnStarted(Options)      {}
func (NoopObserver) OnReconfigured(Options) {}
func (NoopObserver) OnStopping(StopParams)  {}
func (NoopObserver) OnStopped()             {}
func (NoopObserver) OnReleaseRuleCatchUp(*ReleaseRule, float64) {}
