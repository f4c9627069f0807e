package main

import (
	"github.com/sirupsen/logrus"

	scheduler "github.com/mdevils/go-taskscheduler"
)

// logrusObserver reports structural scheduler lifecycle events to a
// logrus.FieldLogger. It never logs an individual task's outcome: those
// are only ever visible on the task's own result channel.
type logrusObserver struct {
	log logrus.FieldLogger
}

func newLogrusObserver(log logrus.FieldLogger) scheduler.Observer {
	return &logrusObserver{log: log}
}

func (o *logrusObserver) OnStarted(opts scheduler.Options) {
	o.log.WithField("minDelayBetweenTasks", opts.MinDelayBetweenTasks).Info("scheduler started")
}

func (o *logrusObserver) OnReconfigured(opts scheduler.Options) {
	o.log.Info("scheduler reconfigured")
}

func (o *logrusObserver) OnStopping(params scheduler.StopParams) {
	o.log.WithFields(logrus.Fields{
		"stopWaitingTasks":     params.StopWaitingTasks || params.StopAll,
		"rejectExecutingTasks": params.RejectExecutingTasks || params.StopAll,
		"stopTaskRetries":      params.StopTaskRetries || params.StopAll,
	}).Info("scheduler stopping")
}

func (o *logrusObserver) OnStopped() {
	o.log.Info("scheduler stopped")
}

func (o *logrusObserver) OnReleaseRuleCatchUp(rule *scheduler.ReleaseRule, usedCapacity float64) {
	o.log.WithField("usedCapacity", usedCapacity).Debug("release rule caught up")
}
