package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	scheduler "github.com/mdevils/go-taskscheduler"
)

// releaseRuleConfig is the YAML-decodable shape of a scheduler.ReleaseRule.
type releaseRuleConfig struct {
	Kind     string        `yaml:"kind"` // "reset" or "reduce"
	Value    float64       `yaml:"value"`
	Interval time.Duration `yaml:"interval"`
}

// config is the YAML document capacityctl loads: logger settings, a
// subset of scheduler.Options (limits, timeouts, pacing, release
// rules), and the shape of the synthetic task burst. Fields such as
// the Observer, the fail-recovery strategy, and the overflow and
// capacity strategies are not configurable here.
type config struct {
	Logger LoggerConfig `yaml:"logger"`

	MaxCapacity          *float64            `yaml:"max_capacity"`
	MaxConcurrent        *int                `yaml:"max_concurrent"`
	MaxQueueSize         *int                `yaml:"max_queue_size"`
	MinDelayBetweenTasks time.Duration       `yaml:"min_delay_between_tasks"`
	QueueWaitingTimeout  *time.Duration      `yaml:"queue_waiting_timeout"`
	ExecutionTimeout     *time.Duration      `yaml:"execution_timeout"`
	ReleaseRules         []releaseRuleConfig `yaml:"release_rules"`

	TaskCount       int           `yaml:"task_count"`
	TaskCapacity    float64       `yaml:"task_capacity"`
	TaskMinDuration time.Duration `yaml:"task_min_duration"`
	TaskMaxDuration time.Duration `yaml:"task_max_duration"`
}

func defaultConfig() config {
	return config{
		Logger:          defaultLoggerConfig(),
		TaskCount:       20,
		TaskCapacity:    1,
		TaskMinDuration: 50 * time.Millisecond,
		TaskMaxDuration: 250 * time.Millisecond,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c config) toSchedulerOptions(observer scheduler.Observer) (scheduler.Options, error) {
	opts := scheduler.Options{
		MaxCapacity:          c.MaxCapacity,
		MaxConcurrent:        c.MaxConcurrent,
		MaxQueueSize:         c.MaxQueueSize,
		MinDelayBetweenTasks: c.MinDelayBetweenTasks,
		QueueWaitingTimeout:  c.QueueWaitingTimeout,
		ExecutionTimeout:     c.ExecutionTimeout,
		Observer:             observer,
	}
	for _, r := range c.ReleaseRules {
		rule := &scheduler.ReleaseRule{Value: r.Value, Interval: r.Interval}
		switch r.Kind {
		case "reset":
			rule.Kind = scheduler.ReleaseReset
		case "reduce":
			rule.Kind = scheduler.ReleaseReduce
		default:
			return opts, fmt.Errorf("release rule: unknown kind %q (want reset or reduce)", r.Kind)
		}
		opts.ReleaseRules = append(opts.ReleaseRules, rule)
	}
	return opts, nil
}
