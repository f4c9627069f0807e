// Command capacityctl drives a capacity-limited scheduler with a burst
// of synthetic tasks and prints live capacity readings. It is a demo
// harness, not a server: there is no network listener here.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	scheduler "github.com/mdevils/go-taskscheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "capacityctl",
		Short: "Run synthetic tasks through a capacity-limited scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logger)
	if err != nil {
		return err
	}

	opts, err := cfg.toSchedulerOptions(newLogrusObserver(log))
	if err != nil {
		return err
	}

	s, err := scheduler.New(opts)
	if err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	ctx := context.Background()
	results := make([]<-chan scheduler.Result, 0, cfg.TaskCount)
	for i := 0; i < cfg.TaskCount; i++ {
		i := i
		work := randDuration(cfg.TaskMinDuration, cfg.TaskMaxDuration)
		ch, err := s.ScheduleCapacity(ctx, cfg.TaskCapacity, func(ctx context.Context) (any, error) {
			time.Sleep(work)
			return i, nil
		})
		if err != nil {
			log.WithError(err).WithField("task", i).Warn("rejected at admission")
			continue
		}
		results = append(results, ch)
	}

	done := make(chan struct{})
	go func() {
		for _, ch := range results {
			<-ch
		}
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			log.Infof("used capacity: %s", units.HumanSize(s.GetUsedCapacity()))
		case <-done:
			break loop
		}
	}

	return s.Stop(ctx, scheduler.StopParams{StopAll: true})
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
