// Package scheduler triggers periodic backups from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/cobrancas/internal/async"
	"github.com/joseph-ayodele/cobrancas/internal/backup"
)

// Config holds one cron expression per backup mode. An empty expression disables that mode.
type Config struct {
	FullSchedule   string
	LatestSchedule string
}

// Scheduler enqueues backup jobs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	queue  async.Queue
	logger *slog.Logger
	config Config
}

func NewScheduler(queue async.Queue, logger *slog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		queue:  queue,
		logger: logger,
		config: cfg,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		schedule string
		mode     backup.Mode
	}{
		{s.config.FullSchedule, backup.ModeFull},
		{s.config.LatestSchedule, backup.ModeLatest},
	}
	for _, j := range jobs {
		if j.schedule == "" {
			s.logger.Info("backup job disabled", "mode", j.mode)
			continue
		}
		if _, err := s.cron.AddFunc(j.schedule, s.enqueue(j.mode)); err != nil {
			s.logger.Error("failed to schedule backup job", "mode", j.mode, "schedule", j.schedule, "error", err)
			return fmt.Errorf("schedule %s backup %q: %w", j.mode, j.schedule, err)
		}
		s.logger.Info("scheduled backup job", "mode", j.mode, "schedule", j.schedule)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueue(mode backup.Mode) func() {
	return func() {
		err := s.queue.Enqueue(context.Background(), async.Job{Mode: mode, Trigger: "cron"})
		if err != nil {
			s.logger.Error("failed to enqueue scheduled backup", "mode", mode, "error", err)
		}
	}
}
