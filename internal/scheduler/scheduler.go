// Package scheduler runs periodic housekeeping such as journal retention.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner deletes journal rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the retention job.
type Config struct {
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
}

// DefaultConfig prunes nightly at 3 AM, keeping thirty days.
func DefaultConfig() Config {
	return Config{
		PruneSchedule: "0 3 * * *",
		Retention:     30 * 24 * time.Hour,
	}
}

// Scheduler manages cron jobs for the companion.
type Scheduler struct {
	cron   *cron.Cron
	pruner Pruner
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a scheduler and registers the prune job.
func New(pruner Pruner, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultConfig().PruneSchedule
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}

	log := cronLogger{logger: logger.With().Str("component", "scheduler").Logger()}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log))),
		pruner: pruner,
		cfg:    cfg,
		logger: log.logger,
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.PruneSchedule, func() { _, _ = s.RunPrune(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule prune job %q: %w", cfg.PruneSchedule, err)
	}
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info().Str("schedule", s.cfg.PruneSchedule).Dur("retention", s.cfg.Retention).Msg("Scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Next returns when the prune job runs next, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunPrune deletes everything older than the retention window now.
func (s *Scheduler) RunPrune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Journal prune failed")
		return 0, err
	}
	s.logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("Journal pruned")
	return n, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
