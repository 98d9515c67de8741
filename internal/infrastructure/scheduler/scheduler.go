// Package scheduler periodically rebuilds the in-memory event index from the
// repository, so records written by other instances become visible.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/infrastructure/metrics"
)

// Reloader is satisfied by the event service.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs the index resync on a cron schedule. Runs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	metrics  *metrics.Metrics
	logger   *logger.Logger
	timeout  time.Duration
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 5m") and registers the resync job. The scheduler is idle until Start.
func New(spec string, reloader Reloader, m *metrics.Metrics, log *logger.Logger) (*Scheduler, error) {
	log = log.WithComponent("scheduler")
	cl := cronLogger{log}

	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		reloader: reloader,
		metrics:  m,
		logger:   log,
		timeout:  time.Minute,
	}

	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce reloads the index immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	started := time.Now()
	err := s.reloader.Reload(ctx)
	s.metrics.SyncRun(err)
	if err != nil {
		s.logger.Errorw("Index resync failed", "error", err)
		return err
	}
	s.logger.Debugw("Index resync finished", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Infow("Starting index resync", "next_run", s.next())
	s.cron.Start()
}

// Stop halts the schedule and waits for a running resync, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).Errorw(msg, keysAndValues...)
}
