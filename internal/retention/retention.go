// Package retention runs the periodic housekeeping sweep: purging old
// agent logs and failing projects that have been stuck in a non-terminal
// status for too long without any agent touching them. Idempotent and
// safe to run from multiple replicas concurrently.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/automl-platform/orchestrator/internal/store"
)

// Config tunes the retention sweep.
type Config struct {
	LogRetentionDays  int
	StalePendingAfter time.Duration
	Interval          time.Duration
}

func (c Config) withDefaults() Config {
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = 90
	}
	if c.StalePendingAfter <= 0 {
		c.StalePendingAfter = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// Service periodically enforces retention policies against the store.
type Service struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a retention Service.
func New(st *store.Store, cfg Config) *Service {
	return &Service{cfg: cfg.withDefaults(), store: st, logger: slog.Default().With("component", "retention")}
}

// Start launches the background sweep loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("retention service started", "log_retention_days", s.cfg.LogRetentionDays,
		"stale_pending_after", s.cfg.StalePendingAfter, "interval", s.cfg.Interval)
}

// Stop signals the sweep loop to exit and waits for it to finish. Idempotent.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.purgeOldLogs(ctx)
	s.failStalePendingProjects(ctx)
}

func (s *Service) purgeOldLogs(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.LogRetentionDays)
	n, err := s.store.DeleteLogsOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("log retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged old agent logs", "count", n)
	}
}

func (s *Service) failStalePendingProjects(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.StalePendingAfter)
	n, err := s.store.FailStalePendingProjects(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale project sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("failed stale pending projects", "count", n)
	}
}
