// Package sweep reconciles durable job records with reality. The in-memory
// queue is lost on a crash; the sweep fails orphaned in-flight records so
// tenants see a terminal status instead of a job stuck in processing
// forever. It also disables tokens that exceed their error budget.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/schedule"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// Config holds sweeper tuning. Zero values fall back to defaults.
type Config struct {
	// StaleAfter is how long an in-flight record may go without an update
	// before the sweep fails it. Default: 1h
	StaleAfter time.Duration

	// BatchLimit caps records reconciled per run. Default: 500
	BatchLimit int

	// MaxWindowErrors disables a token whose rolling error count reaches
	// this limit. Default: 20
	MaxWindowErrors int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      time.Hour,
		BatchLimit:      500,
		MaxWindowErrors: 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.MaxWindowErrors <= 0 {
		c.MaxWindowErrors = d.MaxWindowErrors
	}
	return c
}

// Sweeper runs the reconciliation pass on a schedule.
type Sweeper struct {
	store    store.Store
	registry *tokenpool.Registry
	emitter  core.Emitter
	logger   *slog.Logger
	config   Config
}

// New creates a sweeper. The emitter may be nil.
func New(s store.Store, registry *tokenpool.Registry, emitter core.Emitter, config Config) *Sweeper {
	return &Sweeper{
		store:    s,
		registry: registry,
		emitter:  emitter,
		logger:   slog.Default(),
		config:   config.withDefaults(),
	}
}

// SetLogger replaces the sweeper's logger.
func (s *Sweeper) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run blocks, executing the sweep per the schedule until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context, sched schedule.Schedule) error {
	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	}
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if err := s.reconcileJobs(ctx); err != nil {
		return err
	}
	return s.retireTokens(ctx)
}

func (s *Sweeper) reconcileJobs(ctx context.Context) error {
	stale, err := s.store.StaleProcessingJobs(ctx, s.config.StaleAfter, s.config.BatchLimit)
	if err != nil {
		return err
	}
	for _, job := range stale {
		msg := "timed out: no progress recorded, reconciled by sweep"
		if err := s.store.UpdateJobStatus(ctx, job.ID, job.TenantID, core.StatusFailed, "", msg); err != nil {
			s.logger.Error("failed to reconcile stale job", "job_id", job.ID, "error", err)
			continue
		}
		job.Status = core.StatusFailed
		job.LastError = msg
		s.logger.Warn("reconciled stale job", "job_id", job.ID, "tenant_id", job.TenantID)
		if s.emitter != nil {
			s.emitter.Emit(&core.JobFailed{Job: job, Error: &core.StuckStateError{TenantID: job.TenantID, Since: job.UpdatedAt}, Timestamp: time.Now()})
		}
	}
	if len(stale) > 0 {
		s.logger.Info("sweep reconciled stale jobs", "count", len(stale))
	}
	return nil
}

func (s *Sweeper) retireTokens(ctx context.Context) error {
	tokens, err := s.store.ActiveTokens(ctx)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if s.registry.ErrorsInWindow(token.ID) >= s.config.MaxWindowErrors {
			if err := s.registry.Disable(ctx, token.ID, "error budget exceeded"); err != nil {
				s.logger.Error("failed to disable token", "token_id", token.ID, "error", err)
			}
		}
	}
	return nil
}
