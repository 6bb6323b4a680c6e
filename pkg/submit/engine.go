package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/provider"
	"github.com/mediarelay/genqueue/pkg/security"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// TokenSource tells the engine where a submission's first token comes from:
// the batch's round-robin assignment, or a fresh rotation.
type TokenSource struct {
	token *core.Token
}

// PreAssigned uses the batch-assigned token for the first attempt.
func PreAssigned(token *core.Token) TokenSource {
	return TokenSource{token: token}
}

// Rotate requests a fresh token from the registry for every attempt.
func Rotate() TokenSource {
	return TokenSource{}
}

// Submission is a successfully started provider operation.
type Submission struct {
	Job       *core.Job
	Token     *core.Token
	Operation string
}

// Config holds engine tuning. Zero values fall back to defaults.
type Config struct {
	// MaxInstantRetries bounds synchronous start attempts per job.
	// Default: 10
	MaxInstantRetries int

	// RetryDelay is the fixed wait between attempts.
	// Default: 500ms
	RetryDelay time.Duration

	// StartTimeout bounds one provider start call.
	// Default: 90s
	StartTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxInstantRetries: 10,
		RetryDelay:        500 * time.Millisecond,
		StartTimeout:      90 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxInstantRetries <= 0 {
		c.MaxInstantRetries = d.MaxInstantRetries
	}
	c.MaxInstantRetries = security.ClampRetries(c.MaxInstantRetries)
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	return c
}

// Engine submits jobs to the provider with instant token failover.
type Engine struct {
	store    store.Store
	registry *tokenpool.Registry
	client   provider.Client
	emitter  core.Emitter
	logger   *slog.Logger
	config   Config
}

// NewEngine creates a submission engine. The emitter may be nil.
func NewEngine(s store.Store, registry *tokenpool.Registry, client provider.Client, emitter core.Emitter, config Config) *Engine {
	return &Engine{
		store:    s,
		registry: registry,
		client:   client,
		emitter:  emitter,
		logger:   slog.Default(),
		config:   config.withDefaults(),
	}
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Submit starts a provider operation for the job, retrying with a different
// token on each failure up to the instant-retry budget. On success the job
// advances to processing with its operation handle recorded. On terminal
// failure the job is marked failed with the attempt count in the message,
// and the terminal error is returned.
func (e *Engine) Submit(ctx context.Context, job *core.Job, source TokenSource) (*Submission, error) {
	excluded := make(map[string]struct{})
	var lastErr error

	attempts := 0
	for attempt := 1; attempt <= e.config.MaxInstantRetries; attempt++ {
		attempts = attempt

		token, err := e.pickToken(ctx, attempt, source, excluded)
		if err != nil {
			// All excluded or pool empty: fail fast, never spin.
			lastErr = err
			break
		}

		sub, err := e.startOnce(ctx, job, token, excluded)
		if err == nil {
			if err := e.markStarted(ctx, job, sub, attempt); err != nil {
				return nil, err
			}
			return sub, nil
		}
		lastErr = err

		if attempt < e.config.MaxInstantRetries {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(e.config.RetryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	return nil, e.failJob(ctx, job, lastErr, attempts)
}

// StartOnce performs a single start attempt with a freshly rotated token,
// applying the usual token side effects but leaving the job record alone.
// The poller uses this for failover and transient-retry operations.
func (e *Engine) StartOnce(ctx context.Context, job *core.Job, excluding map[string]struct{}) (*Submission, error) {
	if excluding == nil {
		excluding = make(map[string]struct{})
	}
	token, err := e.registry.SelectNext(ctx, excluding)
	if err != nil {
		return nil, err
	}
	return e.startOnce(ctx, job, token, excluding)
}

func (e *Engine) pickToken(ctx context.Context, attempt int, source TokenSource, excluded map[string]struct{}) (*core.Token, error) {
	if attempt == 1 && source.token != nil {
		if _, skip := excluded[source.token.ID]; !skip {
			// The pre-assigned token may have been disabled mid-batch by a
			// sibling job's authentication failure.
			current, err := e.store.GetToken(ctx, source.token.ID)
			if err != nil {
				return nil, err
			}
			if current != nil && current.Active {
				return current, nil
			}
		}
	}
	return e.registry.SelectNext(ctx, excluded)
}

func (e *Engine) startOnce(ctx context.Context, job *core.Job, token *core.Token, excluded map[string]struct{}) (*Submission, error) {
	startCtx, cancel := context.WithTimeout(ctx, e.config.StartTimeout)
	operation, err := e.client.Start(startCtx, token.Secret, job.Payload)
	cancel()

	// Every attempt counts as a use. Failed attempts bump the usage
	// timestamp too, so the next rotation moves past this token.
	if uerr := e.registry.RecordUsage(ctx, token.ID); uerr != nil {
		e.logger.Warn("failed to record token usage", "token_id", token.ID, "error", uerr)
	}

	if err == nil {
		return &Submission{Job: job, Token: token, Operation: operation}, nil
	}

	switch provider.Classify(err) {
	case provider.ClassAuth:
		// Disablement outlives this job: the whole pool stops using the
		// credential.
		if derr := e.registry.Disable(ctx, token.ID, "authentication failure"); derr != nil {
			e.logger.Error("failed to disable token", "token_id", token.ID, "error", derr)
		}
		excluded[token.ID] = struct{}{}
	default:
		if rerr := e.registry.RecordError(ctx, token.ID); rerr != nil {
			e.logger.Warn("failed to record token error", "token_id", token.ID, "error", rerr)
		}
	}
	e.logger.Debug("start attempt failed",
		"job_id", job.ID, "token_id", token.ID, "class", provider.Classify(err).String(), "error", err)
	return nil, err
}

func (e *Engine) markStarted(ctx context.Context, job *core.Job, sub *Submission, attempt int) error {
	now := time.Now()
	err := e.store.UpdateJobFields(ctx, job.ID, map[string]any{
		"status":          core.StatusProcessing,
		"token_id":        sub.Token.ID,
		"operation":       sub.Operation,
		"instant_retries": attempt,
		"started_at":      now,
	})
	if err != nil {
		return err
	}
	job.Status = core.StatusProcessing
	job.TokenID = sub.Token.ID
	job.Operation = sub.Operation
	job.InstantRetries = attempt
	job.StartedAt = &now

	e.logger.Info("job started", "job_id", job.ID, "tenant_id", job.TenantID, "token_id", sub.Token.ID, "attempt", attempt)
	if e.emitter != nil {
		e.emitter.Emit(&core.JobStarted{Job: job, TokenID: sub.Token.ID, Attempt: attempt, Timestamp: now})
	}
	return nil
}

func (e *Engine) failJob(ctx context.Context, job *core.Job, cause error, attempts int) error {
	if cause == nil {
		cause = errors.New("submission failed")
	}
	msg := fmt.Sprintf("%v (after %d start attempts)", cause, attempts)
	if err := e.store.UpdateJobStatus(ctx, job.ID, job.TenantID, core.StatusFailed, "", msg); err != nil {
		e.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	job.Status = core.StatusFailed
	job.LastError = msg

	e.logger.Warn("job failed to start", "job_id", job.ID, "tenant_id", job.TenantID, "attempts", attempts, "error", cause)
	if e.emitter != nil {
		e.emitter.Emit(&core.JobFailed{Job: job, Error: cause, Timestamp: time.Now()})
	}
	return cause
}
