package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediarelay/genqueue/pkg/artifact"
	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/provider"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/submit"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// Config holds poller tuning. Zero values fall back to defaults.
type Config struct {
	// Interval between polls. Default: 15s
	Interval time.Duration

	// PollTimeout bounds one provider poll call. Default: 30s
	PollTimeout time.Duration

	// MaxAttempts bounds polls per job (~30 minutes at the default
	// interval). Default: 120
	MaxAttempts int

	// FailoverAfter is the one-time threshold after which a second
	// operation is started with a fresh token. Default: 4m
	FailoverAfter time.Duration

	// MaxTransientRetries bounds new operations started in response to
	// transient provider failures. Default: 10
	MaxTransientRetries int

	// Grace is how long a finished task handle stays visible before it is
	// discarded from the registry. Default: 30s
	Grace time.Duration
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:            15 * time.Second,
		PollTimeout:         30 * time.Second,
		MaxAttempts:         120,
		FailoverAfter:       4 * time.Minute,
		MaxTransientRetries: 10,
		Grace:               30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.FailoverAfter <= 0 {
		c.FailoverAfter = d.FailoverAfter
	}
	if c.MaxTransientRetries <= 0 {
		c.MaxTransientRetries = d.MaxTransientRetries
	}
	if c.Grace <= 0 {
		c.Grace = d.Grace
	}
	return c
}

// task is one supervised polling loop.
type task struct {
	jobID string
	done  chan struct{}
}

// Poller supervises one polling task per in-flight job.
type Poller struct {
	store    store.Store
	registry *tokenpool.Registry
	client   provider.Client
	chain    *artifact.Chain
	engine   *submit.Engine
	emitter  core.Emitter
	logger   *slog.Logger
	config   Config

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a poller. The emitter may be nil.
func New(s store.Store, registry *tokenpool.Registry, client provider.Client, chain *artifact.Chain, engine *submit.Engine, emitter core.Emitter, config Config) *Poller {
	return &Poller{
		store:    s,
		registry: registry,
		client:   client,
		chain:    chain,
		engine:   engine,
		emitter:  emitter,
		logger:   slog.Default(),
		config:   config.withDefaults(),
		tasks:    make(map[string]*task),
	}
}

// SetLogger replaces the poller's logger.
func (p *Poller) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Watch spawns a polling task for a started submission. The task runs to
// the job's terminal state; tenant stop actions do not abort it, since the
// provider has no cancel primitive.
func (p *Poller) Watch(ctx context.Context, sub *submit.Submission) {
	t := &task{jobID: sub.Job.ID, done: make(chan struct{})}

	p.mu.Lock()
	if existing, exists := p.tasks[sub.Job.ID]; exists {
		select {
		case <-existing.done:
			// A finished handle lingering through its grace period. The job
			// was regenerated; a new task replaces it.
		default:
			p.mu.Unlock()
			p.logger.Warn("poll task already tracked for job", "job_id", sub.Job.ID)
			return
		}
	}
	p.tasks[sub.Job.ID] = t
	p.mu.Unlock()

	go p.run(ctx, t, sub)
}

// Wait blocks until the job's polling task finishes. It returns immediately
// when no task is tracked for the job.
func (p *Poller) Wait(jobID string) {
	p.mu.Lock()
	t, ok := p.tasks[jobID]
	p.mu.Unlock()
	if !ok {
		return
	}
	<-t.done
}

// Active returns the number of tracked polling tasks.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Poller) run(ctx context.Context, t *task, sub *submit.Submission) {
	defer func() {
		close(t.done)
		// Keep the handle visible for a grace period so late observers can
		// still Wait on it.
		time.AfterFunc(p.config.Grace, func() {
			p.mu.Lock()
			// A regenerated job may already have a replacement task under
			// the same ID; only this task's own handle is discarded.
			if p.tasks[t.jobID] == t {
				delete(p.tasks, t.jobID)
			}
			p.mu.Unlock()
		})
	}()

	job := sub.Job
	credential := sub.Token.Secret
	tokenID := sub.Token.ID
	operation := sub.Operation

	startedAt := time.Now()
	failedOver := false
	failoverCh := make(chan *submit.Submission, 1)
	transientRetries := 0

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			p.logger.Info("poller shutting down, abandoning job", "job_id", job.ID)
			return
		case <-time.After(p.config.Interval):
		}

		// A completed failover start wins over the original operation.
		select {
		case newSub := <-failoverCh:
			credential = newSub.Token.Secret
			tokenID = newSub.Token.ID
			operation = newSub.Operation
			p.markRetrying(ctx, job, tokenID, operation, transientRetries, "failover")
		default:
		}

		if !failedOver && time.Since(startedAt) > p.config.FailoverAfter {
			failedOver = true
			go p.startFailover(ctx, job, failoverCh)
		}

		pollCtx, cancel := context.WithTimeout(ctx, p.config.PollTimeout)
		result, err := p.client.Poll(pollCtx, credential, operation)
		cancel()
		if err != nil {
			// Network-level poll errors are retried on the next tick and do
			// not consume the transient-error quota.
			p.logger.Debug("poll failed", "job_id", job.ID, "error", err)
			continue
		}
		if !result.Terminal {
			continue
		}

		if result.Success {
			p.complete(ctx, job, result)
			return
		}

		cause := fmt.Errorf("%s: %s", result.Category, result.Message)
		switch provider.ClassifyCategory(result.Category) {
		case provider.ClassTransient:
			transientRetries++
			if transientRetries > p.config.MaxTransientRetries {
				p.recordTokenError(ctx, tokenID)
				p.fail(ctx, job, fmt.Sprintf("exhausted %d retries, last provider error (%s): %s",
					p.config.MaxTransientRetries, result.Category, result.Message))
				return
			}
			newSub, err := p.engine.StartOnce(ctx, job, nil)
			if err != nil {
				p.fail(ctx, job, fmt.Sprintf("%v while retrying after provider error (%s)", err, result.Category))
				return
			}
			credential = newSub.Token.Secret
			tokenID = newSub.Token.ID
			operation = newSub.Operation
			p.markRetrying(ctx, job, tokenID, operation, transientRetries, result.Category)
		default:
			p.recordTokenError(ctx, tokenID)
			p.fail(ctx, job, (&core.ProviderTerminalError{Category: result.Category, Err: cause}).Error())
			return
		}
	}

	p.fail(ctx, job, fmt.Sprintf("timed out waiting for completion after %d polls", p.config.MaxAttempts))
}

// startFailover starts a parallel second attempt with a fresh token. The
// original operation keeps being polled until the new handle arrives;
// whichever resolves first wins.
func (p *Poller) startFailover(ctx context.Context, job *core.Job, out chan<- *submit.Submission) {
	newSub, err := p.engine.StartOnce(ctx, job, nil)
	if err != nil {
		p.logger.Warn("failover start failed, continuing with original operation", "job_id", job.ID, "error", err)
		return
	}
	p.logger.Info("failover operation started", "job_id", job.ID, "token_id", newSub.Token.ID)
	out <- newSub
}

func (p *Poller) markRetrying(ctx context.Context, job *core.Job, tokenID, operation string, retries int, reason string) {
	err := p.store.UpdateJobFields(ctx, job.ID, map[string]any{
		"status":       core.StatusRetrying,
		"token_id":     tokenID,
		"operation":    operation,
		"poll_retries": retries,
	})
	if err != nil {
		p.logger.Error("failed to record retry state", "job_id", job.ID, "error", err)
	}
	job.Status = core.StatusRetrying
	job.TokenID = tokenID
	job.Operation = operation
	job.PollRetries = retries

	p.logger.Info("job switched to new operation", "job_id", job.ID, "reason", reason, "retries", retries)
	if p.emitter != nil {
		p.emitter.Emit(&core.JobRetrying{Job: job, Attempt: retries, Reason: reason, Timestamp: time.Now()})
	}
}

func (p *Poller) complete(ctx context.Context, job *core.Job, result *provider.PollResult) {
	// Another path (the failover twin, most likely) may have resolved the
	// job already. A terminal record never changes, so persisting this
	// artifact would only orphan the upload.
	current, err := p.store.GetJob(ctx, job.ID)
	if err == nil && current != nil && current.Status.Terminal() {
		p.logger.Debug("job already terminal, skipping late completion", "job_id", job.ID)
		return
	}

	persisted, err := p.chain.Persist(ctx, job.ID, result.ArtifactURL, result.ArtifactBytes)
	if err != nil {
		p.fail(ctx, job, fmt.Sprintf("generation succeeded but artifact could not be stored: %v", err))
		return
	}

	if err := p.writeTerminal(ctx, job, core.StatusCompleted, persisted.URL, ""); err != nil {
		p.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		return
	}
	job.Status = core.StatusCompleted
	job.ArtifactURL = persisted.URL

	p.logger.Info("job completed", "job_id", job.ID, "tenant_id", job.TenantID, "url", persisted.URL, "in_memory", persisted.InMemory)
	if p.emitter != nil {
		p.emitter.Emit(&core.JobCompleted{Job: job, URL: persisted.URL, InMemory: persisted.InMemory, Timestamp: time.Now()})
	}
}

func (p *Poller) fail(ctx context.Context, job *core.Job, msg string) {
	if err := p.writeTerminal(ctx, job, core.StatusFailed, "", msg); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	job.Status = core.StatusFailed
	job.LastError = msg

	p.logger.Warn("job failed", "job_id", job.ID, "tenant_id", job.TenantID, "error", msg)
	if p.emitter != nil {
		p.emitter.Emit(&core.JobFailed{Job: job, Error: fmt.Errorf("%s", msg), Timestamp: time.Now()})
	}
}

// terminalWriteRetries bounds attempts to record a terminal outcome. Busy
// database errors under concurrent completions clear within a few tries.
const terminalWriteRetries = 5

// writeTerminal records a terminal status, retrying transient store failures
// with a short doubling backoff until the write lands or the retries run out.
func (p *Poller) writeTerminal(ctx context.Context, job *core.Job, status core.JobStatus, url, msg string) error {
	backoff := 25 * time.Millisecond
	var err error
	for attempt := 0; attempt < terminalWriteRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = p.store.UpdateJobStatus(ctx, job.ID, job.TenantID, status, url, msg); err == nil {
			return nil
		}
		p.logger.Debug("terminal status write failed, retrying", "job_id", job.ID, "attempt", attempt+1, "error", err)
	}
	return err
}

func (p *Poller) recordTokenError(ctx context.Context, tokenID string) {
	if tokenID == "" {
		return
	}
	if err := p.registry.RecordError(ctx, tokenID); err != nil {
		p.logger.Warn("failed to record token error", "token_id", tokenID, "error", err)
	}
}
