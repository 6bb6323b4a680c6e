package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/plan"
	"github.com/mediarelay/genqueue/pkg/poller"
	"github.com/mediarelay/genqueue/pkg/security"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/submit"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// Config holds scheduler tuning. Zero values fall back to defaults.
type Config struct {
	// MaxProcessingDuration is the watchdog threshold after which a tenant
	// loop is considered stuck and force-reset. Default: 2h
	MaxProcessingDuration time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{MaxProcessingDuration: 2 * time.Hour}
}

func (c Config) withDefaults() Config {
	if c.MaxProcessingDuration <= 0 {
		c.MaxProcessingDuration = DefaultConfig().MaxProcessingDuration
	}
	return c
}

// tenantState is exclusively owned by its tenant's loop plus the scheduler
// mutex; no cross-tenant mutation.
type tenantState struct {
	pending             []*core.Job
	isProcessing        bool
	shouldStop          bool
	processingStartedAt time.Time

	// generation invalidates a loop that was force-stopped while sleeping,
	// so a replacement loop can start immediately without racing it.
	generation int
}

// QueueStatus is the tenant-visible snapshot of a queue.
type QueueStatus struct {
	QueueLength         int
	IsProcessing        bool
	ProcessingStartedAt *time.Time
	WasAutoReset        bool
}

// ResetResult reports the state discarded by a force-reset.
type ResetResult struct {
	PreviousLength       int
	PreviousIsProcessing bool
}

// Scheduler fans tenant batches out across the token pool. One lightweight
// loop runs per tenant with queued work, and one poll task per in-flight
// job; the scheduler itself holds no global locks while waiting on the
// provider.
type Scheduler struct {
	store    store.Store
	registry *tokenpool.Registry
	engine   *submit.Engine
	poller   *poller.Poller
	plans    plan.Provider
	logger   *slog.Logger
	config   Config

	mu      sync.Mutex
	tenants map[string]*tenantState

	bus *core.Bus

	rootCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler.
type Option interface {
	applyScheduler(*Scheduler)
}

type optionFunc func(*Scheduler)

func (f optionFunc) applyScheduler(s *Scheduler) { f(s) }

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithConfig overrides the scheduler configuration.
func WithConfig(config Config) Option {
	return optionFunc(func(s *Scheduler) {
		s.config = config.withDefaults()
	})
}

// WithBus shares an event bus with the engine and poller so all lifecycle
// events arrive on one stream.
func WithBus(b *core.Bus) Option {
	return optionFunc(func(s *Scheduler) {
		if b != nil {
			s.bus = b
		}
	})
}

// New creates a scheduler. Processing loops and poll tasks live until
// Close.
func New(s store.Store, registry *tokenpool.Registry, engine *submit.Engine, p *poller.Poller, plans plan.Provider, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	sched := &Scheduler{
		store:    s,
		registry: registry,
		engine:   engine,
		poller:   p,
		plans:    plans,
		logger:   slog.Default(),
		config:   DefaultConfig(),
		tenants:  make(map[string]*tenantState),
		bus:      core.NewBus(),
		rootCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt.applyScheduler(sched)
	}
	return sched
}

// Events returns a channel receiving scheduler events. Call Unsubscribe
// when done.
func (s *Scheduler) Events() <-chan core.Event {
	return s.bus.Subscribe()
}

// Unsubscribe removes a subscriber channel created by Events().
func (s *Scheduler) Unsubscribe(ch <-chan core.Event) {
	s.bus.Unsubscribe(ch)
}

// Emit broadcasts an event on the scheduler's bus.
func (s *Scheduler) Emit(e core.Event) {
	s.bus.Emit(e)
}

// Close stops all processing loops and abandons in-flight poll tasks.
func (s *Scheduler) Close() {
	s.cancel()
}

// SubmitBatch creates job records for the payloads and enqueues them for
// the tenant, starting a processing loop when none is running. It returns
// as soon as the batch is accepted; completion is reported per job through
// the record store and the event stream.
func (s *Scheduler) SubmitBatch(ctx context.Context, tenantID string, payloads [][]byte) ([]*core.Job, error) {
	if err := security.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	policy := s.plans.PolicyFor(ctx, tenantID)
	if len(payloads) == 0 || len(payloads) > policy.MaxPromptsPerBatch {
		return nil, core.ErrTooManyPrompts
	}

	jobs := make([]*core.Job, len(payloads))
	for i, payload := range payloads {
		jobs[i] = &core.Job{
			TenantID: tenantID,
			Payload:  payload,
			Sequence: i,
			Status:   core.StatusPending,
		}
	}
	if err := s.store.CreateJobs(ctx, jobs); err != nil {
		return nil, err
	}

	s.enqueue(tenantID, jobs)
	return jobs, nil
}

// Regenerate re-enqueues a terminally failed job. This is the only path out
// of a terminal state.
func (s *Scheduler) Regenerate(ctx context.Context, tenantID, jobID string) (*core.Job, error) {
	job, err := s.store.RequeueJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	s.enqueue(tenantID, []*core.Job{job})
	return job, nil
}

// enqueue appends jobs to the tenant queue and starts a loop when idle.
// Enqueueing clears a pending stop request.
func (s *Scheduler) enqueue(tenantID string, jobs []*core.Job) {
	s.mu.Lock()
	st := s.tenants[tenantID]
	if st == nil {
		st = &tenantState{}
		s.tenants[tenantID] = st
	}
	st.pending = append(st.pending, jobs...)
	st.shouldStop = false

	startLoop := !st.isProcessing
	if startLoop {
		st.isProcessing = true
		st.processingStartedAt = time.Now()
		st.generation++
	}
	gen := st.generation
	s.mu.Unlock()

	if startLoop {
		s.logger.Info("starting processing loop", "tenant_id", tenantID, "queued", len(jobs))
		go s.runLoop(tenantID, gen)
	}
}

// Stop discards the tenant's not-yet-submitted jobs and releases the
// processing lock immediately. Already-submitted jobs' pollers run to their
// natural terminal state. Returns the number of discarded jobs.
func (s *Scheduler) Stop(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.tenants[tenantID]
	if st == nil {
		return 0
	}
	cleared := len(st.pending)
	st.pending = nil
	st.shouldStop = true
	st.isProcessing = false
	st.processingStartedAt = time.Time{}
	// Invalidate the running loop so a new batch does not wait out its
	// inter-batch sleep.
	st.generation++

	s.logger.Info("processing stopped", "tenant_id", tenantID, "cleared", cleared)
	return cleared
}

// Status returns the tenant's queue snapshot. A loop stuck past the
// watchdog threshold is force-reset here and the reset is reported.
func (s *Scheduler) Status(tenantID string) QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.tenants[tenantID]
	if st == nil {
		return QueueStatus{}
	}

	if st.isProcessing && time.Since(st.processingStartedAt) > s.config.MaxProcessingDuration {
		stuck := &core.StuckStateError{TenantID: tenantID, Since: st.processingStartedAt}
		s.logger.Error("watchdog reset", "tenant_id", tenantID, "error", stuck)
		s.Emit(&core.QueueAutoReset{
			TenantID:  tenantID,
			Dropped:   len(st.pending),
			Since:     st.processingStartedAt,
			Timestamp: time.Now(),
		})

		st.pending = nil
		st.isProcessing = false
		st.shouldStop = false
		st.processingStartedAt = time.Time{}
		st.generation++
		return QueueStatus{WasAutoReset: true}
	}

	status := QueueStatus{
		QueueLength:  len(st.pending),
		IsProcessing: st.isProcessing,
	}
	if st.isProcessing {
		startedAt := st.processingStartedAt
		status.ProcessingStartedAt = &startedAt
	}
	return status
}

// ForceReset is the administrative escape hatch: it unconditionally clears
// the tenant's queue state and reports what was discarded.
func (s *Scheduler) ForceReset(tenantID string) ResetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.tenants[tenantID]
	if st == nil {
		return ResetResult{}
	}
	result := ResetResult{
		PreviousLength:       len(st.pending),
		PreviousIsProcessing: st.isProcessing,
	}
	st.pending = nil
	st.isProcessing = false
	st.shouldStop = false
	st.processingStartedAt = time.Time{}
	st.generation++

	s.logger.Warn("queue force-reset", "tenant_id", tenantID, "dropped", result.PreviousLength)
	return result
}

// runLoop drains one tenant's queue in batches until it empties, the tenant
// stops it, or the generation moves on without it.
func (s *Scheduler) runLoop(tenantID string, gen int) {
	for {
		s.mu.Lock()
		st := s.tenants[tenantID]
		if st == nil || st.generation != gen || st.shouldStop {
			if st != nil && st.generation == gen {
				st.isProcessing = false
				st.processingStartedAt = time.Time{}
			}
			s.mu.Unlock()
			return
		}
		if len(st.pending) == 0 {
			st.isProcessing = false
			st.processingStartedAt = time.Time{}
			s.mu.Unlock()
			s.logger.Info("queue drained", "tenant_id", tenantID)
			return
		}

		policy := s.plans.PolicyFor(s.rootCtx, tenantID)
		n := policy.BatchSize
		if n > len(st.pending) {
			n = len(st.pending)
		}
		batch := st.pending[:n:n]
		st.pending = st.pending[n:]
		s.mu.Unlock()

		s.dispatchBatch(tenantID, batch)

		s.mu.Lock()
		empty := st.generation != gen || len(st.pending) == 0
		s.mu.Unlock()
		if empty {
			continue // next iteration exits and clears the flag
		}

		select {
		case <-s.rootCtx.Done():
			return
		case <-time.After(policy.InterBatchDelay):
		}
	}
}

// dispatchBatch reserves one round-robin token slice for the batch and
// submits every job concurrently.
func (s *Scheduler) dispatchBatch(tenantID string, batch []*core.Job) {
	tokens, err := s.registry.AssignBatch(s.rootCtx, len(batch))
	if err != nil {
		// Resource exhaustion fails the whole batch immediately rather than
		// letting jobs wait indefinitely.
		s.logger.Warn("failing batch, no tokens available", "tenant_id", tenantID, "batch", len(batch), "error", err)
		for _, job := range batch {
			if uerr := s.store.UpdateJobStatus(s.rootCtx, job.ID, tenantID, core.StatusFailed, "", err.Error()); uerr != nil {
				s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", uerr)
			}
			job.Status = core.StatusFailed
			job.LastError = err.Error()
			s.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
		}
		return
	}

	var wg sync.WaitGroup
	for i, job := range batch {
		wg.Add(1)
		go func(job *core.Job, token *core.Token) {
			defer wg.Done()
			sub, err := s.engine.Submit(s.rootCtx, job, submit.PreAssigned(token))
			if err != nil {
				// The engine already recorded the terminal failure.
				return
			}
			s.poller.Watch(s.rootCtx, sub)
		}(job, tokens[i])
	}
	wg.Wait()
}
