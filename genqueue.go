// Package genqueue schedules media-generation jobs across a shared pool of
// rate-limited provider credentials.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("genqueue.db"), &gorm.Config{})
//	st := genqueue.NewGormStore(db)
//	st.Migrate(context.Background())
//
//	bus := genqueue.NewBus()
//	registry := genqueue.NewRegistry(st, genqueue.WithPoolEmitter(bus))
//	client := genqueue.NewHTTPClient("https://provider.example.com", nil)
//	chain := genqueue.NewChain(st, nil,
//	    genqueue.NewHTTPBackend("primary", "https://cdn.example.com/artifacts", nil))
//	engine := genqueue.NewEngine(st, registry, client, bus, genqueue.DefaultEngineConfig())
//	watcher := genqueue.NewPoller(st, registry, client, chain, engine, bus, genqueue.DefaultPollerConfig())
//
//	sched := genqueue.NewScheduler(st, registry, engine, watcher,
//	    genqueue.NewStaticPlans(nil, genqueue.DefaultPolicy()),
//	    genqueue.WithSchedulerBus(bus))
//
//	// Fan a tenant's batch out across the token pool.
//	sched.SubmitBatch(ctx, "tenant-a", payloads)
package genqueue

import (
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/mediarelay/genqueue/pkg/artifact"
	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/plan"
	"github.com/mediarelay/genqueue/pkg/poller"
	"github.com/mediarelay/genqueue/pkg/provider"
	"github.com/mediarelay/genqueue/pkg/schedule"
	"github.com/mediarelay/genqueue/pkg/scheduler"
	"github.com/mediarelay/genqueue/pkg/security"
	"github.com/mediarelay/genqueue/pkg/store"
	"github.com/mediarelay/genqueue/pkg/submit"
	"github.com/mediarelay/genqueue/pkg/sweep"
	"github.com/mediarelay/genqueue/pkg/tokenpool"
)

// Type aliases re-exported from pkg/ packages.
type (
	// Job is one tenant-submitted unit of generation work.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Token is one provider credential from the rotating pool.
	Token = core.Token

	// Event is the interface for all scheduler events.
	Event = core.Event

	// Bus broadcasts events to subscribers.
	Bus = core.Bus

	// Store defines the persistence layer for jobs, tokens, and the
	// rotation cursor.
	Store = store.Store

	// GormStore implements Store using GORM.
	GormStore = store.GormStore

	// Registry mediates access to the token pool.
	Registry = tokenpool.Registry

	// ProviderClient talks to the external generation provider.
	ProviderClient = provider.Client

	// PollResult is one observation of an in-flight operation.
	PollResult = provider.PollResult

	// Chain persists artifacts through ordered fallback backends.
	Chain = artifact.Chain

	// Backend stores raw artifact bytes.
	Backend = artifact.Backend

	// MemoryCache is the last-resort in-memory artifact store.
	MemoryCache = artifact.MemoryCache

	// Engine submits jobs to the provider with instant token failover.
	Engine = submit.Engine

	// TokenSource tells the engine where a submission's first token comes
	// from.
	TokenSource = submit.TokenSource

	// Submission is a successfully started provider operation.
	Submission = submit.Submission

	// Poller tracks in-flight operations to their terminal state.
	Poller = poller.Poller

	// Scheduler fans tenant batches out across the token pool.
	Scheduler = scheduler.Scheduler

	// QueueStatus is the tenant-visible snapshot of a queue.
	QueueStatus = scheduler.QueueStatus

	// Policy controls how a tenant's queue is drained.
	Policy = plan.Policy

	// PlanProvider resolves the processing policy for a tenant.
	PlanProvider = plan.Provider

	// Schedule computes when recurring maintenance work runs.
	Schedule = schedule.Schedule

	// Sweeper reconciles durable job records with reality.
	Sweeper = sweep.Sweeper
)

// Event types emitted on the bus.
type (
	JobStartedEvent     = core.JobStarted
	JobCompletedEvent   = core.JobCompleted
	JobFailedEvent      = core.JobFailed
	JobRetryingEvent    = core.JobRetrying
	TokenDisabledEvent  = core.TokenDisabled
	QueueAutoResetEvent = core.QueueAutoReset
)

// Job status constants.
const (
	StatusPending    = core.StatusPending
	StatusProcessing = core.StatusProcessing
	StatusCompleted  = core.StatusCompleted
	StatusFailed     = core.StatusFailed
	StatusRetrying   = core.StatusRetrying
)

// Error variables.
var (
	ErrNoActiveTokens  = core.ErrNoActiveTokens
	ErrInvalidTenantID = core.ErrInvalidTenantID
	ErrJobNotFound     = core.ErrJobNotFound
	ErrJobNotTerminal  = core.ErrJobNotTerminal
	ErrCacheFull       = core.ErrCacheFull
	ErrTooManyPrompts  = core.ErrTooManyPrompts
)

// NewBus creates an event bus shared by the scheduler, engine, and poller.
func NewBus() *Bus {
	return core.NewBus()
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return store.NewGormStore(db)
}

// NewGormStoreWithPool creates a GORM-backed store with connection pooling
// configured.
func NewGormStoreWithPool(db *gorm.DB, opts ...store.PoolOption) (*GormStore, error) {
	return store.NewGormStoreWithPool(db, opts...)
}

// NewRegistry creates a token pool registry.
func NewRegistry(s Store, opts ...tokenpool.Option) *Registry {
	return tokenpool.NewRegistry(s, opts...)
}

// WithPoolEmitter wires an event emitter into the registry.
func WithPoolEmitter(e core.Emitter) tokenpool.Option {
	return tokenpool.WithEmitter(e)
}

// NewHTTPClient creates a provider client for the given API base URL.
func NewHTTPClient(baseURL string, client *http.Client) *provider.HTTPClient {
	return provider.NewHTTPClient(baseURL, client)
}

// NewChain creates an artifact fallback chain over the given backends.
func NewChain(s Store, cache *MemoryCache, backends ...Backend) *Chain {
	return artifact.NewChain(s, cache, backends...)
}

// NewHTTPBackend creates an HTTP object-store backend.
func NewHTTPBackend(name, uploadURL string, client *http.Client) *artifact.HTTPBackend {
	return artifact.NewHTTPBackend(name, uploadURL, client)
}

// NewMemoryCache creates a bounded in-memory artifact cache.
func NewMemoryCache(maxEntries, maxBytes int) *MemoryCache {
	return artifact.NewMemoryCache(maxEntries, maxBytes)
}

// NewEngine creates a submission engine.
func NewEngine(s Store, registry *Registry, client ProviderClient, emitter core.Emitter, config submit.Config) *Engine {
	return submit.NewEngine(s, registry, client, emitter, config)
}

// DefaultEngineConfig returns the default submission engine configuration.
func DefaultEngineConfig() submit.Config {
	return submit.DefaultConfig()
}

// PreAssigned uses the batch-assigned token for the first attempt.
func PreAssigned(token *Token) TokenSource {
	return submit.PreAssigned(token)
}

// Rotate requests a fresh token for every attempt.
func Rotate() TokenSource {
	return submit.Rotate()
}

// NewPoller creates a completion poller.
func NewPoller(s Store, registry *Registry, client ProviderClient, chain *Chain, engine *Engine, emitter core.Emitter, config poller.Config) *Poller {
	return poller.New(s, registry, client, chain, engine, emitter, config)
}

// DefaultPollerConfig returns the default poller configuration.
func DefaultPollerConfig() poller.Config {
	return poller.DefaultConfig()
}

// NewScheduler creates the per-tenant queue manager.
func NewScheduler(s Store, registry *Registry, engine *Engine, p *Poller, plans PlanProvider, opts ...scheduler.Option) *Scheduler {
	return scheduler.New(s, registry, engine, p, plans, opts...)
}

// WithSchedulerBus shares an event bus with the scheduler.
func WithSchedulerBus(b *Bus) scheduler.Option {
	return scheduler.WithBus(b)
}

// NewStaticPlans creates a fixed plan provider with a fallback policy.
func NewStaticPlans(policies map[string]Policy, fallback Policy) PlanProvider {
	return plan.NewStatic(policies, fallback)
}

// DefaultPolicy returns the processing policy applied when no plan is
// known.
func DefaultPolicy() Policy {
	return plan.DefaultPolicy()
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(s Store, registry *Registry, emitter core.Emitter, config sweep.Config) *Sweeper {
	return sweep.New(s, registry, emitter, config)
}

// Schedule constructors.

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// ValidateTenantID validates a tenant identifier.
func ValidateTenantID(id string) error {
	return security.ValidateTenantID(id)
}

// SetDefaultLogger replaces the process default logger used by components
// that were not given one explicitly.
func SetDefaultLogger(logger *slog.Logger) {
	slog.SetDefault(logger)
}
