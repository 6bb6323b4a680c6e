package artifact

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/store"
)

// Result reports where an artifact ended up.
type Result struct {
	URL      string
	InMemory bool
}

// Chain persists artifacts through an ordered list of backends with a final
// in-memory fallback. Each backend sits behind a circuit breaker so a dead
// store is skipped quickly instead of timing out on every job.
type Chain struct {
	backends []Backend
	breakers map[string]*gobreaker.CircuitBreaker
	cache    *MemoryCache
	store    store.Store
	logger   *slog.Logger
}

// NewChain creates a fallback chain. Backends are tried in the given order.
// A nil cache gets default bounds.
func NewChain(s store.Store, cache *MemoryCache, backends ...Backend) *Chain {
	if cache == nil {
		cache = NewMemoryCache(0, 0)
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(backends))
	for _, b := range backends {
		settings := gobreaker.Settings{
			Name:        b.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[b.Name()] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Chain{
		backends: backends,
		breakers: breakers,
		cache:    cache,
		store:    s,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the chain's logger.
func (c *Chain) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Cache returns the in-memory fallback cache.
func (c *Chain) Cache() *MemoryCache {
	return c.cache
}

// Persist lands a completed job's artifact. A provider-hosted URL is used
// as-is, and a durable URL already on the job record short-circuits the
// upload entirely, so concurrent completion paths perform at most one
// upload between them.
func (c *Chain) Persist(ctx context.Context, jobID, providerURL string, data []byte) (Result, error) {
	if providerURL != "" {
		return Result{URL: providerURL}, nil
	}

	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if job != nil && job.HasDurableArtifact() {
		return Result{URL: job.ArtifactURL}, nil
	}

	if len(data) == 0 {
		return Result{}, core.ErrArtifactMissing
	}

	for _, backend := range c.backends {
		url, err := c.upload(ctx, backend, jobID, data)
		if err == nil {
			return Result{URL: url}, nil
		}
		berr := &core.StorageBackendError{Backend: backend.Name(), Err: err}
		c.logger.Warn("artifact upload failed, trying next backend",
			"job_id", jobID, "backend", backend.Name(), "error", berr)
	}

	url, err := c.cache.Put(jobID, data)
	if err != nil {
		c.logger.Error("all artifact backends failed and memory cache is full", "job_id", jobID)
		return Result{}, err
	}
	c.logger.Warn("artifact held in memory only", "job_id", jobID, "url", url)
	return Result{URL: url, InMemory: true}, nil
}

func (c *Chain) upload(ctx context.Context, backend Backend, jobID string, data []byte) (string, error) {
	breaker := c.breakers[backend.Name()]
	result, err := breaker.Execute(func() (any, error) {
		return backend.Upload(ctx, jobID, data)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Debug("artifact backend breaker open", "backend", backend.Name())
		}
		return "", err
	}
	return result.(string), nil
}
