package tokenpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mediarelay/genqueue/pkg/core"
	"github.com/mediarelay/genqueue/pkg/store"
)

// Registry mediates access to the token pool. The rotation cursor lives in
// the store; the registry serializes advances in-process and keeps the
// rolling error window that puts misbehaving tokens into cooldown.
type Registry struct {
	store   store.Store
	logger  *slog.Logger
	emitter core.Emitter

	mu        sync.Mutex
	errWindow map[string][]time.Time

	windowDur         time.Duration
	cooldownThreshold int
}

// Option configures a Registry.
type Option interface {
	applyRegistry(*Registry)
}

type optionFunc func(*Registry)

func (f optionFunc) applyRegistry(r *Registry) { f(r) }

// WithErrorWindow sets the duration of the rolling error window.
func WithErrorWindow(d time.Duration) Option {
	return optionFunc(func(r *Registry) {
		r.windowDur = d
	})
}

// WithCooldownThreshold sets how many windowed errors put a token into
// cooldown.
func WithCooldownThreshold(n int) Option {
	return optionFunc(func(r *Registry) {
		r.cooldownThreshold = n
	})
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(r *Registry) {
		r.logger = logger
	})
}

// WithEmitter wires an event emitter for token disablement.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(r *Registry) {
		r.emitter = e
	})
}

// NewRegistry creates a token pool registry backed by the given store.
func NewRegistry(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:             s,
		logger:            slog.Default(),
		errWindow:         make(map[string][]time.Time),
		windowDur:         time.Hour,
		cooldownThreshold: 5,
	}
	for _, opt := range opts {
		opt.applyRegistry(r)
	}
	return r
}

// ActiveTokens returns the currently active pool, least recently used first.
func (r *Registry) ActiveTokens(ctx context.Context) ([]*core.Token, error) {
	return r.store.ActiveTokens(ctx)
}

// ReserveSlice atomically advances the shared rotation cursor by count
// (modulo poolSize) and returns the pre-advance offset. Callers assign
// token (start+i) mod poolSize to the i-th job of the batch.
func (r *Registry) ReserveSlice(ctx context.Context, count, poolSize int) (int, error) {
	if poolSize <= 0 {
		return 0, core.ErrInvalidPoolSize
	}
	if count <= 0 {
		return 0, core.ErrInvalidSlice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AdvanceCursor(ctx, count, poolSize)
}

// AssignBatch reserves a round-robin slice over the active pool and returns
// one token per job, assigned cyclically. Returns ErrNoActiveTokens when
// the pool is empty so callers fail the batch immediately instead of
// blocking.
func (r *Registry) AssignBatch(ctx context.Context, count int) ([]*core.Token, error) {
	tokens, err := r.store.ActiveTokens(ctx)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, core.ErrNoActiveTokens
	}

	start, err := r.ReserveSlice(ctx, count, len(tokens))
	if err != nil {
		return nil, err
	}

	assigned := make([]*core.Token, count)
	for i := 0; i < count; i++ {
		assigned[i] = tokens[(start+i)%len(tokens)]
	}
	return assigned, nil
}

// SelectNext returns the least-recently-used active token not in the
// exclusion set, skipping tokens in cooldown. When exclusions and cooldowns
// cover the whole pool a token is returned anyway as a last resort; only an
// empty active set yields ErrNoActiveTokens.
func (r *Registry) SelectNext(ctx context.Context, excluding map[string]struct{}) (*core.Token, error) {
	tokens, err := r.store.ActiveTokens(ctx)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, core.ErrNoActiveTokens
	}

	var best, fallback *core.Token
	for _, token := range tokens {
		if _, excluded := excluding[token.ID]; excluded {
			continue
		}
		if leastRecentlyUsed(token, fallback) {
			fallback = token
		}
		if r.inCooldown(token.ID) {
			continue
		}
		if leastRecentlyUsed(token, best) {
			best = token
		}
	}
	if best != nil {
		return best, nil
	}

	// Everything eligible is cooling down: best effort beats starvation.
	if fallback != nil {
		r.logger.Debug("all eligible tokens in cooldown, selecting anyway", "token_id", fallback.ID)
		return fallback, nil
	}

	// The exclusion set covers the whole pool.
	r.logger.Debug("exclusion set covers the pool, selecting least recently used")
	for _, token := range tokens {
		if leastRecentlyUsed(token, fallback) {
			fallback = token
		}
	}
	return fallback, nil
}

// leastRecentlyUsed reports whether candidate should replace current as the
// least-recently-used choice. Never-used tokens sort first.
func leastRecentlyUsed(candidate, current *core.Token) bool {
	if current == nil {
		return true
	}
	if candidate.LastUsedAt == nil {
		return current.LastUsedAt != nil
	}
	if current.LastUsedAt == nil {
		return false
	}
	return candidate.LastUsedAt.Before(*current.LastUsedAt)
}

// RecordUsage bumps a token's usage counters.
func (r *Registry) RecordUsage(ctx context.Context, tokenID string) error {
	return r.store.RecordTokenUse(ctx, tokenID, time.Now())
}

// RecordError bumps a token's error counters and its rolling window.
// Recording an error never disables the token by itself; disablement is a
// policy decision made by the submission engine or the maintenance sweep.
func (r *Registry) RecordError(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	now := time.Now()
	window := append(r.pruned(tokenID, now), now)
	r.errWindow[tokenID] = window
	r.mu.Unlock()

	return r.store.RecordTokenError(ctx, tokenID)
}

// ErrorsInWindow returns how many errors a token has accumulated inside the
// rolling window.
func (r *Registry) ErrorsInWindow(tokenID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	window := r.pruned(tokenID, time.Now())
	r.errWindow[tokenID] = window
	return len(window)
}

// Disable removes a token from rotation. Subsequent selections will not
// return it.
func (r *Registry) Disable(ctx context.Context, tokenID, reason string) error {
	if err := r.store.DisableToken(ctx, tokenID, reason); err != nil {
		return err
	}
	r.logger.Warn("token disabled", "token_id", tokenID, "reason", reason)
	if r.emitter != nil {
		r.emitter.Emit(&core.TokenDisabled{TokenID: tokenID, Reason: reason, Timestamp: time.Now()})
	}
	return nil
}

func (r *Registry) inCooldown(tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	window := r.pruned(tokenID, time.Now())
	r.errWindow[tokenID] = window
	return len(window) >= r.cooldownThreshold
}

// pruned drops window entries older than the window duration.
// Callers must hold r.mu.
func (r *Registry) pruned(tokenID string, now time.Time) []time.Time {
	window := r.errWindow[tokenID]
	cutoff := now.Add(-r.windowDur)
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
