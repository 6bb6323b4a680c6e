// Package plan supplies per-tenant processing policy. The surrounding
// application derives policy from billing tiers; this package only defines
// the interface and safe defaults.
package plan

import (
	"context"
	"time"

	"github.com/mediarelay/genqueue/pkg/security"
)

// Policy controls how a tenant's queue is drained.
type Policy struct {
	// BatchSize is how many jobs are dispatched per loop iteration.
	BatchSize int

	// InterBatchDelay is the sleep between batches.
	InterBatchDelay time.Duration

	// MaxPromptsPerBatch caps a single submission.
	MaxPromptsPerBatch int
}

// DefaultPolicy returns the policy applied when no plan is known.
func DefaultPolicy() Policy {
	return Policy{
		BatchSize:          4,
		InterBatchDelay:    5 * time.Second,
		MaxPromptsPerBatch: 20,
	}
}

// Clamped returns the policy with out-of-range values forced back to safe
// bounds.
func (p Policy) Clamped() Policy {
	p.BatchSize = security.ClampBatchSize(p.BatchSize)
	if p.InterBatchDelay < 0 {
		p.InterBatchDelay = 0
	}
	if p.MaxPromptsPerBatch < 1 {
		p.MaxPromptsPerBatch = DefaultPolicy().MaxPromptsPerBatch
	}
	return p
}

// Provider resolves the processing policy for a tenant.
type Provider interface {
	PolicyFor(ctx context.Context, tenantID string) Policy
}

// Static is a Provider backed by a fixed map, falling back to a default.
type Static struct {
	policies map[string]Policy
	fallback Policy
}

// NewStatic creates a Static provider. A nil map serves the fallback to
// every tenant; a zero fallback means DefaultPolicy.
func NewStatic(policies map[string]Policy, fallback Policy) *Static {
	if fallback == (Policy{}) {
		fallback = DefaultPolicy()
	}
	return &Static{policies: policies, fallback: fallback}
}

// PolicyFor returns the tenant's policy, clamped to safe bounds.
func (s *Static) PolicyFor(_ context.Context, tenantID string) Policy {
	if p, ok := s.policies[tenantID]; ok {
		return p.Clamped()
	}
	return s.fallback.Clamped()
}
