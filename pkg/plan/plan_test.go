package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 4, p.BatchSize)
	assert.Equal(t, 5*time.Second, p.InterBatchDelay)
	assert.Equal(t, 20, p.MaxPromptsPerBatch)
}

func TestPolicy_Clamped(t *testing.T) {
	p := Policy{BatchSize: 0, InterBatchDelay: -time.Second, MaxPromptsPerBatch: 0}.Clamped()
	assert.Equal(t, 1, p.BatchSize)
	assert.Equal(t, time.Duration(0), p.InterBatchDelay)
	assert.Equal(t, DefaultPolicy().MaxPromptsPerBatch, p.MaxPromptsPerBatch)

	p = Policy{BatchSize: 1000, InterBatchDelay: time.Second, MaxPromptsPerBatch: 5}.Clamped()
	assert.Equal(t, 100, p.BatchSize)
	assert.Equal(t, 5, p.MaxPromptsPerBatch)
}

func TestStatic_PolicyFor(t *testing.T) {
	premium := Policy{BatchSize: 8, InterBatchDelay: time.Second, MaxPromptsPerBatch: 50}
	provider := NewStatic(map[string]Policy{"tenant-premium": premium}, Policy{})

	got := provider.PolicyFor(context.Background(), "tenant-premium")
	assert.Equal(t, 8, got.BatchSize)

	fallback := provider.PolicyFor(context.Background(), "tenant-unknown")
	assert.Equal(t, DefaultPolicy(), fallback)
}

func TestStatic_NilMapServesFallback(t *testing.T) {
	provider := NewStatic(nil, Policy{BatchSize: 2, InterBatchDelay: time.Second, MaxPromptsPerBatch: 10})
	got := provider.PolicyFor(context.Background(), "anyone")
	assert.Equal(t, 2, got.BatchSize)
	assert.Equal(t, 10, got.MaxPromptsPerBatch)
}
