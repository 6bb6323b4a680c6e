package store

import (
	"context"
	"time"

	"github.com/mediarelay/genqueue/pkg/core"
)

// Store defines the persistence layer for job records, tokens, and the
// rotation cursor. Reads are consistent after writes per job id.
type Store interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	CreateJobs(ctx context.Context, jobs []*core.Job) error
	GetJob(ctx context.Context, jobID string) (*core.Job, error)

	// UpdateJobStatus advances a job's status. A job already in a terminal
	// state is left untouched (stale observations are discarded), and a
	// durable artifact URL is never overwritten by a weaker reference.
	// Non-empty url and errMsg values are written alongside the status.
	UpdateJobStatus(ctx context.Context, jobID, tenantID string, status core.JobStatus, url, errMsg string) error

	// UpdateJobFields applies a partial update without status guards.
	UpdateJobFields(ctx context.Context, jobID string, fields map[string]any) error

	// RequeueJob moves a terminally failed job back to pending. This is the
	// only path out of a terminal state and requires an explicit caller.
	RequeueJob(ctx context.Context, jobID, tenantID string) (*core.Job, error)

	// Queries
	JobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error)
	StaleProcessingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*core.Job, error)

	// Tokens
	CreateToken(ctx context.Context, token *core.Token) error
	GetToken(ctx context.Context, tokenID string) (*core.Token, error)
	// ActiveTokens returns the active pool in stable order; round-robin
	// offsets index into this ordering.
	ActiveTokens(ctx context.Context) ([]*core.Token, error)
	RecordTokenUse(ctx context.Context, tokenID string, at time.Time) error
	RecordTokenError(ctx context.Context, tokenID string) error
	DisableToken(ctx context.Context, tokenID, reason string) error

	// AdvanceCursor atomically advances the shared rotation cursor by count
	// (modulo poolSize) and returns the pre-advance offset.
	AdvanceCursor(ctx context.Context, count, poolSize int) (int, error)
}
