package core

import (
	"time"
)

// JobStatus represents the current state of a generation job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying" // failed over to a new provider operation
)

// Terminal reports whether the status is a final state. Terminal states are
// durable and are never advanced automatically; a failed job leaves terminal
// state only through an explicit regenerate action.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one tenant-submitted unit of generation work. The payload is opaque
// to the scheduler and forwarded to the provider as-is.
type Job struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"index;size:255;not null"`
	Payload  []byte `gorm:"type:bytes"`

	// Sequence is the job's order within its submission batch. Token
	// assignment is deterministic in it; completion order is not.
	Sequence int `gorm:"default:0"`

	Status  JobStatus `gorm:"index;size:20;default:'pending'"`
	TokenID string    `gorm:"index;size:36"`

	// Operation is the opaque handle returned by the provider's start call,
	// used for subsequent polling.
	Operation string `gorm:"size:512"`

	ArtifactURL string `gorm:"size:2048"`
	LastError   string `gorm:"type:text"`

	// InstantRetries counts synchronous start attempts; PollRetries counts
	// new operations started from the polling loop. The two budgets are
	// independent.
	InstantRetries int `gorm:"default:0"`
	PollRetries    int `gorm:"default:0"`

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// HasDurableArtifact reports whether the job already references an artifact
// in durable storage. A durable reference is never downgraded: later
// pipeline stages must skip re-upload when this returns true.
func (j *Job) HasDurableArtifact() bool {
	return IsDurableURL(j.ArtifactURL)
}

// IsDurableURL reports whether a stored artifact reference is durable.
// References into the ephemeral in-memory cache carry the memory scheme.
func IsDurableURL(url string) bool {
	return url != "" && !isMemoryURL(url)
}

// MemoryURLPrefix is the scheme used for artifact references held only in
// the in-memory fallback cache.
const MemoryURLPrefix = "memory://"

func isMemoryURL(url string) bool {
	return len(url) >= len(MemoryURLPrefix) && url[:len(MemoryURLPrefix)] == MemoryURLPrefix
}
