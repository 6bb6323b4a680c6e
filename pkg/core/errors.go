package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrNoActiveTokens  = errors.New("genqueue: no active tokens available")
	ErrInvalidPoolSize = errors.New("genqueue: token pool size must be positive")
	ErrInvalidSlice    = errors.New("genqueue: reservation count must be positive")
	ErrInvalidTenantID = errors.New("genqueue: invalid tenant id")
	ErrJobNotFound     = errors.New("genqueue: job not found")
	ErrJobNotTerminal  = errors.New("genqueue: job is not in a terminal failed state")
	ErrJobNotOwned     = errors.New("genqueue: job does not belong to tenant")
	ErrArtifactMissing = errors.New("genqueue: provider returned neither artifact bytes nor a url")
	ErrCacheFull       = errors.New("genqueue: in-memory artifact cache is full")
	ErrTooManyPrompts  = errors.New("genqueue: batch exceeds the plan's prompt limit")
)

// TransientNetworkError marks a network-level failure (connection reset,
// request timeout) that is safe to retry at the same layer.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError marks an unauthorized/invalid-credential signal from
// the provider. The token that produced it must be disabled pool-wide.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ProviderTransientError marks a provider-side terminal response in a
// known-transient category (high traffic, deadline expired, soft content
// flags). It is retried by starting a new operation, under a bounded quota.
type ProviderTransientError struct {
	Category string
	Err      error
}

func (e *ProviderTransientError) Error() string {
	return fmt.Sprintf("transient provider error (%s): %v", e.Category, e.Err)
}

func (e *ProviderTransientError) Unwrap() error {
	return e.Err
}

// ProviderTerminalError marks a provider rejection that must not be
// retried; the job fails with the provider's category in the message.
type ProviderTerminalError struct {
	Category string
	Err      error
}

func (e *ProviderTerminalError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Category, e.Err)
}

func (e *ProviderTerminalError) Unwrap() error {
	return e.Err
}

// StorageBackendError marks a failed artifact upload to one backend in the
// fallback chain. The chain cascades to the next backend on this error.
type StorageBackendError struct {
	Backend string
	Err     error
}

func (e *StorageBackendError) Error() string {
	return fmt.Sprintf("storage backend %q: %v", e.Backend, e.Err)
}

func (e *StorageBackendError) Unwrap() error {
	return e.Err
}

// StuckStateError records a tenant queue that was auto-reset by the
// watchdog. It is logged, never silently ignored.
type StuckStateError struct {
	TenantID string
	Since    time.Time
}

func (e *StuckStateError) Error() string {
	return fmt.Sprintf("tenant %s processing loop stuck since %s, auto-reset", e.TenantID, e.Since.Format(time.RFC3339))
}
