package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticationError_Unwrap(t *testing.T) {
	inner := errors.New("provider returned 401")
	err := fmt.Errorf("start failed: %w", &AuthenticationError{Err: inner})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, inner, authErr.Err)
	assert.Contains(t, authErr.Error(), "authentication error")
}

func TestTransientNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset by peer")
	err := &TransientNetworkError{Err: inner}

	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "transient network error")
}

func TestProviderErrors_CarryCategory(t *testing.T) {
	transient := &ProviderTransientError{Category: "HIGH_TRAFFIC", Err: errors.New("try again")}
	assert.Contains(t, transient.Error(), "HIGH_TRAFFIC")

	terminal := &ProviderTerminalError{Category: "SAFETY_BLOCK", Err: errors.New("rejected")}
	assert.Contains(t, terminal.Error(), "SAFETY_BLOCK")
}

func TestStorageBackendError_NamesBackend(t *testing.T) {
	err := &StorageBackendError{Backend: "primary", Err: errors.New("503")}
	assert.Contains(t, err.Error(), `"primary"`)

	var berr *StorageBackendError
	assert.True(t, errors.As(fmt.Errorf("persist: %w", err), &berr))
}

func TestStuckStateError_Message(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := &StuckStateError{TenantID: "tenant-a", Since: since}
	assert.Contains(t, err.Error(), "tenant-a")
	assert.Contains(t, err.Error(), "2026-03-01T12:00:00Z")
}
