package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mediarelay/genqueue/pkg/core"
)

// Limits applied before anything reaches storage or the token pool.
const (
	// MaxTenantIDLength is the maximum length for tenant identifiers
	MaxTenantIDLength = 255

	// MaxPayloadSize is the maximum size in bytes for a job payload (1MB)
	MaxPayloadSize = 1 << 20

	// MaxInstantRetries is the hard limit for instant-retry attempts
	MaxInstantRetries = 100

	// MaxBatchSize is the hard limit for jobs dispatched per batch
	MaxBatchSize = 100

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validTenantID matches alphanumeric, hyphens, underscores, and dots
var validTenantID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.]*$`)

// ValidateTenantID validates a tenant identifier
func ValidateTenantID(id string) error {
	if id == "" || len(id) > MaxTenantIDLength {
		return core.ErrInvalidTenantID
	}
	if !validTenantID.MatchString(id) {
		return core.ErrInvalidTenantID
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Strip null bytes and control characters (except newlines/tabs)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures a retry budget is within limits
func ClampRetries(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxInstantRetries {
		return MaxInstantRetries
	}
	return n
}

// ClampBatchSize ensures a batch size is within limits
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
