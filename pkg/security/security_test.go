package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediarelay/genqueue/pkg/core"
)

func TestValidateTenantID_Valid(t *testing.T) {
	valid := []string{
		"tenant-a",
		"user_123",
		"org.example",
		"a",
		"A1-b2_c3.d4",
	}
	for _, id := range valid {
		assert.NoError(t, ValidateTenantID(id), "id: %s", id)
	}
}

func TestValidateTenantID_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"-starts-with-hyphen",
		".starts-with-dot",
		"has spaces",
		"has/slash",
		"injection'; DROP TABLE jobs;--",
		strings.Repeat("a", MaxTenantIDLength+1),
	}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateTenantID(id), core.ErrInvalidTenantID, "id: %q", id)
	}
}

func TestSanitizeErrorMessage_StripsControlCharacters(t *testing.T) {
	msg := "error\x00with\x01nulls\nand newline\ttab"
	got := SanitizeErrorMessage(msg)
	assert.Equal(t, "errorwithnulls\nand newline\ttab", got)
}

func TestSanitizeErrorMessage_Truncates(t *testing.T) {
	long := strings.Repeat("x", MaxErrorMessageLength*2)
	got := SanitizeErrorMessage(long)
	assert.LessOrEqual(t, len([]rune(got)), MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitizeErrorMessage_Empty(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
}

func TestClampRetries(t *testing.T) {
	assert.Equal(t, 1, ClampRetries(0))
	assert.Equal(t, 1, ClampRetries(-5))
	assert.Equal(t, 10, ClampRetries(10))
	assert.Equal(t, MaxInstantRetries, ClampRetries(MaxInstantRetries+1))
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, 1, ClampBatchSize(0))
	assert.Equal(t, 4, ClampBatchSize(4))
	assert.Equal(t, MaxBatchSize, ClampBatchSize(MaxBatchSize*2))
}
