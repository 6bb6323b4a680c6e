package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusRetrying.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestIsDurableURL(t *testing.T) {
	assert.False(t, IsDurableURL(""))
	assert.False(t, IsDurableURL("memory://job-1"))
	assert.True(t, IsDurableURL("https://cdn.example.com/artifacts/job-1"))
	assert.True(t, IsDurableURL("redis://genqueue:artifact:job-1"))

	// The memory scheme only matches as a prefix
	assert.True(t, IsDurableURL("https://example.com/memory://weird"))
}

func TestJob_HasDurableArtifact(t *testing.T) {
	job := &Job{}
	assert.False(t, job.HasDurableArtifact())

	job.ArtifactURL = MemoryURLPrefix + job.ID
	assert.False(t, job.HasDurableArtifact())

	job.ArtifactURL = "https://cdn.example.com/a/b"
	assert.True(t, job.HasDurableArtifact())
}
