package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediarelay/genqueue/pkg/core"
)

func TestMemoryCache_PutGet(t *testing.T) {
	cache := NewMemoryCache(4, 1024)

	url, err := cache.Put("job-1", []byte("artifact"))
	require.NoError(t, err)
	assert.Equal(t, core.MemoryURLPrefix+"job-1", url)

	data, ok := cache.Get("job-1")
	assert.True(t, ok)
	assert.Equal(t, []byte("artifact"), data)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCache_EntryLimit(t *testing.T) {
	cache := NewMemoryCache(2, 1024)

	_, err := cache.Put("job-1", []byte("a"))
	require.NoError(t, err)
	_, err = cache.Put("job-2", []byte("b"))
	require.NoError(t, err)

	_, err = cache.Put("job-3", []byte("c"))
	assert.ErrorIs(t, err, core.ErrCacheFull)
	assert.Equal(t, 2, cache.Len())
}

func TestMemoryCache_ByteLimit(t *testing.T) {
	cache := NewMemoryCache(10, 8)

	_, err := cache.Put("job-1", []byte("12345"))
	require.NoError(t, err)

	_, err = cache.Put("job-2", []byte("67890"))
	assert.ErrorIs(t, err, core.ErrCacheFull)
}

func TestMemoryCache_ReplaceReleasesBudget(t *testing.T) {
	cache := NewMemoryCache(10, 8)

	_, err := cache.Put("job-1", []byte("12345678"))
	require.NoError(t, err)

	// Replacing the same job's artifact reuses its byte budget.
	_, err = cache.Put("job-1", []byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCache_DeleteReleasesBudget(t *testing.T) {
	cache := NewMemoryCache(1, 1024)

	_, err := cache.Put("job-1", []byte("a"))
	require.NoError(t, err)

	cache.Delete("job-1")
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Put("job-2", []byte("b"))
	assert.NoError(t, err)
}

func TestNewMemoryCache_DefaultBounds(t *testing.T) {
	cache := NewMemoryCache(0, -1)
	assert.Equal(t, DefaultMaxEntries, cache.maxEntries)
	assert.Equal(t, DefaultMaxBytes, cache.maxBytes)
}
