package artifact

import (
	"sync"

	"github.com/mediarelay/genqueue/pkg/core"
)

// MemoryCache is the size-bounded, last-resort artifact store. Entries are
// keyed by job id and survive only for the life of the process.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	totalBytes int

	maxEntries int
	maxBytes   int
}

// Default bounds for the in-memory cache.
const (
	DefaultMaxEntries = 256
	DefaultMaxBytes   = 64 << 20 // 64 MiB
)

// NewMemoryCache creates a cache bounded by entry count and total bytes.
// Non-positive bounds fall back to the defaults.
func NewMemoryCache(maxEntries, maxBytes int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &MemoryCache{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// Put stores an artifact and returns its memory reference. A full cache is
// an error: the caller surfaces it rather than silently dropping output.
func (c *MemoryCache) Put(jobID string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, replacing := c.entries[jobID]
	newTotal := c.totalBytes + len(data)
	if replacing {
		newTotal -= len(existing)
	}
	if (!replacing && len(c.entries) >= c.maxEntries) || newTotal > c.maxBytes {
		return "", core.ErrCacheFull
	}

	c.entries[jobID] = data
	c.totalBytes = newTotal
	return core.MemoryURLPrefix + jobID, nil
}

// Get retrieves an artifact by job id.
func (c *MemoryCache) Get(jobID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[jobID]
	return data, ok
}

// Delete discards an artifact, releasing its budget.
func (c *MemoryCache) Delete(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.entries[jobID]; ok {
		c.totalBytes -= len(data)
		delete(c.entries, jobID)
	}
}

// Len returns the number of cached artifacts.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
