package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend stores raw artifact bytes and returns a reference URL.
type Backend interface {
	Name() string
	Upload(ctx context.Context, jobID string, data []byte) (url string, err error)
}

// HTTPBackend uploads artifacts to an HTTP object store.
type HTTPBackend struct {
	name      string
	uploadURL string
	client    *http.Client
}

// NewHTTPBackend creates a backend that PUTs artifacts under uploadURL.
func NewHTTPBackend(name, uploadURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPBackend{name: name, uploadURL: uploadURL, client: client}
}

func (b *HTTPBackend) Name() string { return b.name }

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload stores the artifact and returns the URL reported by the store.
func (b *HTTPBackend) Upload(ctx context.Context, jobID string, data []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s", b.uploadURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload returned %d: %s", resp.StatusCode, body)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.URL != "" {
		return parsed.URL, nil
	}
	// Stores that return an empty body host the object at the upload path.
	return endpoint, nil
}

// RedisBackend stores artifacts in Redis with a TTL. It sits between the
// persistent object stores and the in-memory fallback in a typical chain.
type RedisBackend struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisBackend creates a Redis-backed artifact store.
func NewRedisBackend(rdb *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, ttl: ttl}
}

func (b *RedisBackend) Name() string { return "redis" }

func redisKey(jobID string) string {
	return fmt.Sprintf("genqueue:artifact:%s", jobID)
}

// Upload stores the artifact bytes under a job-scoped key.
func (b *RedisBackend) Upload(ctx context.Context, jobID string, data []byte) (string, error) {
	if err := b.rdb.Set(ctx, redisKey(jobID), data, b.ttl).Err(); err != nil {
		return "", err
	}
	return "redis://" + redisKey(jobID), nil
}

// Fetch retrieves a previously uploaded artifact.
func (b *RedisBackend) Fetch(ctx context.Context, jobID string) ([]byte, error) {
	return b.rdb.Get(ctx, redisKey(jobID)).Bytes()
}
