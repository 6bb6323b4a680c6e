package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mediarelay/genqueue/pkg/core"
)

// HTTPClient implements Client against an HTTP generation API. The start
// call returns an operation name which is polled until done.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the given API base URL. Per-call
// deadlines come from the caller's context, so the embedded http.Client
// carries no timeout of its own.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, client: client}
}

type startResponse struct {
	Operation string         `json:"operation"`
	Error     *errorResponse `json:"error,omitempty"`
}

type pollResponse struct {
	Done     bool           `json:"done"`
	Error    *errorResponse `json:"error,omitempty"`
	Response *resultBody    `json:"response,omitempty"`
}

type resultBody struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Start submits a generation request.
func (c *HTTPClient) Start(ctx context.Context, credential string, payload []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/generations?key=%s", c.baseURL, url.QueryEscape(credential))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &core.TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.TransientNetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &core.AuthenticationError{Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}

	var parsed startResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed start response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error (%s): %s", parsed.Error.Status, parsed.Error.Message)
	}
	if parsed.Operation == "" {
		return "", fmt.Errorf("start response missing operation handle")
	}
	return parsed.Operation, nil
}

// Poll reports the current state of an operation.
func (c *HTTPClient) Poll(ctx context.Context, credential, operation string) (*PollResult, error) {
	endpoint := fmt.Sprintf("%s/v1/%s?key=%s", c.baseURL, operation, url.QueryEscape(credential))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &core.TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransientNetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransientNetworkError{Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)}
	}

	var parsed pollResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed poll response: %w", err)
	}

	if !parsed.Done {
		return &PollResult{}, nil
	}
	if parsed.Error != nil {
		return &PollResult{
			Terminal: true,
			Category: parsed.Error.Status,
			Message:  parsed.Error.Message,
		}, nil
	}
	result := &PollResult{Terminal: true, Success: true}
	if parsed.Response != nil {
		result.ArtifactURL = parsed.Response.URL
		result.ArtifactBytes = parsed.Response.Data
	}
	return result, nil
}
