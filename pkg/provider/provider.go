package provider

import (
	"context"
)

// PollResult is one observation of an in-flight operation.
type PollResult struct {
	// Terminal reports whether the operation has finished, successfully or
	// not. Non-terminal results carry no other fields.
	Terminal bool
	Success  bool

	// Exactly one of ArtifactURL and ArtifactBytes is set on success.
	// A non-empty URL is already hosted by the provider and is used as-is.
	ArtifactURL   string
	ArtifactBytes []byte

	// Category names the provider's error bucket on a failed terminal
	// result, e.g. "high traffic" or "content policy".
	Category string
	Message  string
}

// Client talks to the external generation provider.
type Client interface {
	// Start submits a generation request and returns an operation handle.
	// Failures are classified: authentication errors unwrap to
	// *core.AuthenticationError, network failures to
	// *core.TransientNetworkError.
	Start(ctx context.Context, credential string, payload []byte) (operation string, err error)

	// Poll reports the current state of an operation. Network-level
	// failures return an error; provider-side terminal failures return a
	// result with Terminal set and a Category.
	Poll(ctx context.Context, credential, operation string) (*PollResult, error)
}
