// Package provider defines the client interface for the external
// media-generation service and classifies its failure modes.
//
// The provider is an opaque async job API: a synchronous start call returns
// an operation handle, and the handle is polled until a terminal result.
package provider
