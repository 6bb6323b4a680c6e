// Package artifact persists completed generation output through an ordered
// chain of storage backends, degrading to an in-memory cache when every
// persistent backend fails.
package artifact
