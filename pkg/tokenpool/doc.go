// Package tokenpool manages the shared pool of provider credentials:
// round-robin slice reservation for batches, least-recently-used selection
// for retries, usage and error accounting, and disablement.
package tokenpool
