// Package scheduler provides the per-tenant queue manager. Each tenant gets
// one FIFO queue and at most one processing loop; batches are assigned
// tokens via one round-robin reservation and dispatched concurrently.
package scheduler
