// Package poller tracks in-flight provider operations to their terminal
// state. One tracked polling task runs per started job; tasks fail over to
// a new operation after a threshold and retry transient provider failures
// under a bounded quota.
package poller
