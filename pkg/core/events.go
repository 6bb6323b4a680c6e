package core

import "time"

// Event is the interface for all scheduler events.
type Event interface {
	eventMarker()
}

// Emitter broadcasts events to subscribers. Emit must never block.
type Emitter interface {
	Emit(e Event)
}

// JobStarted is emitted when a job's provider operation starts.
type JobStarted struct {
	Job       *Job
	TokenID   string
	Attempt   int
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job reaches completed with an artifact.
type JobCompleted struct {
	Job       *Job
	URL       string
	InMemory  bool
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails permanently.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a job fails over to a new provider operation.
type JobRetrying struct {
	Job       *Job
	Attempt   int
	Reason    string
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}

// TokenDisabled is emitted when a token is removed from rotation.
type TokenDisabled struct {
	TokenID   string
	Reason    string
	Timestamp time.Time
}

func (*TokenDisabled) eventMarker() {}

// QueueAutoReset is emitted when the watchdog force-resets a stuck tenant
// queue.
type QueueAutoReset struct {
	TenantID  string
	Dropped   int
	Since     time.Time
	Timestamp time.Time
}

func (*QueueAutoReset) eventMarker() {}
