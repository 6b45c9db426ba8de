// Package jobqueue runs background work with retry support. The
// processor uses it for deal enrichment so that slow deal lookups
// never stall the frame loop.
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by queue operations
var (
	ErrNilAction    = errors.New("cannot enqueue nil action")
	ErrQueueStopped = errors.New("job queue has been stopped")
	ErrQueueFull    = errors.New("job queue is full")
)

// RetryConfig controls the retry behavior of an action.
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used for enrichment work.
func DefaultRetryConfig(enabled bool) RetryConfig {
	if !enabled {
		return RetryConfig{}
	}
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Action is a unit of background work. Execute must honor context
// cancellation; Description identifies the action in logs and stats.
type Action interface {
	Execute(ctx context.Context) error
	Description() string
}

// JobStatus represents the lifecycle state of a queued job.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
	JobStatusRetrying
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}

// Job is a queued action together with its retry bookkeeping.
type Job struct {
	ID          string
	Action      Action
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	NextRetryAt time.Time
	Status      JobStatus
	LastError   error
	Config      RetryConfig
}

// Stats is a snapshot of queue activity counters.
type Stats struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	DroppedJobs    int
	RetryAttempts  int
}
