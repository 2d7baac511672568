package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates provider job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusTimedOut  JobStatus = "TIMED_OUT"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether a job may move from s to next.
// Transitions only move forward: PENDING -> RUNNING -> SUCCEEDED|FAILED, and any
// non-terminal state may time out.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
	default:
		return false
	}
	return next.rank() > s.rank()
}

// ProviderJob is an in-flight generation issued by a single provider.
type ProviderJob struct {
	Provider    string
	Handle      string
	SubmittedAt time.Time
	Status      JobStatus
	// Detail carries the provider's failure reason once the job is FAILED or TIMED_OUT.
	Detail string
}

// Advance moves the job to next, returning an error for backwards or post-terminal moves.
// Advancing to the current status is a no-op.
func (j *ProviderJob) Advance(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("job %s/%s: invalid transition %s -> %s", j.Provider, j.Handle, j.Status, next)
	}
	j.Status = next
	return nil
}
