package dispatch

import "time"

// JobID identifies one submitted job.
type JobID string

// State is the lifecycle state of a job.
type State string

const (
	// StateQueued means the job waits in its kind's FIFO, initially or for a retry.
	StateQueued State = "queued"
	// StateRunning means a worker is executing an attempt.
	StateRunning State = "running"
	// StateSucceeded is terminal: an attempt returned nil.
	StateSucceeded State = "succeeded"
	// StateFailed is terminal: the attempt budget is exhausted, the error was
	// permanent, or the dispatcher shut down before the job finished.
	StateFailed State = "failed"
)

// Terminal reports whether no further attempts will be made.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is a unit of work owned by the dispatcher. Listeners receive copies.
type Job struct {
	ID          JobID     `json:"id"`
	Kind        string    `json:"kind"`
	Payload     any       `json:"payload"`
	State       State     `json:"state"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	RunAt       time.Time `json:"run_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubmitOption configures a single submission.
type SubmitOption func(*Job)

// WithAttempts overrides the kind's attempt budget for this job. Values below 1 are ignored.
func WithAttempts(n int) SubmitOption {
	return func(j *Job) {
		if n >= 1 {
			j.MaxAttempts = n
		}
	}
}
