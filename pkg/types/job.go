// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the mdconv pipeline:
// conversion jobs, their results, batch summaries, and configuration.
package types

import "time"

// ConversionJob is one request to turn a single input file into Markdown at
// a target output path. Jobs are created at submission time and never
// modified afterwards.
type ConversionJob struct {
	// Index is the job's position in the submitted batch.
	Index int `json:"index" yaml:"index"`

	// Input is the path of the source document.
	Input string `json:"input" yaml:"input"`

	// Output is the path the Markdown is written to.
	Output string `json:"output" yaml:"output"`

	// Options carries conversion options; they are recorded in the cache
	// alongside the output.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Outcome is the terminal classification of a job.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// JobState tracks a job through the runner.
type JobState int32

const (
	StatePending JobState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobResult is produced once per job when it reaches a terminal state.
type JobResult struct {
	Job     ConversionJob `json:"job" yaml:"job"`
	Outcome Outcome       `json:"outcome" yaml:"outcome"`
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
	Err     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`

	// Cached is set when the job was satisfied by the content cache and
	// never dispatched.
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// SuccessItem records a successfully converted (or cached) input.
type SuccessItem struct {
	Input   string        `json:"input" yaml:"input"`
	Output  string        `json:"output" yaml:"output"`
	Message string        `json:"message" yaml:"message"`
	Cached  bool          `json:"cached,omitempty" yaml:"cached,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// ErrorItem records a failed input.
type ErrorItem struct {
	Input string `json:"input" yaml:"input"`
	Error string `json:"error" yaml:"error"`
}

// BatchResult is the aggregate outcome of one batch, assembled as jobs
// complete. Successes and Errors are in completion order.
type BatchResult struct {
	BatchID   string        `json:"batch_id" yaml:"batch_id"`
	Total     int           `json:"total" yaml:"total"`
	Successes []SuccessItem `json:"successes" yaml:"successes"`
	Errors    []ErrorItem   `json:"errors" yaml:"errors"`

	// Omitted lists inputs that did not resolve because the batch was
	// cancelled, including results that arrived after cancellation.
	Omitted   []string      `json:"omitted,omitempty" yaml:"omitted,omitempty"`
	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Resolved returns the number of jobs accounted for.
func (r BatchResult) Resolved() int {
	return len(r.Successes) + len(r.Errors) + len(r.Omitted)
}

// CachedCount returns how many successes came from the cache.
func (r BatchResult) CachedCount() int {
	n := 0
	for _, s := range r.Successes {
		if s.Cached {
			n++
		}
	}
	return n
}

// HasFailures reports whether any job failed.
func (r BatchResult) HasFailures() bool {
	return len(r.Errors) > 0
}
