// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package events implements a process-local publish/subscribe notifier that
// decouples the task runner from its consumers (CLI output, logs, tests).
// There is no replay: a listener only sees events published after it
// subscribed.
package events

import "time"

// Kind identifies the type of an event.
type Kind string

const (
	KindBatchStart      Kind = "batch-start"
	KindItemProgress    Kind = "item-progress"
	KindItemComplete    Kind = "item-complete"
	KindBatchCancelled  Kind = "batch-cancelled"
	KindBatchComplete   Kind = "batch-complete"
	KindCancelRequested Kind = "cancel-requested"
	KindRunnerShutdown  Kind = "runner-shutdown"
)

// Event is a single notification. Which fields are set depends on Kind:
//
//	batch-start       BatchID, Total
//	item-progress     BatchID, Completed, Total, Input
//	item-complete     BatchID, Input, Output, Success, Cached, Message or Err
//	batch-cancelled   BatchID, Completed, Total
//	batch-complete    BatchID, Total, Succeeded, Failed
//	cancel-requested  Cancelled (number of pending jobs short-circuited)
//	runner-shutdown   (no payload)
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	BatchID string    `json:"batch_id,omitempty"`

	Completed int `json:"completed,omitempty"`
	Total     int `json:"total,omitempty"`
	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
	Cancelled int `json:"cancelled,omitempty"`

	Input   string `json:"input,omitempty"`
	Output  string `json:"output,omitempty"`
	Success bool   `json:"success,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
	Message string `json:"message,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Listener receives published events. HandleEvent runs on the publisher's
// goroutine and must return promptly; a returned error is logged and does
// not affect delivery to other listeners.
type Listener interface {
	HandleEvent(Event) error
}

// ListenerFunc adapts an ordinary function to the Listener interface.
type ListenerFunc func(Event) error

// HandleEvent calls f(ev).
func (f ListenerFunc) HandleEvent(ev Event) error { return f(ev) }
