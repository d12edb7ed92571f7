// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/mdconv/internal/logging"
)

// Subscription identifies a registered listener. Pass it to Unsubscribe to
// remove the listener.
type Subscription uint64

type entry struct {
	id       Subscription
	listener Listener
}

// Notifier fans events out to subscribed listeners. The zero value is not
// usable; construct one with NewNotifier and pass it to the components that
// publish.
type Notifier struct {
	mu        sync.Mutex
	listeners []entry
	nextID    Subscription
	logger    *slog.Logger
}

// NewNotifier returns an empty notifier. A nil logger discards log output.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{logger: logger.With(slog.String("component", "events"))}
}

// Subscribe registers l and returns its subscription handle. Subscribing the
// same listener twice registers it twice.
func (n *Notifier) Subscribe(l Listener) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.listeners = append(n.listeners, entry{id: n.nextID, listener: l})
	return n.nextID
}

// Unsubscribe removes the listener registered under s. Unknown handles are
// ignored.
func (n *Notifier) Unsubscribe(s Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.listeners {
		if e.id == s {
			// Copy so snapshots already handed out are not disturbed.
			next := make([]entry, 0, len(n.listeners)-1)
			next = append(next, n.listeners[:i]...)
			next = append(next, n.listeners[i+1:]...)
			n.listeners = next
			return
		}
	}
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Publish delivers ev synchronously to every listener registered at the time
// of the call. The lock is released before any listener runs.
func (n *Notifier) Publish(ev Event) {
	if n == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	n.mu.Lock()
	snapshot := n.listeners
	n.mu.Unlock()

	for _, e := range snapshot {
		if err := n.deliver(e.listener, ev); err != nil {
			n.logger.Warn("listener failed",
				slog.String("kind", string(ev.Kind)),
				slog.Uint64("subscription", uint64(e.id)),
				slog.String("error", err.Error()))
		}
	}
}

func (n *Notifier) deliver(l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleEvent(ev)
}

// Stream subscribes a channel-backed listener with the given buffer size.
// When the buffer is full the event is dropped rather than blocking the
// publisher; Dropped on the returned stream reports how many were lost.
func (n *Notifier) Stream(buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	s := &Stream{ch: make(chan Event, buffer), n: n}
	s.sub = n.Subscribe(s)
	return s
}

// Stream is a buffered channel of events. Close it to unsubscribe.
type Stream struct {
	ch      chan Event
	n       *Notifier
	sub     Subscription
	dropped atomic.Int64
	mu      sync.Mutex
	closed  bool
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Event { return s.ch }

// Dropped returns the number of events discarded because the buffer was full.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// HandleEvent implements Listener.
func (s *Stream) HandleEvent(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Close unsubscribes the stream and closes its channel. It is safe to call
// more than once.
func (s *Stream) Close() {
	s.n.Unsubscribe(s.sub)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
