// Package eventstreamtest provides an in-memory Publisher for tests.
package eventstreamtest

import (
	"context"
	"sync"

	"github.com/papercomputeco/ephemera/pkg/eventstream"
)

// Recorder keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []eventstream.SessionEvent
	Err    error
}

func (r *Recorder) PublishSession(_ context.Context, event *eventstream.SessionEvent) error {
	if event == nil {
		return eventstream.ErrNilSessionEvent
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []eventstream.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventstream.SessionEvent(nil), r.events...)
}

// Reasons returns session id to reason for every event.
func (r *Recorder) Reasons() map[string]eventstream.Reason {
	out := map[string]eventstream.Reason{}
	for _, ev := range r.Events() {
		out[ev.SessionID] = ev.Reason
	}
	return out
}
