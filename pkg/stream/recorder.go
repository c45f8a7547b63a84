package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/tally/pkg/ports"
)

// Recorder keeps every event in memory. It is meant for tests and for
// callers that only want the final text.
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	deltas   []string
	c        closer
	complete bool
	aborted  bool
	reason   string
}

func (r *Recorder) Progress(_ context.Context, ev ports.ProgressEvent) error {
	return r.add(Event{Kind: EventProgress, Progress: &ev})
}

func (r *Recorder) Delta(_ context.Context, text string) error {
	if err := r.add(Event{Kind: EventDelta, Text: text}); err != nil {
		return err
	}
	r.mu.Lock()
	r.deltas = append(r.deltas, text)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Complete(context.Context) error {
	if !r.c.close() {
		return ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = true
	r.events = append(r.events, Event{Kind: EventDone})
	return nil
}

func (r *Recorder) Abort(_ context.Context, reason string) error {
	if !r.c.close() {
		return ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
	r.reason = reason
	r.events = append(r.events, Event{Kind: EventAbort, Reason: reason})
	return nil
}

func (r *Recorder) add(ev Event) error {
	if !r.c.open() {
		return ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Text is the concatenation of every delta.
func (r *Recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.deltas, "")
}

// Deltas returns the individual text chunks.
func (r *Recorder) Deltas() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deltas...)
}

// Completed reports whether the stream ended normally.
func (r *Recorder) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Aborted reports whether the stream was aborted, and why.
func (r *Recorder) Aborted() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason, r.aborted
}

// ProgressEvents returns the progress events recorded so far.
func (r *Recorder) ProgressEvents() []ports.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.ProgressEvent
	for _, ev := range r.events {
		if ev.Kind == EventProgress {
			out = append(out, *ev.Progress)
		}
	}
	return out
}
