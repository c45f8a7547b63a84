package stream

import (
	"context"

	"github.com/aretw0/tally/pkg/ports"
)

// EventKind discriminates channel events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDelta    EventKind = "delta"
	EventDone     EventKind = "done"
	EventAbort    EventKind = "abort"
)

// Event is one item delivered by a Channel emitter.
type Event struct {
	Kind     EventKind            `json:"kind"`
	Text     string               `json:"text,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Progress *ports.ProgressEvent `json:"progress,omitempty"`
}

// Channel emits events on a Go channel. The channel is closed after the terminal event.
type Channel struct {
	ch chan Event
	c  closer
}

// NewChannel creates a Channel emitter with the given buffer.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Channel) Events() <-chan Event { return s.ch }

func (s *Channel) Progress(ctx context.Context, ev ports.ProgressEvent) error {
	return s.send(ctx, Event{Kind: EventProgress, Progress: &ev})
}

func (s *Channel) Delta(ctx context.Context, text string) error {
	return s.send(ctx, Event{Kind: EventDelta, Text: text})
}

func (s *Channel) Complete(ctx context.Context) error {
	return s.finish(ctx, Event{Kind: EventDone})
}

func (s *Channel) Abort(ctx context.Context, reason string) error {
	return s.finish(ctx, Event{Kind: EventAbort, Reason: reason})
}

func (s *Channel) send(ctx context.Context, ev Event) error {
	if !s.c.open() {
		return ErrClosed
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Channel) finish(ctx context.Context, ev Event) error {
	if !s.c.close() {
		return ErrClosed
	}
	defer close(s.ch)
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
