package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/aretw0/tally/pkg/ports"
)

// JSONLines writes every event as one JSON object per line, using the Event shape.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   closer
}

// NewJSONLines creates a JSONLines emitter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (s *JSONLines) Progress(_ context.Context, ev ports.ProgressEvent) error {
	if !s.c.open() {
		return ErrClosed
	}
	return s.encode(Event{Kind: EventProgress, Progress: &ev})
}

func (s *JSONLines) Delta(_ context.Context, text string) error {
	if !s.c.open() {
		return ErrClosed
	}
	return s.encode(Event{Kind: EventDelta, Text: text})
}

func (s *JSONLines) Complete(context.Context) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.encode(Event{Kind: EventDone})
}

func (s *JSONLines) Abort(_ context.Context, reason string) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.encode(Event{Kind: EventAbort, Reason: reason})
}

func (s *JSONLines) encode(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}
