package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/tally/pkg/ports"
)

// SSE writes a text/event-stream response.
//
//	event: progress  data: <ProgressEvent JSON>
//	event: delta     data: {"text": "..."}
//	event: done      data: {}
//	event: abort     data: {"reason": "..."}
type SSE struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	c       closer
}

// NewSSE prepares w for streaming. It fails when w cannot flush.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by %T", w)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSE{w: w, flusher: flusher}, nil
}

func (s *SSE) Progress(_ context.Context, ev ports.ProgressEvent) error {
	if !s.c.open() {
		return ErrClosed
	}
	return s.event(string(EventProgress), ev)
}

func (s *SSE) Delta(_ context.Context, text string) error {
	if !s.c.open() {
		return ErrClosed
	}
	return s.event(string(EventDelta), map[string]string{"text": text})
}

func (s *SSE) Complete(context.Context) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.event(string(EventDone), struct{}{})
}

func (s *SSE) Abort(_ context.Context, reason string) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.event(string(EventAbort), map[string]string{"reason": reason})
}

func (s *SSE) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, strings.TrimSpace(string(data))); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Closed reports whether Complete or Abort was already written.
func (s *SSE) Closed() bool {
	return !s.c.open()
}

// Trailer writes one more named event after the stream closed, e.g. the final reply.
func (s *SSE) Trailer(name string, payload any) error {
	return s.event(name, payload)
}
