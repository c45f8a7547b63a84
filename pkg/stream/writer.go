package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/tally/pkg/ports"
)

// Writer streams plain text to an io.Writer. Progress is ignored unless a
// progress formatter is set. An aborted stream ends with a marker line.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	progress func(ports.ProgressEvent) string
	c        closer
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithProgressFormat renders progress events as lines of text.
func WithProgressFormat(fn func(ports.ProgressEvent) string) WriterOption {
	return func(w *Writer) {
		w.progress = fn
	}
}

// NewWriter creates a Writer emitter.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{w: w}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

func (s *Writer) Progress(_ context.Context, ev ports.ProgressEvent) error {
	if !s.c.open() {
		return ErrClosed
	}
	if s.progress == nil {
		return nil
	}
	line := s.progress(ev)
	if line == "" {
		return nil
	}
	return s.write(line + "\n")
}

func (s *Writer) Delta(_ context.Context, text string) error {
	if !s.c.open() {
		return ErrClosed
	}
	return s.write(text)
}

func (s *Writer) Complete(context.Context) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.write("\n")
}

func (s *Writer) Abort(_ context.Context, reason string) error {
	if !s.c.close() {
		return ErrClosed
	}
	return s.write(fmt.Sprintf("\n[aborted: %s]\n", reason))
}

func (s *Writer) write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, text)
	return err
}
