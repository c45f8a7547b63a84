package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/tally/pkg/ports"
)

// ErrClosed is returned by emitters used after Complete or Abort.
var ErrClosed = errors.New("stream already closed")

// Discard is an emitter that drops everything.
var Discard ports.Emitter = discard{}

type discard struct{}

func (discard) Progress(context.Context, ports.ProgressEvent) error { return nil }
func (discard) Delta(context.Context, string) error                 { return nil }
func (discard) Complete(context.Context) error                      { return nil }
func (discard) Abort(context.Context, string) error                 { return nil }

// closer tracks the single terminal call of a stream.
type closer struct {
	mu     sync.Mutex
	closed bool
}

// open reports whether the stream still accepts events.
func (c *closer) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// close marks the stream closed and reports whether this call closed it.
func (c *closer) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}
