// Package scripted provides a deterministic planner that replays a fixed
// sequence of responses. It backs the engine tests and the offline CLI mode.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned when the planner is called more times than it has steps.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted planner reply. Exactly one of Response, Err or Func is used,
// checked in reverse order.
type Step struct {
	Response domain.PlannerResponse
	Err      error
	Func     func(ctx context.Context, req ports.PlanRequest) (domain.PlannerResponse, error)
}

// Reply returns a step producing resp.
func Reply(resp domain.PlannerResponse) Step { return Step{Response: resp} }

// Fail returns a step producing err.
func Fail(err error) Step { return Step{Err: err} }

// Do returns a step delegating to fn.
func Do(fn func(ctx context.Context, req ports.PlanRequest) (domain.PlannerResponse, error)) Step {
	return Step{Func: fn}
}

// Planner replays its steps in order and records every request it receives.
type Planner struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	repeat   bool
	requests []ports.PlanRequest
}

// Option configures a Planner.
type Option func(*Planner)

// WithRepeatLast keeps returning the last step instead of ErrScriptExhausted.
func WithRepeatLast() Option {
	return func(p *Planner) {
		p.repeat = true
	}
}

// New creates a scripted planner.
func New(steps []Step, opts ...Option) *Planner {
	p := &Planner{steps: steps}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.Planner = (*Planner)(nil)

// Plan implements ports.Planner.
func (p *Planner) Plan(ctx context.Context, req ports.PlanRequest) (domain.PlannerResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if p.next >= len(p.steps) {
		if !p.repeat || len(p.steps) == 0 {
			p.mu.Unlock()
			return domain.PlannerResponse{}, ErrScriptExhausted
		}
		p.next = len(p.steps) - 1
	}
	step := p.steps[p.next]
	p.next++
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.PlannerResponse{}, err
	}
	switch {
	case step.Func != nil:
		return step.Func(ctx, req)
	case step.Err != nil:
		return domain.PlannerResponse{}, step.Err
	default:
		return step.Response, nil
	}
}

// Requests returns a copy of every request received so far.
func (p *Planner) Requests() []ports.PlanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.PlanRequest(nil), p.requests...)
}

// Calls is the number of times Plan was invoked.
func (p *Planner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Remaining is the number of unplayed steps.
func (p *Planner) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(len(p.steps)-p.next, 0)
}

// scriptFile is the YAML shape accepted by Load.
//
//	steps:
//	  - calls:
//	      - name: create_task
//	        args: {title: Call Bob}
//	  - text: Created the task.
//	  - error: upstream unavailable
type scriptFile struct {
	Steps []struct {
		Text  string              `yaml:"text"`
		Error string              `yaml:"error"`
		Calls []domain.ActionCall `yaml:"calls"`
	} `yaml:"steps"`
	Repeat bool `yaml:"repeat"`
}

// Load reads a YAML script.
func Load(r io.Reader) (*Planner, error) {
	var f scriptFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	if len(f.Steps) == 0 {
		return nil, errors.New("script has no steps")
	}

	steps := make([]Step, 0, len(f.Steps))
	for i, s := range f.Steps {
		if s.Error != "" {
			if s.Text != "" || len(s.Calls) > 0 {
				return nil, fmt.Errorf("step %d: error cannot be combined with text or calls", i+1)
			}
			steps = append(steps, Fail(errors.New(s.Error)))
			continue
		}
		for j, c := range s.Calls {
			if c.Name == "" {
				return nil, fmt.Errorf("step %d call %d: name is required", i+1, j+1)
			}
		}
		steps = append(steps, Reply(domain.RequestActions(s.Calls, s.Text)))
	}

	var opts []Option
	if f.Repeat {
		opts = append(opts, WithRepeatLast())
	}
	return New(steps, opts...), nil
}
