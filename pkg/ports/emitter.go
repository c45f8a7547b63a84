package ports

import (
	"context"

	"github.com/aretw0/tally/pkg/domain"
)

// ProgressStage names an intermediate engine event surfaced to the caller.
type ProgressStage string

const (
	StagePlanning    ProgressStage = "planning"
	StageActionStart ProgressStage = "action_start"
	StageActionEnd   ProgressStage = "action_end"
)

// ProgressEvent is an optional intermediate update.
type ProgressEvent struct {
	Stage   ProgressStage         `json:"stage"`
	Step    int                   `json:"step"`
	Action  string                `json:"action,omitempty"`
	CallID  string                `json:"call_id,omitempty"`
	Outcome *domain.ActionOutcome `json:"outcome,omitempty"`
}

// Emitter delivers a turn's answer to the caller incrementally.
//
// A stream is a sequence of Progress and Delta calls closed by exactly one of
// Complete (answer complete) or Abort (answer aborted); callers distinguish
// the two without inspecting the text.
type Emitter interface {
	Progress(ctx context.Context, event ProgressEvent) error
	Delta(ctx context.Context, text string) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context, reason string) error
}
