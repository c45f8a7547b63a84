package domain

import (
	"encoding/json"
	"fmt"
)

// ActionCall is a single action invocation requested by the planner.
// Args are raw and not yet validated.
type ActionCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ActionOutcome is the result of one executor invocation.
// It is exactly one of Succeeded(summary) or Failed(reason); the zero value is a failure
// with an empty reason.
type ActionOutcome struct {
	ok   bool
	text string
}

// Succeeded builds a successful outcome carrying a human-readable summary.
func Succeeded(summary string) ActionOutcome {
	return ActionOutcome{ok: true, text: summary}
}

// Failed builds a failed outcome carrying a human-readable reason.
func Failed(reason string) ActionOutcome {
	return ActionOutcome{ok: false, text: reason}
}

// Failedf is Failed with fmt.Sprintf formatting.
func Failedf(format string, args ...any) ActionOutcome {
	return Failed(fmt.Sprintf(format, args...))
}

// OK reports whether the action succeeded.
func (o ActionOutcome) OK() bool { return o.ok }

// Summary returns the success summary, or "" for a failure.
func (o ActionOutcome) Summary() string {
	if !o.ok {
		return ""
	}
	return o.text
}

// Reason returns the failure reason, or "" for a success.
func (o ActionOutcome) Reason() string {
	if o.ok {
		return ""
	}
	return o.text
}

func (o ActionOutcome) String() string {
	if o.ok {
		return "succeeded: " + o.text
	}
	return "failed: " + o.text
}

type outcomeJSON struct {
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MarshalJSON encodes the outcome as {"status":"succeeded","summary":...} or
// {"status":"failed","reason":...}.
func (o ActionOutcome) MarshalJSON() ([]byte, error) {
	if o.ok {
		return json.Marshal(outcomeJSON{Status: "succeeded", Summary: o.text})
	}
	return json.Marshal(outcomeJSON{Status: "failed", Reason: o.text})
}

func (o *ActionOutcome) UnmarshalJSON(data []byte) error {
	var raw outcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case "succeeded":
		*o = Succeeded(raw.Summary)
	case "failed":
		*o = Failed(raw.Reason)
	default:
		return fmt.Errorf("unknown outcome status %q", raw.Status)
	}
	return nil
}

// ActionResult pairs an outcome with the call that produced it.
type ActionResult struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	Outcome ActionOutcome `json:"outcome"`
}
