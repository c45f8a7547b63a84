package domain

// PlannerResponse is what the planner returns for one step: either a final
// answer (no calls) or one or more requested actions with optional accompanying text.
type PlannerResponse struct {
	Text  string       `json:"text,omitempty"`
	Calls []ActionCall `json:"calls,omitempty"`
}

// Final builds a response that completes the turn.
func Final(text string) PlannerResponse {
	return PlannerResponse{Text: text}
}

// RequestActions builds a response asking for the given calls, in order.
func RequestActions(calls []ActionCall, text string) PlannerResponse {
	return PlannerResponse{Text: text, Calls: calls}
}

// IsFinal reports whether the response requests no actions.
func (r PlannerResponse) IsFinal() bool {
	return len(r.Calls) == 0
}
