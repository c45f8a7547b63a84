package domain

// TurnStatus is the terminal state a turn ended in.
type TurnStatus string

const (
	// TurnDone is the only successful terminal state.
	TurnDone TurnStatus = "done"
	// TurnBudgetExhausted means the planner kept requesting actions past the step budget.
	TurnBudgetExhausted TurnStatus = "budget_exhausted"
	// TurnUnavailable means the planner failed after its retries.
	TurnUnavailable TurnStatus = "unavailable"
	// TurnCancelled means the caller cancelled the request.
	TurnCancelled TurnStatus = "cancelled"
)

// Completed reports whether the stream for this status ends with the normal
// completion marker rather than the abort marker.
func (s TurnStatus) Completed() bool {
	return s == TurnDone || s == TurnBudgetExhausted
}

// Reply is the outcome of one turn.
type Reply struct {
	ConversationID string     `json:"conversation_id,omitempty"`
	Status         TurnStatus `json:"status"`
	// Text is the single human-readable terminal message.
	Text string `json:"text"`
	// Steps counts executed action rounds.
	Steps int `json:"steps"`
	// PlannerCalls counts planner attempts, retries included.
	PlannerCalls int            `json:"planner_calls"`
	Results      []ActionResult `json:"results,omitempty"`
	// Messages is the final conversation, seed included.
	Messages []Message `json:"messages,omitempty"`
}
