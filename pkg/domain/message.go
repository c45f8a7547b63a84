package domain

// MessageKind tags the variant held by a Message.
type MessageKind string

const (
	KindUserText      MessageKind = "user_text"
	KindAssistantText MessageKind = "assistant_text"
	KindActionRequest MessageKind = "action_request"
	KindActionResult  MessageKind = "action_result"
)

// Message is one entry of a Conversation.
//
// Text is set for user and assistant text (and optionally accompanies an
// action request), Calls is set for action requests and Result for action results.
type Message struct {
	Kind   MessageKind   `json:"kind"`
	Text   string        `json:"text,omitempty"`
	Calls  []ActionCall  `json:"calls,omitempty"`
	Result *ActionResult `json:"result,omitempty"`
}

// NewUserText builds a user message.
func NewUserText(text string) Message {
	return Message{Kind: KindUserText, Text: text}
}

// NewAssistantText builds an assistant message.
func NewAssistantText(text string) Message {
	return Message{Kind: KindAssistantText, Text: text}
}

// NewActionRequest builds an action request message. The calls slice is copied.
func NewActionRequest(calls []ActionCall, text string) Message {
	cp := make([]ActionCall, len(calls))
	copy(cp, calls)
	return Message{Kind: KindActionRequest, Text: text, Calls: cp}
}

// NewActionResult builds an action result message.
func NewActionResult(result ActionResult) Message {
	return Message{Kind: KindActionResult, Result: &result}
}

// Role of a history turn supplied by the caller.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryTurn is a role-tagged text turn of prior conversation history.
type HistoryTurn struct {
	Role Role   `json:"role" yaml:"role" mapstructure:"role"`
	Text string `json:"text" yaml:"text" mapstructure:"text"`
}

// Message converts the turn to a conversation message.
// Unknown roles are treated as user text.
func (h HistoryTurn) Message() Message {
	if h.Role == RoleAssistant {
		return NewAssistantText(h.Text)
	}
	return NewUserText(h.Text)
}
