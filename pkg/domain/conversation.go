package domain

import "fmt"

// Conversation is the ordered, append-only message log of one turn.
// It enforces that every ActionRequest is followed by exactly one ActionResult
// per requested call, in the requested order, before anything else is appended.
//
// A Conversation is owned by a single goroutine and is not safe for concurrent use.
type Conversation struct {
	messages []Message
	pending  []ActionCall
}

// NewConversation creates a conversation seeded with the given messages.
func NewConversation(seed ...Message) (*Conversation, error) {
	c := &Conversation{}
	for i, m := range seed {
		if err := c.Append(m); err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
	}
	return c, nil
}

// Append adds a message at the end of the conversation.
func (c *Conversation) Append(m Message) error {
	switch m.Kind {
	case KindActionResult:
		if m.Result == nil || len(c.pending) == 0 {
			return ErrUnexpectedResult
		}
		next := c.pending[0]
		if m.Result.CallID != next.ID || m.Result.Name != next.Name {
			return fmt.Errorf("%w: got %s/%s, want %s/%s",
				ErrUnexpectedResult, m.Result.Name, m.Result.CallID, next.Name, next.ID)
		}
		c.pending = c.pending[1:]
	case KindActionRequest:
		if len(c.pending) > 0 {
			return ErrPendingResults
		}
		if len(m.Calls) == 0 {
			return ErrEmptyActionRequest
		}
		c.pending = append([]ActionCall(nil), m.Calls...)
	case KindUserText, KindAssistantText:
		if len(c.pending) > 0 {
			return ErrPendingResults
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	c.messages = append(c.messages, m)
	return nil
}

// Messages returns a copy of the messages in append order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Pending returns how many action results are still owed to the last request.
func (c *Conversation) Pending() int { return len(c.pending) }

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
