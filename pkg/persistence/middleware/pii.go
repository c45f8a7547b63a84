package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.TranscriptStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks action arguments whose
// keys match any of the patterns before the transcript is stored.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.TranscriptStore) ports.TranscriptStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, conversationID string, transcript *domain.Transcript) error {
	// Clone so the caller's in-memory conversation keeps the real values.
	cloned := *transcript
	cloned.Messages = make([]domain.Message, len(transcript.Messages))
	for i, msg := range transcript.Messages {
		if len(msg.Calls) > 0 {
			calls := make([]domain.ActionCall, len(msg.Calls))
			for j, c := range msg.Calls {
				c.Args = deepCopyMap(c.Args)
				maskMap(c.Args, m.patterns)
				calls[j] = c
			}
			msg.Calls = calls
		}
		cloned.Messages[i] = msg
	}
	return m.next.Save(ctx, conversationID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, conversationID string) (*domain.Transcript, error) {
	return m.next.Load(ctx, conversationID)
}

func (m *piiMiddleware) Delete(ctx context.Context, conversationID string) error {
	return m.next.Delete(ctx, conversationID)
}

func (m *piiMiddleware) List(ctx context.Context, ownerID string) ([]string, error) {
	return m.next.List(ctx, ownerID)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
