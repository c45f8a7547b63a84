package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/stream"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
//
// Every input line is either a JSON object {"message": "..."}, a JSON string, or raw text.
// Every stream event is written as one line (see stream.Event), followed by
// {"kind":"reply","reply":{...}} once the turn ends.
type JSONHandler struct {
	Reader *bufio.Reader
	Writer io.Writer

	mu  sync.Mutex
	enc *json.Encoder
}

type jsonInput struct {
	Message string `json:"message"`
}

type jsonOutput struct {
	Kind    string        `json:"kind"`
	Reply   *domain.Reply `json:"reply,omitempty"`
	Message string        `json:"message,omitempty"`
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		enc:    json.NewEncoder(w),
	}
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := h.Reader.ReadString('\n')
		text := strings.TrimSpace(line)
		if text == "" {
			if err != nil {
				return "", err
			}
			continue
		}

		msg := decodeInput(text)
		clean, serr := SanitizeInput(msg)
		if serr != nil {
			if oerr := h.SystemOutput(ctx, serr.Error()); oerr != nil {
				return "", oerr
			}
			if err != nil {
				return "", err
			}
			continue
		}
		return clean, nil
	}
}

func decodeInput(text string) string {
	var obj jsonInput
	if strings.HasPrefix(text, "{") && json.Unmarshal([]byte(text), &obj) == nil {
		return obj.Message
	}
	var s string
	if json.Unmarshal([]byte(text), &s) == nil {
		return s
	}
	return text
}

func (h *JSONHandler) Emitter() ports.Emitter {
	return stream.NewJSONLines(h.Writer)
}

func (h *JSONHandler) Reply(_ context.Context, reply domain.Reply) error {
	return h.encode(jsonOutput{Kind: "reply", Reply: &reply})
}

func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.encode(jsonOutput{Kind: "system", Message: msg})
}

func (h *JSONHandler) encode(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enc.Encode(v)
}
