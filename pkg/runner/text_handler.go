package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/stream"
)

// ContentRenderer transforms the assistant's text before it is printed.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
//
// Without a Renderer the answer is streamed to Writer as it arrives.
// With one, the answer is collected and rendered once the turn ends.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	// Progress prints one line per action as the turn runs.
	Progress bool
	// Prompt is printed before every read. Defaults to "> ".
	Prompt string

	inputChan chan inputResult
	startOnce sync.Once

	mu   sync.Mutex
	turn *stream.Recorder
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerProgress toggles the per-action progress lines.
func WithTextHandlerProgress(enabled bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Progress = enabled
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		Prompt: "> ",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honor context cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, h.Prompt)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			if clean == "" {
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) Emitter() ports.Emitter {
	var opts []stream.WriterOption
	if h.Progress {
		opts = append(opts, stream.WithProgressFormat(FormatProgress))
	}
	if h.Renderer == nil {
		return stream.NewWriter(h.Writer, opts...)
	}

	rec := &stream.Recorder{}
	h.mu.Lock()
	h.turn = rec
	h.mu.Unlock()
	return &renderedTurn{Recorder: rec, progress: stream.NewWriter(h.Writer, opts...)}
}

func (h *TextHandler) Reply(_ context.Context, reply domain.Reply) error {
	h.mu.Lock()
	rec := h.turn
	h.turn = nil
	h.mu.Unlock()
	if rec == nil {
		return nil
	}

	text := rec.Text()
	if text != "" {
		if rendered, err := h.Renderer(text); err == nil {
			text = rendered
		}
		fmt.Fprintln(h.Writer, strings.TrimRight(text, "\n"))
	}
	if reason, ok := rec.Aborted(); ok {
		fmt.Fprintf(h.Writer, "[aborted: %s]\n", reason)
	}
	return nil
}

func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}

// renderedTurn records the answer for later rendering and prints progress immediately.
type renderedTurn struct {
	*stream.Recorder
	progress *stream.Writer
}

func (t *renderedTurn) Progress(ctx context.Context, ev ports.ProgressEvent) error {
	if err := t.progress.Progress(ctx, ev); err != nil {
		return err
	}
	return t.Recorder.Progress(ctx, ev)
}

// FormatProgress renders action progress as a single line. Planning events are skipped.
func FormatProgress(ev ports.ProgressEvent) string {
	switch ev.Stage {
	case ports.StageActionStart:
		return fmt.Sprintf("  · %s", ev.Action)
	case ports.StageActionEnd:
		if ev.Outcome == nil {
			return ""
		}
		if ev.Outcome.OK() {
			return fmt.Sprintf("  ✓ %s: %s", ev.Action, ev.Outcome.Summary())
		}
		return fmt.Sprintf("  ✗ %s: %s", ev.Action, ev.Outcome.Reason())
	default:
		return ""
	}
}
