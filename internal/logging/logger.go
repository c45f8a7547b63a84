package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	Level  slog.Level
	Format string // auto, text, json
	Output io.Writer
}

// New creates a configured application logger.
// It writes to Stderr (to separate from Stdout chat/JSON output).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions builds a logger for the given format. "auto" picks a
// coloured handler when the output is a terminal and plain text otherwise.
func NewWithOptions(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: standardKeys,
		}))
	case "text":
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: standardKeys,
		}))
	}

	if isTerminal(out) {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:       opts.Level,
			TimeFormat:  time.Kitchen,
			ReplaceAttr: standardKeys,
		}))
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: standardKeys,
	}))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func standardKeys(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
