package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/tally/pkg/domain"
)

// Limits on text accepted from users, whichever surface it arrives on.
const (
	// DefaultMaxInputSize caps a single message or history turn, in bytes.
	DefaultMaxInputSize    = 4096
	// DefaultMaxHistoryTurns caps the number of prior turns a request may carry.
	DefaultMaxHistoryTurns = 64

	EnvMaxInputSize    = "TALLY_MAX_INPUT_SIZE"
	EnvMaxHistoryTurns = "TALLY_MAX_HISTORY_TURNS"
)

var (
	ErrInputTooLarge  = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8    = errors.New("input contains invalid UTF-8 sequences")
	ErrHistoryTooLong = errors.New("history has too many turns")
	ErrInvalidHistory = errors.New("invalid history turn")
)

// SanitizeInput enforces the size limit, rejects invalid UTF-8 and drops
// control characters other than newline, tab and carriage return.
func SanitizeInput(input string) (string, error) {
	if limit := MaxInputSize(); len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, unsafeControl) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if unsafeControl(r) {
			return -1
		}
		return r
	}, input), nil
}

// SanitizeHistory applies SanitizeInput to every turn and caps the turn count.
// The returned slice is a copy; errors name the offending turn.
func SanitizeHistory(turns []domain.HistoryTurn) ([]domain.HistoryTurn, error) {
	if limit := MaxHistoryTurns(); len(turns) > limit {
		return nil, fmt.Errorf("%w: turns=%d limit=%d", ErrHistoryTooLong, len(turns), limit)
	}
	if len(turns) == 0 {
		return nil, nil
	}
	out := make([]domain.HistoryTurn, len(turns))
	for i, turn := range turns {
		text, err := SanitizeInput(turn.Text)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrInvalidHistory, i, err)
		}
		out[i] = domain.HistoryTurn{Role: turn.Role, Text: text}
	}
	return out, nil
}

// MaxRequestBytes bounds a whole request body: a full history plus the
// message, with room for JSON framing.
func MaxRequestBytes() int64 {
	return int64(MaxInputSize()) * int64(MaxHistoryTurns()+2)
}

// MaxInputSize returns the per-text limit in bytes, honoring EnvMaxInputSize.
func MaxInputSize() int {
	return envLimit(EnvMaxInputSize, DefaultMaxInputSize)
}

// MaxHistoryTurns returns the history turn limit, honoring EnvMaxHistoryTurns.
func MaxHistoryTurns() int {
	return envLimit(EnvMaxHistoryTurns, DefaultMaxHistoryTurns)
}

func envLimit(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
