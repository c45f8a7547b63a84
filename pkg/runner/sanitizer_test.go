package runner

import (
	"strings"
	"testing"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := DefaultMaxInputSize

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeInput(strings.Repeat("a", tt.inputSize))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "log 120 for lunch", "log 120 for lunch"},
		{"Safe Controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "10")

	_, err := SanitizeInput("12345678901")
	assert.ErrorIs(t, err, ErrInputTooLarge)

	_, err = SanitizeInput("12345")
	assert.NoError(t, err)

	t.Setenv(EnvMaxInputSize, "nope")
	assert.Equal(t, DefaultMaxInputSize, MaxInputSize())
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("\xbd\xb2\x3d\xbc\x20\xe2\x8c\x98")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestSanitizeHistory(t *testing.T) {
	turns := []domain.HistoryTurn{
		{Role: domain.RoleUser, Text: "remind me\x1b[31m\x00"},
		{Role: domain.RoleAssistant, Text: "Sure.\n"},
	}

	got, err := SanitizeHistory(turns)
	require.NoError(t, err)
	assert.Equal(t, "remind me[31m", got[0].Text)
	assert.Equal(t, "Sure.\n", got[1].Text)
	assert.Equal(t, "remind me\x1b[31m\x00", turns[0].Text, "input slice untouched")

	empty, err := SanitizeHistory(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSanitizeHistory_Rejects(t *testing.T) {
	_, err := SanitizeHistory([]domain.HistoryTurn{
		{Role: domain.RoleUser, Text: "ok"},
		{Role: domain.RoleUser, Text: strings.Repeat("x", DefaultMaxInputSize+1)},
	})
	assert.ErrorIs(t, err, ErrInvalidHistory)
	assert.ErrorIs(t, err, ErrInputTooLarge)
	assert.Contains(t, err.Error(), "turn 1")

	_, err = SanitizeHistory([]domain.HistoryTurn{{Text: "\xff"}})
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	t.Setenv(EnvMaxHistoryTurns, "2")
	_, err = SanitizeHistory(make([]domain.HistoryTurn, 3))
	assert.ErrorIs(t, err, ErrHistoryTooLong)
	assert.Equal(t, int64(DefaultMaxInputSize*4), MaxRequestBytes())
}
