package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the column at which rendered replies wrap.
const DefaultWordWrap = 88

// NewRenderer returns a function that renders markdown replies using glamour.
// When the terminal renderer cannot be built the text is returned unchanged.
func NewRenderer(wordWrap int) func(string) (string, error) {
	if wordWrap <= 0 {
		wordWrap = DefaultWordWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(out, "\n") + "\n", nil
	}
}
