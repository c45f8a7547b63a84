package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3", "Ana")

	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "signed in as Ana")
	assert.Contains(t, out, "/exit")
}

func TestStatus(t *testing.T) {
	for _, s := range []string{"done", "budget_exhausted", "unavailable"} {
		assert.Contains(t, Status(s), s)
	}
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer(40)
	out, err := render("Created **task** `Call Ana`")
	require.NoError(t, err)
	assert.Contains(t, out, "task")
	assert.Contains(t, out, "Call Ana")
}
