package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the tally banner, the version and the active user to w.
func PrintBanner(w io.Writer, version, user string) {
	p := termenv.EnvColorProfile()
	lines := []struct {
		text, color string
	}{
		{"  _        _ _       ", "#34d399"},
		{" | |_ __ _| | |_  _  ", "#2dd4bf"},
		{" |  _/ _` | | | || | ", "#22d3ee"},
		{"  \\__\\__,_|_|_|\\_, | ", "#38bdf8"},
		{"               |__/  ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	meta := termenv.String(fmt.Sprintf(" %s · signed in as %s", version, user)).Faint()
	fmt.Fprintln(w, meta)
	fmt.Fprintln(w, termenv.String(" /help for commands, /exit to quit").Faint())
	fmt.Fprintln(w)
}

// Status colours a turn status for terminal output.
func Status(status string) string {
	p := termenv.EnvColorProfile()
	color := "#fbbf24"
	switch status {
	case "done":
		color = "#34d399"
	case "unavailable", "cancelled":
		color = "#f87171"
	}
	return termenv.String(status).Foreground(p.Color(color)).String()
}
