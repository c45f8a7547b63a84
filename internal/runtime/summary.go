package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/tally/pkg/domain"
)

// Abort reasons sent to the emitter when a turn does not complete.
const (
	AbortCancelled   = "cancelled"
	AbortUnavailable = "planner unavailable"
)

const unavailableApology = "Sorry, the assistant is unavailable right now."

// BudgetMessage is the terminal text for a turn that ran out of steps.
func BudgetMessage(budget int, results []domain.ActionResult, notExecuted []domain.ActionCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I reached the step limit (%d) before finishing your request.", budget)
	writeSummary(&b, results, notExecuted)
	return b.String()
}

// UnavailableMessage is the terminal text for a turn whose planner could not be reached.
func UnavailableMessage(results []domain.ActionResult) string {
	var b strings.Builder
	b.WriteString(unavailableApology)
	writeSummary(&b, results, nil)
	return b.String()
}

// CancelledMessage is recorded in the reply of a cancelled turn. It is not streamed.
func CancelledMessage(results []domain.ActionResult, notExecuted []domain.ActionCall) string {
	var b strings.Builder
	b.WriteString("Request cancelled.")
	writeSummary(&b, results, notExecuted)
	return b.String()
}

// DoneMessage is used when the planner finishes without any text.
func DoneMessage(results []domain.ActionResult) string {
	if len(results) == 0 {
		return "Done."
	}
	var b strings.Builder
	b.WriteString("Done.")
	writeSummary(&b, results, nil)
	return b.String()
}

func writeSummary(b *strings.Builder, results []domain.ActionResult, notExecuted []domain.ActionCall) {
	var completed, failed []string
	for _, r := range results {
		if r.Outcome.OK() {
			completed = append(completed, fmt.Sprintf("%s: %s", r.Name, r.Outcome.Summary()))
		} else {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Outcome.Reason()))
		}
	}
	var skipped []string
	for _, c := range notExecuted {
		skipped = append(skipped, c.Name)
	}

	writeSection(b, "Completed", completed)
	writeSection(b, "Failed", failed)
	writeSection(b, "Not executed", skipped)
	if len(completed)+len(failed)+len(skipped) == 0 {
		b.WriteString("\nNo actions were performed.")
	}
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:", title)
	for _, l := range lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
}
