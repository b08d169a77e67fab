// Package report renders the end-of-run summary: one line per dispatched
// item, the disposition counts, budget standing, and any escalations that
// need a human.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/dispatch"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// Run collects everything the end-of-run report shows.
type Run struct {
	RunID       string
	Outcomes    []types.ItemOutcome
	Escalations []types.Escalation
	Consumed    float64
	Ceiling     float64
	DryRun      bool
	Elapsed     time.Duration
}

const line = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Render returns the full report as a string. Print writes it to stdout;
// tests assert on the rendered form.
func Render(run Run) string {
	var b strings.Builder

	title := "DISPATCH REPORT"
	if run.DryRun {
		title += " (DRY RUN)"
	}
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", line, title, line)

	var counts types.Counts
	boardAttached := 0
	for _, oc := range run.Outcomes {
		counts.Add(oc.Disposition)
		if oc.BoardAttached {
			boardAttached++
		}
		b.WriteString(itemLine(oc))
	}
	if len(run.Outcomes) == 0 {
		b.WriteString("  nothing to dispatch\n")
	}

	remaining := run.Ceiling - run.Consumed
	if remaining < 0 {
		remaining = 0
	}

	b.WriteString(line + "\n")
	if run.RunID != "" {
		fmt.Fprintf(&b, "  %-22s %s\n", "Run:", run.RunID)
	}
	fmt.Fprintf(&b, "  %-22s %d\n", "Created:", counts.Created)
	fmt.Fprintf(&b, "  %-22s %d\n", "Reconciled:", counts.Reconciled)
	fmt.Fprintf(&b, "  %-22s %d\n", "Skipped (budget):", counts.SkippedBudget)
	fmt.Fprintf(&b, "  %-22s %d\n", "Skipped (blocked):", counts.SkippedBlocked)
	fmt.Fprintf(&b, "  %-22s %d\n", "Failed:", counts.Failed)
	fmt.Fprintf(&b, "  %-22s %d\n", "Board Attached:", boardAttached)
	fmt.Fprintf(&b, "  %-22s %s of %s (%s remaining)\n", "Budget:",
		dispatch.FormatHours(run.Consumed), dispatch.FormatHours(run.Ceiling), dispatch.FormatHours(remaining))
	fmt.Fprintf(&b, "  %-22s %s\n", "Elapsed:", formatDuration(run.Elapsed))

	if len(run.Escalations) > 0 {
		b.WriteString(line + "\n")
		b.WriteString("ESCALATIONS\n")
		for _, esc := range run.Escalations {
			b.WriteString(escalationLine(esc))
		}
	}
	b.WriteString(line + "\n")
	return b.String()
}

// Print writes the rendered report to stdout.
func Print(run Run) {
	fmt.Print(Render(run))
}

func itemLine(oc types.ItemOutcome) string {
	s := fmt.Sprintf("  %-16s %s", oc.Disposition, oc.TaskID)
	if oc.IssueNumber > 0 {
		s += fmt.Sprintf("  #%d", oc.IssueNumber)
	}
	if oc.Reason != "" {
		s += fmt.Sprintf("  (%s)", oc.Reason)
	}
	return s + "\n"
}

func escalationLine(esc types.Escalation) string {
	subject := esc.TaskID
	if subject == "" {
		subject = "epic " + esc.EpicKey
	}
	s := fmt.Sprintf("  [%s] %s", esc.Kind, subject)
	if esc.Message != "" {
		s += ": " + esc.Message
	}
	return s + "\n"
}

// formatDuration converts a duration to a human-readable string.
// Examples: "0s", "45s", "3m 15s", "1h 2m 30s".
func formatDuration(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		return "0s"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
