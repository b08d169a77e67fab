// Package history appends one markdown block per orchestrator run to the
// factory history file. History is append-only: past entries are never
// rewritten, so the file doubles as an audit trail of what each run did.
package history

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/dispatch"
	"github.com/AmosPulse/proof-stamp/internal/report"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// FileName is the history file inside the state directory.
const FileName = "HISTORY.md"

const fileHeader = `# Factory Run History

One block per orchestrator run, newest last.
`

// Append adds one run block to the history file at path, creating the file
// with its header on first use. History failures are non-fatal: callers
// should log a warning rather than failing the run.
func Append(path string, now time.Time, run report.Run) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("history: open %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("history: stat %q: %w", path, err)
	}

	var b strings.Builder
	if fi.Size() == 0 {
		b.WriteString(fileHeader)
	}
	writeEntry(&b, now, run)

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("history: write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("history: close %q: %w", path, err)
	}
	return nil
}

func writeEntry(b *strings.Builder, now time.Time, run report.Run) {
	fmt.Fprintf(b, "\n## Run %s\n\n", now.UTC().Format(time.RFC3339))
	if run.RunID != "" {
		fmt.Fprintf(b, "- Run ID: %s\n", run.RunID)
	}
	if run.DryRun {
		b.WriteString("- Mode: dry run\n")
	}

	var counts types.Counts
	for _, oc := range run.Outcomes {
		counts.Add(oc.Disposition)
	}
	fmt.Fprintf(b, "- Items: %d created, %d reconciled, %d skipped (budget), %d skipped (blocked), %d failed\n",
		counts.Created, counts.Reconciled, counts.SkippedBudget, counts.SkippedBlocked, counts.Failed)
	fmt.Fprintf(b, "- Budget: %s consumed of %s\n",
		dispatch.FormatHours(run.Consumed), dispatch.FormatHours(run.Ceiling))
	fmt.Fprintf(b, "- Elapsed: %s\n", run.Elapsed.Round(time.Second))

	for _, esc := range run.Escalations {
		subject := esc.TaskID
		if subject == "" {
			subject = "epic " + esc.EpicKey
		}
		fmt.Fprintf(b, "- Escalation [%s] %s: %s\n", esc.Kind, subject, esc.Message)
	}
}
