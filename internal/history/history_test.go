package history_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/history"
	"github.com/AmosPulse/proof-stamp/internal/report"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	return string(data)
}

func TestAppendCreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), history.FileName)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	run := report.Run{
		Outcomes: []types.ItemOutcome{
			{TaskID: "platform.provision-database", IssueNumber: 4, Disposition: types.DispositionCreated},
			{TaskID: "platform.tune-indexes", Disposition: types.DispositionSkippedBudget},
		},
		Consumed: 6,
		Ceiling:  40,
		Elapsed:  65 * time.Second,
	}
	if err := history.Append(path, now, run); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := readFile(t, path)
	for _, want := range []string{
		"# Factory Run History",
		"## Run 2026-03-14T09:30:00Z",
		"- Items: 1 created, 0 reconciled, 1 skipped (budget), 0 skipped (blocked), 0 failed",
		"- Budget: 6h consumed of 40h",
		"- Elapsed: 1m5s",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("history missing %q:\n%s", want, got)
		}
	}
}

func TestAppendIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), history.FileName)
	first := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	if err := history.Append(path, first, report.Run{Ceiling: 40}); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := history.Append(path, second, report.Run{Ceiling: 40, DryRun: true}); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	got := readFile(t, path)
	if n := strings.Count(got, "# Factory Run History"); n != 1 {
		t.Errorf("header written %d times, want 1", n)
	}
	firstAt := strings.Index(got, "## Run 2026-03-14")
	secondAt := strings.Index(got, "## Run 2026-03-15")
	if firstAt < 0 || secondAt < 0 || firstAt > secondAt {
		t.Errorf("runs missing or out of order:\n%s", got)
	}
	if !strings.Contains(got[secondAt:], "- Mode: dry run") {
		t.Errorf("dry-run marker missing from second entry:\n%s", got)
	}
}

func TestAppendRecordsEscalations(t *testing.T) {
	path := filepath.Join(t.TempDir(), history.FileName)

	run := report.Run{
		Ceiling: 40,
		Escalations: []types.Escalation{
			{Kind: types.EscalationStuck, TaskID: "platform.tune-indexes", Message: "pending too long"},
		},
	}
	if err := history.Append(path, time.Now(), run); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := readFile(t, path); !strings.Contains(got, "- Escalation [stuck] platform.tune-indexes: pending too long") {
		t.Errorf("escalation line missing:\n%s", got)
	}
}

func TestAppendMissingDirectoryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", history.FileName)
	if err := history.Append(path, time.Now(), report.Run{}); err == nil {
		t.Fatal("Append into a missing directory did not fail")
	}
}
