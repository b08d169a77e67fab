package dispatch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// TrackerLabel marks every issue the orchestrator owns. Listing open issues
// with this label is how a run finds work created by earlier runs.
const TrackerLabel = "ai-factory"

const (
	markerPrefix = "<!-- factory-task: "
	markerSuffix = " -->"
)

// Marker returns the idempotency line embedded in every issue body. Task
// identifiers are deterministic, so the same backlog entry always maps to
// the same marker across runs.
func Marker(taskID string) string {
	return markerPrefix + taskID + markerSuffix
}

// TaskIDFromBody extracts the task identifier from an issue body, or ""
// when the body carries no marker.
func TaskIDFromBody(body string) string {
	i := strings.Index(body, markerPrefix)
	if i < 0 {
		return ""
	}
	rest := body[i+len(markerPrefix):]
	j := strings.Index(rest, markerSuffix)
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:j])
}

// FormatHours renders an effort estimate for labels and the issue body:
// "2h", "2.5h", "0.5h".
func FormatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}

// BuildIssue assembles the full creation payload for a task.
func BuildIssue(e *types.Epic, t *types.Task) tracker.NewIssue {
	return tracker.NewIssue{
		Title:  IssueTitle(e, t),
		Body:   IssueBody(e, t),
		Labels: IssueLabels(e, t),
	}
}

// IssueTitle is "[<epic title>] <task title>".
func IssueTitle(e *types.Epic, t *types.Task) string {
	return fmt.Sprintf("[%s] %s", e.Title, t.Title)
}

// IssueLabels tags the issue with the tracker label, the owning epic, the
// priority, and the effort estimate.
func IssueLabels(e *types.Epic, t *types.Task) []string {
	return []string{
		TrackerLabel,
		"epic:" + types.Slug(e.Title),
		"priority:" + string(t.Priority),
		"estimate:" + FormatHours(t.EstimatedHours),
	}
}

// IssueBody renders the issue body: the marker line first, then the
// human-facing sections. The body contains no timestamps, so the same task
// renders byte-identical on every run; drift detection depends on that.
func IssueBody(e *types.Epic, t *types.Task) string {
	var b strings.Builder
	b.WriteString(Marker(t.ID))
	b.WriteString("\n\n## Task Details\n\n")
	fmt.Fprintf(&b, "**Epic:** %s\n", e.Title)
	fmt.Fprintf(&b, "**Estimate:** %s\n", FormatHours(t.EstimatedHours))
	category := string(t.CostCategory)
	if category == "" {
		category = "Not specified"
	}
	fmt.Fprintf(&b, "**Cost Category:** %s\n", category)

	b.WriteString("\n### Description\n")
	description := t.Description
	if description == "" {
		description = t.Title
	}
	b.WriteString(description)
	b.WriteString("\n")

	b.WriteString("\n### Dependencies\n")
	if len(t.DependsOn) == 0 {
		b.WriteString("- None\n")
	} else {
		for _, dep := range t.DependsOn {
			fmt.Fprintf(&b, "- %s\n", dep)
		}
	}

	b.WriteString("\n### Acceptance Criteria\n")
	b.WriteString("- [ ] Task implementation completed\n")
	b.WriteString("- [ ] Code reviewed and approved\n")
	b.WriteString("- [ ] Tests passing\n")
	b.WriteString("- [ ] Documentation updated if needed\n")

	b.WriteString("\n---\n")
	b.WriteString("*This issue was automatically created by the AI Factory Orchestrator*\n")
	return b.String()
}

// issueDrifted reports whether the live issue differs from the desired
// payload. Bodies are compared with normalized line endings because the web
// editor saves CRLF.
func issueDrifted(existing *tracker.Issue, want tracker.NewIssue) bool {
	if existing.Title != want.Title {
		return true
	}
	if normalizeBody(existing.Body) != normalizeBody(want.Body) {
		return true
	}
	return !sameLabels(existing.Labels, want.Labels)
}

func normalizeBody(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// sameLabels compares label sets ignoring order.
func sameLabels(have []tracker.Label, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	names := make([]string, len(have))
	for i, l := range have {
		names[i] = l.Name
	}
	sort.Strings(names)
	sorted := append([]string(nil), want...)
	sort.Strings(sorted)
	for i := range names {
		if names[i] != sorted[i] {
			return false
		}
	}
	return true
}
