package types_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// TestSlug verifies identifier slugging: lowercase, non-alphanumeric runs
// collapsed to a single hyphen, no leading or trailing hyphens.
func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Database schema design and migrations", "database-schema-design-and-migrations"},
		{"Core Infrastructure Setup", "core-infrastructure-setup"},
		{"MCP server configuration & testing", "mcp-server-configuration-testing"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"already-slugged", "already-slugged"},
		{"UPPER_CASE_KEY", "upper-case-key"},
		{"???", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := types.Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestTaskID verifies the deterministic identifier derivation: the same
// epic key and title always produce the same identifier.
func TestTaskID(t *testing.T) {
	tests := []struct {
		epicKey string
		title   string
		want    string
	}{
		{"core_infrastructure", "Database schema design", "core_infrastructure.database-schema-design"},
		{"orchestrator_core", "Task dependency resolution engine", "orchestrator_core.task-dependency-resolution-engine"},
		{"monitoring", "Stuck-guard timeout detection", "monitoring.stuck-guard-timeout-detection"},
	}

	for _, tt := range tests {
		got := types.TaskID(tt.epicKey, tt.title)
		if got != tt.want {
			t.Errorf("TaskID(%q, %q) = %q, want %q", tt.epicKey, tt.title, got, tt.want)
		}
		// Derivation must be stable call-to-call.
		if again := types.TaskID(tt.epicKey, tt.title); again != got {
			t.Errorf("TaskID(%q, %q) not deterministic: %q then %q", tt.epicKey, tt.title, got, again)
		}
	}
}

// TestPriorityRank verifies dispatch ordering: high before medium before
// low, with unknown values sorting last.
func TestPriorityRank(t *testing.T) {
	if !(types.PriorityHigh.Rank() < types.PriorityMedium.Rank()) {
		t.Error("high must rank before medium")
	}
	if !(types.PriorityMedium.Rank() < types.PriorityLow.Rank()) {
		t.Error("medium must rank before low")
	}
	if !(types.PriorityLow.Rank() < types.Priority("bogus").Rank()) {
		t.Error("unknown priority must rank after low")
	}
}

// TestStatusIsBlocked verifies that both blocked flavors report blocked and
// nothing else does.
func TestStatusIsBlocked(t *testing.T) {
	tests := []struct {
		status types.Status
		want   bool
	}{
		{types.StatusBlocked, true},
		{types.StatusBlockedHuman, true},
		{types.StatusPending, false},
		{types.StatusDispatched, false},
		{types.StatusDone, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsBlocked(); got != tt.want {
			t.Errorf("Status(%q).IsBlocked() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestCountsAdd verifies that every disposition lands in its own counter and
// the total reflects all of them.
func TestCountsAdd(t *testing.T) {
	var c types.Counts
	c.Add(types.DispositionCreated)
	c.Add(types.DispositionCreated)
	c.Add(types.DispositionReconciled)
	c.Add(types.DispositionSkippedBudget)
	c.Add(types.DispositionSkippedBlocked)
	c.Add(types.DispositionFailed)

	if c.Created != 2 {
		t.Errorf("Created: got %d, want 2", c.Created)
	}
	if c.Reconciled != 1 {
		t.Errorf("Reconciled: got %d, want 1", c.Reconciled)
	}
	if c.SkippedBudget != 1 {
		t.Errorf("SkippedBudget: got %d, want 1", c.SkippedBudget)
	}
	if c.SkippedBlocked != 1 {
		t.Errorf("SkippedBlocked: got %d, want 1", c.SkippedBlocked)
	}
	if c.Failed != 1 {
		t.Errorf("Failed: got %d, want 1", c.Failed)
	}
	if c.Total() != 6 {
		t.Errorf("Total: got %d, want 6", c.Total())
	}
}

// TestTrackerStateRoundTrip verifies the durable state shape survives a
// marshal → unmarshal cycle, including timestamps and the omitempty board
// item field.
func TestTrackerStateRoundTrip(t *testing.T) {
	entered := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	input := types.TrackerState{
		Issues: map[string]types.IssueRecord{
			"core_infrastructure.database-schema-design": {
				IssueNumber:    109,
				NodeID:         "I_abc123",
				BoardItemID:    "PVTI_xyz",
				Status:         types.StatusDispatched,
				StateEnteredAt: entered,
			},
			"monitoring.stuck-guard-timeout-detection": {
				IssueNumber:    115,
				Status:         types.StatusPending,
				StateEnteredAt: entered.Add(-2 * time.Hour),
			},
		},
	}

	data, err := yaml.Marshal(&input)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got types.TrackerState
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(got.Issues) != 2 {
		t.Fatalf("Issues length: got %d, want 2", len(got.Issues))
	}
	rec := got.Issues["core_infrastructure.database-schema-design"]
	if rec.IssueNumber != 109 {
		t.Errorf("IssueNumber: got %d, want 109", rec.IssueNumber)
	}
	if rec.NodeID != "I_abc123" {
		t.Errorf("NodeID: got %q, want %q", rec.NodeID, "I_abc123")
	}
	if rec.BoardItemID != "PVTI_xyz" {
		t.Errorf("BoardItemID: got %q, want %q", rec.BoardItemID, "PVTI_xyz")
	}
	if rec.Status != types.StatusDispatched {
		t.Errorf("Status: got %q, want %q", rec.Status, types.StatusDispatched)
	}
	if !rec.StateEnteredAt.Equal(entered) {
		t.Errorf("StateEnteredAt: got %v, want %v", rec.StateEnteredAt, entered)
	}

	second := got.Issues["monitoring.stuck-guard-timeout-detection"]
	if second.BoardItemID != "" {
		t.Errorf("BoardItemID should stay empty, got %q", second.BoardItemID)
	}
}
