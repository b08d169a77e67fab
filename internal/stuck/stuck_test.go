package stuck_test

import (
	"strings"
	"testing"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/stuck"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

func rec(status types.Status, entered time.Time) types.IssueRecord {
	return types.IssueRecord{IssueNumber: 1, Status: status, StateEnteredAt: entered}
}

func TestDetectTaskThreshold(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	th := stuck.DefaultThresholds()

	records := map[string]types.IssueRecord{
		"alpha.slow":      rec(types.StatusPending, now.Add(-31*time.Minute)),
		"alpha.fresh":     rec(types.StatusPending, now.Add(-10*time.Minute)),
		"alpha.exact":     rec(types.StatusPending, now.Add(-30*time.Minute)),
		"alpha.parked":    rec(types.StatusBlockedHuman, now.Add(-45*time.Minute)),
		"alpha.shipped":   rec(types.StatusDispatched, now.Add(-5*time.Hour)),
		"alpha.timeless":  rec(types.StatusPending, time.Time{}),
		"alpha.cancelled": rec(types.StatusDone, now.Add(-5*time.Hour)),
	}

	stuckRecords, escalations := stuck.Detect(now, records, th)

	if len(stuckRecords) != 2 {
		t.Fatalf("stuck records: got %d (%v), want 2", len(stuckRecords), stuckRecords)
	}
	// Sorted by task identifier.
	if stuckRecords[0].TaskID != "alpha.parked" || stuckRecords[1].TaskID != "alpha.slow" {
		t.Errorf("stuck order: got [%s, %s]", stuckRecords[0].TaskID, stuckRecords[1].TaskID)
	}
	if stuckRecords[1].Elapsed != 31*time.Minute {
		t.Errorf("elapsed: got %v, want 31m", stuckRecords[1].Elapsed)
	}
	if stuckRecords[1].Threshold != th.Task {
		t.Errorf("threshold: got %v, want %v", stuckRecords[1].Threshold, th.Task)
	}

	var taskEscalations int
	for _, e := range escalations {
		if e.Kind != types.EscalationStuck {
			t.Errorf("escalation kind: got %q, want %q", e.Kind, types.EscalationStuck)
		}
		if e.TaskID != "" {
			taskEscalations++
			if e.EpicKey != "alpha" {
				t.Errorf("escalation epic: got %q, want alpha", e.EpicKey)
			}
		}
	}
	if taskEscalations != 2 {
		t.Errorf("task escalations: got %d, want 2", taskEscalations)
	}
}

func TestDetectExactThresholdNotStuck(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	records := map[string]types.IssueRecord{
		"alpha.exact": rec(types.StatusPending, now.Add(-30*time.Minute)),
	}

	stuckRecords, _ := stuck.Detect(now, records, stuck.DefaultThresholds())
	if len(stuckRecords) != 0 {
		t.Errorf("exactly-at-threshold should not be stuck, got %v", stuckRecords)
	}
}

func TestDetectEpicAggregation(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	th := stuck.DefaultThresholds()

	records := map[string]types.IssueRecord{
		// All open items beyond the epic threshold.
		"slowpoke.one": rec(types.StatusPending, now.Add(-2*time.Hour)),
		"slowpoke.two": rec(types.StatusBlocked, now.Add(-90*time.Minute)),
		// One fresh item keeps the epic off the list.
		"mixed.old": rec(types.StatusPending, now.Add(-2*time.Hour)),
		"mixed.new": rec(types.StatusPending, now.Add(-10*time.Minute)),
	}

	_, escalations := stuck.Detect(now, records, th)

	var epicLevel []types.Escalation
	for _, e := range escalations {
		if e.TaskID == "" {
			epicLevel = append(epicLevel, e)
		}
	}
	if len(epicLevel) != 1 {
		t.Fatalf("epic-level escalations: got %d (%v), want 1", len(epicLevel), epicLevel)
	}
	if epicLevel[0].EpicKey != "slowpoke" {
		t.Errorf("epic key: got %q, want slowpoke", epicLevel[0].EpicKey)
	}
	if !strings.Contains(epicLevel[0].Message, "all 2 open task(s)") {
		t.Errorf("message: got %q", epicLevel[0].Message)
	}
}

func TestDetectEmptyRecords(t *testing.T) {
	stuckRecords, escalations := stuck.Detect(time.Now(), nil, stuck.DefaultThresholds())
	if len(stuckRecords) != 0 || len(escalations) != 0 {
		t.Errorf("empty input should detect nothing, got %v / %v", stuckRecords, escalations)
	}
}
