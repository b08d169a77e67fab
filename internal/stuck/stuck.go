// Package stuck flags work that has sat in pending or blocked state beyond
// a configured threshold. Detection is a pure per-run tick over the durable
// issue records: it never mutates state, it only produces records and
// escalation events for the run report.
package stuck

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// Thresholds configures how long an item may sit before escalating. Epic
// aggregation uses the longer Epic threshold.
type Thresholds struct {
	Task time.Duration
	Epic time.Duration
}

// DefaultThresholds returns the stock 30m task / 60m epic thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Task: 30 * time.Minute, Epic: 60 * time.Minute}
}

// StuckRecord reports one item whose elapsed time in its current state
// exceeded the threshold.
type StuckRecord struct {
	TaskID    string
	Status    types.Status
	Elapsed   time.Duration
	Threshold time.Duration
}

// Detect scans the durable issue records and returns every stuck item plus
// the escalation events for the report:
//
//   - A pending or blocked record whose elapsed time exceeds the task
//     threshold yields a StuckRecord and an EscalationStuck event.
//   - An epic whose open records have ALL exceeded the epic threshold
//     yields one epic-level EscalationStuck event (EpicKey set, no TaskID).
//
// Records in dispatched or done state are ignored, as are records with no
// recorded state-entry time. Output order is sorted by task identifier so
// the report is stable across runs.
func Detect(now time.Time, records map[string]types.IssueRecord, th Thresholds) ([]StuckRecord, []types.Escalation) {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stuckRecords []StuckRecord
	var escalations []types.Escalation

	// Epic aggregation counts every open record per epic and how many of
	// them have exceeded the epic threshold.
	type epicTally struct {
		open int
		over int
	}
	tally := make(map[string]*epicTally)
	var epicKeys []string

	for _, id := range ids {
		rec := records[id]
		if rec.Status != types.StatusPending && !rec.Status.IsBlocked() {
			continue
		}
		if rec.StateEnteredAt.IsZero() {
			continue
		}
		elapsed := now.Sub(rec.StateEnteredAt)

		if elapsed > th.Task {
			sr := StuckRecord{TaskID: id, Status: rec.Status, Elapsed: elapsed, Threshold: th.Task}
			stuckRecords = append(stuckRecords, sr)
			escalations = append(escalations, types.Escalation{
				Kind:    types.EscalationStuck,
				TaskID:  id,
				EpicKey: epicOf(id),
				Elapsed: elapsed,
				Message: fmt.Sprintf("task %s stuck in %s for %s (threshold %s)",
					id, rec.Status, elapsed.Round(time.Second), th.Task),
			})
		}

		key := epicOf(id)
		if key == "" {
			continue
		}
		et := tally[key]
		if et == nil {
			et = &epicTally{}
			tally[key] = et
			epicKeys = append(epicKeys, key)
		}
		et.open++
		if elapsed > th.Epic {
			et.over++
		}
	}

	for _, key := range epicKeys {
		et := tally[key]
		if et.open == 0 || et.over != et.open {
			continue
		}
		escalations = append(escalations, types.Escalation{
			Kind:    types.EscalationStuck,
			EpicKey: key,
			Message: fmt.Sprintf("epic %s: all %d open task(s) stuck beyond %s", key, et.open, th.Epic),
		})
	}

	return stuckRecords, escalations
}

// epicOf extracts the owning epic key from a task identifier. Identifiers
// are epic-key.slug and slugs never contain dots, so the last dot is the
// separator.
func epicOf(taskID string) string {
	i := strings.LastIndex(taskID, ".")
	if i <= 0 {
		return ""
	}
	return taskID[:i]
}
