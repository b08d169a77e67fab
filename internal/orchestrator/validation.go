package orchestrator

import (
	"sort"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// applyDurable overlays durable issue records onto the freshly parsed
// backlog model and prunes records that no longer match any task. The
// returned identifiers are the pruned orphans, sorted; the caller warns
// about each.
//
// Only two durable statuses carry over:
//
//   - done always wins: the remote issue was observed closed, and done is
//     terminal.
//   - dispatched overlays a pending task only. If the document now marks
//     the task done or blocked, the document wins; the open issue stays
//     where it is and no further work is dispatched against it.
//
// pending and both blocked flavors are recomputed from the document and the
// dependency graph on every run, so a block lifted in BACKLOG.yml clears
// without any state surgery.
//
// Orphans are pruned rather than kept: a stale record would otherwise trip
// stuck detection forever, and if the task ever reappears the issue-body
// marker rebuilds the mapping from the remote listing.
func applyDurable(bl *types.Backlog, st *types.TrackerState) []string {
	var orphans []string
	for id, rec := range st.Issues {
		task, ok := bl.TaskByID[id]
		if !ok {
			orphans = append(orphans, id)
			delete(st.Issues, id)
			continue
		}
		switch rec.Status {
		case types.StatusDone:
			task.Status = types.StatusDone
		case types.StatusDispatched:
			if task.Status == types.StatusPending {
				task.Status = types.StatusDispatched
			}
		}
	}
	sort.Strings(orphans)
	return orphans
}
