// Package board attaches tracked issues to a GitHub Projects (v2) board.
//
// Board sync is strictly best-effort: a missing board configuration skips
// the whole phase, and a failed attachment is logged and skipped without
// affecting the run outcome. The durable record keeps the board item
// identifier, so an issue already on the board is never re-attached.
package board

import (
	"context"
	"fmt"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// statusComment lands on every freshly attached issue so the board column
// is visible from the issue thread.
const statusComment = "🔄 **Status Update:** To Do"

// Syncer attaches issues to one project board.
type Syncer struct {
	client    *tracker.Client
	projectID string
	interval  time.Duration
}

// New builds a syncer. An empty projectID makes Sync a no-op, so the
// client may be nil in that case.
func New(client *tracker.Client, projectID string, interval time.Duration) *Syncer {
	return &Syncer{client: client, projectID: projectID, interval: interval}
}

// Sync walks the run outcomes and attaches every created or reconciled
// issue that is not on the board yet. It marks BoardAttached on the
// outcomes, stores board item identifiers in the durable state, and
// returns how many issues it attached this run.
func (s *Syncer) Sync(ctx context.Context, outcomes []types.ItemOutcome, st *types.TrackerState) int {
	if s.projectID == "" {
		log.Info("no project board configured, skipping board sync")
		return 0
	}
	if st.Issues == nil {
		st.Issues = make(map[string]types.IssueRecord)
	}

	attached := 0
	first := true
	for i := range outcomes {
		oc := &outcomes[i]
		if oc.Disposition != types.DispositionCreated && oc.Disposition != types.DispositionReconciled {
			continue
		}

		rec := st.Issues[oc.TaskID]
		if rec.BoardItemID != "" {
			oc.BoardAttached = true
			continue
		}

		if !first {
			if err := pace(ctx, s.interval); err != nil {
				log.Warning(fmt.Sprintf("board sync stopped: %v", err))
				return attached
			}
		}
		first = false

		if s.attach(ctx, oc, &rec) {
			st.Issues[oc.TaskID] = rec
			oc.BoardAttached = true
			attached++
		}
	}
	return attached
}

// attach puts one issue on the board and posts the status comment. The
// comment is decoration: its failure does not undo the attachment.
func (s *Syncer) attach(ctx context.Context, oc *types.ItemOutcome, rec *types.IssueRecord) bool {
	number := rec.IssueNumber
	if number == 0 {
		number = oc.IssueNumber
	}
	if number == 0 {
		return false
	}

	nodeID := rec.NodeID
	if nodeID == "" {
		issue, err := s.client.GetIssue(ctx, number)
		if err != nil {
			log.Warning(fmt.Sprintf("board sync: resolve node id for #%d: %v", number, err))
			return false
		}
		nodeID = issue.NodeID
		rec.NodeID = nodeID
	}

	itemID, err := s.client.AddToProject(ctx, s.projectID, nodeID)
	if err != nil {
		log.Warning(fmt.Sprintf("board sync: attach #%d: %v", number, err))
		return false
	}
	rec.BoardItemID = itemID
	log.OK(fmt.Sprintf("added issue #%d to the project board", number))

	if err := s.client.AddComment(ctx, number, statusComment); err != nil {
		log.Warning(fmt.Sprintf("board sync: status comment on #%d: %v", number, err))
	}
	return true
}

func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
