package dispatch

import (
	"context"
	"fmt"

	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// remoteRef locates the existing issue for a task. issue is the full
// open-listing payload when available; a bare number means only the durable
// map knew the issue.
type remoteRef struct {
	number int
	issue  *tracker.Issue
}

// buildIndex merges the durable issue map with the open-issue listing into
// marker-to-issue references. Listed issues win over bare durable numbers
// because they reflect what is actually open; when several open issues
// share a marker the lowest number is kept (the cleanup command closes the
// rest). A failed listing degrades to the durable map with a warning.
func (d *Dispatcher) buildIndex(ctx context.Context, st *types.TrackerState) map[string]remoteRef {
	index := make(map[string]remoteRef, len(st.Issues))
	for id, rec := range st.Issues {
		if rec.IssueNumber > 0 {
			index[id] = remoteRef{number: rec.IssueNumber}
		}
	}
	if d.opts.DryRun {
		return index
	}

	issues, err := d.client.ListOpenIssues(ctx, TrackerLabel)
	if err != nil {
		log.Warning(fmt.Sprintf("listing open issues failed, deduplicating from local state only: %v", err))
		return index
	}
	for i := range issues {
		is := &issues[i]
		id := TaskIDFromBody(is.Body)
		if id == "" {
			continue
		}
		prev, ok := index[id]
		if ok && prev.issue != nil && prev.number <= is.Number {
			continue
		}
		index[id] = remoteRef{number: is.Number, issue: is}
	}
	return index
}
