package graph

import (
	"fmt"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// ApplyBlocks propagates authored blocks through the graph and annotates
// the model:
//
//   - Every node whose authored status is a blocked flavor is a propagation
//     source: a blocked epic holds all of its tasks, and a blocked task
//     holds its dependents, so the emitted order never contains a task
//     whose prerequisite was excluded.
//   - Propagation marks pending dependents blocked (plain flavor) and
//     records the source per task for the report. The chain breaks at done
//     and dispatched tasks: work that already left the pending pool is not
//     re-blocked, and its dependents build on its output.
//   - An epic with tasks blocked by a human-flavored source is escalated
//     to blocked; one EscalationEpicBlocked event is emitted per such epic.
//
// Sources are snapshotted before any propagation happens, so a block
// derived during the walk never becomes a source itself and re-running on
// a freshly parsed model always reaches the same result.
func (g *Graph) ApplyBlocks() []types.Escalation {
	sources := make([]bool, len(g.ids))
	authoredBlockedEpic := make(map[string]bool)
	for i := range g.ids {
		if !g.nodeStatus(i).IsBlocked() {
			continue
		}
		sources[i] = true
		if g.isEpic[i] {
			authoredBlockedEpic[g.ids[i]] = true
		}
	}

	visited := make([]bool, len(g.ids))

	// Sources iterate in document order so the recorded source for a task
	// reachable from several blocks is stable across runs.
	for i := range g.ids {
		if !sources[i] {
			continue
		}
		source := g.ids[i]
		queue := append([]int(nil), g.outgoing[i]...)
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			if visited[u] {
				continue
			}
			visited[u] = true

			if g.isEpic[u] {
				queue = append(queue, g.outgoing[u]...)
				continue
			}
			t := g.bl.TaskByID[g.ids[u]]
			switch {
			case t.Status == types.StatusDone || t.Status == types.StatusDispatched:
				// Chain break: this work already left the pending pool.
				continue
			case t.Status.IsBlocked():
				// An authored block keeps its own flavor and stays its own
				// reason; its dependents are still traversed.
			default:
				t.Status = types.StatusBlocked
				if _, recorded := g.blockedBy[t.ID]; !recorded {
					g.blockedBy[t.ID] = source
				}
			}
			queue = append(queue, g.outgoing[u]...)
		}
	}

	var escalations []types.Escalation
	for i := range g.bl.Epics {
		e := &g.bl.Epics[i]
		if authoredBlockedEpic[e.Key] {
			continue
		}
		var first *types.Task
		blocked := 0
		for j := range e.Tasks {
			t := &e.Tasks[j]
			if t.Status != types.StatusBlocked {
				continue
			}
			src := g.blockedBy[t.ID]
			if src == "" || !g.sourceIsHuman(src) {
				continue
			}
			blocked++
			if first == nil {
				first = t
			}
		}
		if blocked == 0 {
			continue
		}
		e.Status = types.StatusBlocked
		escalations = append(escalations, types.Escalation{
			Kind:    types.EscalationEpicBlocked,
			TaskID:  first.ID,
			EpicKey: e.Key,
			Message: fmt.Sprintf("epic %q escalated to blocked: %d task(s) blocked by human-blocked prerequisite %q",
				e.Key, blocked, g.blockedBy[first.ID]),
		})
	}
	return escalations
}

// BlockedBy returns the source responsible for a propagated block on
// taskID, when one exists. A block authored on the task itself is its own
// reason and is not recorded here.
func (g *Graph) BlockedBy(taskID string) (string, bool) {
	src, ok := g.blockedBy[taskID]
	return src, ok
}

// sourceIsHuman reports whether the named propagation source carries the
// human flavor. Source statuses are authored and never rewritten by
// ApplyBlocks, so a live lookup is accurate.
func (g *Graph) sourceIsHuman(id string) bool {
	if e := g.bl.EpicByKey[id]; e != nil {
		return e.Status == types.StatusBlockedHuman
	}
	if t := g.bl.TaskByID[id]; t != nil {
		return t.Status == types.StatusBlockedHuman
	}
	return false
}

func (g *Graph) nodeStatus(i int) types.Status {
	id := g.ids[i]
	if g.isEpic[i] {
		if e := g.bl.EpicByKey[id]; e != nil {
			return e.Status
		}
		return ""
	}
	if t := g.bl.TaskByID[id]; t != nil {
		return t.Status
	}
	return ""
}
