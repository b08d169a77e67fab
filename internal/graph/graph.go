// Package graph builds the dependency DAG over a validated backlog and
// derives the dispatch order. Nodes are every task identifier and every epic
// key; edges run prerequisite -> dependent. Each task carries an implicit
// edge from its owning epic, so a blocked epic blocks all of its tasks.
package graph

import (
	"sort"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// Graph is an immutable DAG over one backlog model. Statuses are read from
// the model at call time, so durable-state merges applied after Build are
// observed by ApplyBlocks and Order.
type Graph struct {
	bl *types.Backlog

	ids    []string       // node id by index, insertion (document) order
	index  map[string]int // node id -> index
	isEpic []bool         // by index
	rank   []int          // priority rank, by index
	ord    []int          // document-order tie-break, by index

	outgoing [][]int // by index, sorted ascending
	incoming [][]int // by index, sorted ascending

	blockedBy map[string]string // task id -> human-blocked source id
}

// Build constructs and validates the graph for a backlog:
//
//  1. Add one node per epic and per task, in document order.
//  2. Add an implicit edge epic -> task for every task.
//  3. Add a declared edge prerequisite -> task for every depends_on entry
//     (duplicates are collapsed; references were validated at load time).
//  4. Reject any cycle with a GraphError naming the full cycle path.
func Build(bl *types.Backlog) (*Graph, error) {
	g := &Graph{
		bl:        bl,
		index:     make(map[string]int),
		blockedBy: make(map[string]string),
	}

	addNode := func(id string, epic bool, rank int) {
		g.index[id] = len(g.ids)
		g.ids = append(g.ids, id)
		g.isEpic = append(g.isEpic, epic)
		g.rank = append(g.rank, rank)
		g.ord = append(g.ord, len(g.ord))
	}

	for i := range bl.Epics {
		e := &bl.Epics[i]
		addNode(e.Key, true, e.Priority.Rank())
		for j := range e.Tasks {
			addNode(e.Tasks[j].ID, false, e.Tasks[j].Priority.Rank())
		}
	}

	n := len(g.ids)
	g.outgoing = make([][]int, n)
	g.incoming = make([][]int, n)

	type edge struct{ from, to int }
	seen := make(map[edge]struct{})
	addEdge := func(from, to int) {
		pair := edge{from, to}
		if _, dup := seen[pair]; dup {
			return
		}
		seen[pair] = struct{}{}
		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
	}

	for i := range bl.Epics {
		e := &bl.Epics[i]
		epicIdx := g.index[e.Key]
		for j := range e.Tasks {
			t := &e.Tasks[j]
			taskIdx := g.index[t.ID]
			addEdge(epicIdx, taskIdx)
			for _, dep := range t.DependsOn {
				depIdx, ok := g.index[dep]
				if !ok {
					return nil, invalidf("task %q depends on unknown identifier %q", t.ID, dep)
				}
				addEdge(depIdx, taskIdx)
			}
		}
	}

	for i := range g.outgoing {
		sort.Ints(g.outgoing[i])
	}
	for i := range g.incoming {
		sort.Ints(g.incoming[i])
	}

	if path := g.findCycle(); path != nil {
		return nil, cycleError(path)
	}
	return g, nil
}

// Prerequisites returns the direct prerequisite task identifiers of a task,
// in document order. Epic nodes are ordering scaffolding, not dispatchable
// work, and are excluded.
func (g *Graph) Prerequisites(taskID string) []string {
	idx, ok := g.index[taskID]
	if !ok {
		return nil
	}
	var out []string
	for _, p := range g.incoming[idx] {
		if !g.isEpic[p] {
			out = append(out, g.ids[p])
		}
	}
	return out
}

// TransitiveDependents returns every task reachable downstream of taskID,
// in document order. Used to cascade a dispatch failure onto dependents
// that have not been dispatched yet.
func (g *Graph) TransitiveDependents(taskID string) []string {
	idx, ok := g.index[taskID]
	if !ok {
		return nil
	}

	visited := make([]bool, len(g.ids))
	visited[idx] = true
	queue := append([]int(nil), g.outgoing[idx]...)

	var reach []int
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if visited[u] {
			continue
		}
		visited[u] = true
		reach = append(reach, u)
		queue = append(queue, g.outgoing[u]...)
	}

	sort.Ints(reach)
	var out []string
	for _, u := range reach {
		if !g.isEpic[u] {
			out = append(out, g.ids[u])
		}
	}
	return out
}
