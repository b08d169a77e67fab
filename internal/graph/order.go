package graph

import "container/heap"

// nodeHeap orders ready nodes by (priority rank, document order): high
// priority first, earlier declaration first.
type nodeHeap struct {
	g    *Graph
	idxs []int
}

func (h *nodeHeap) Len() int { return len(h.idxs) }
func (h *nodeHeap) Less(i, j int) bool {
	a, b := h.idxs[i], h.idxs[j]
	if h.g.rank[a] != h.g.rank[b] {
		return h.g.rank[a] < h.g.rank[b]
	}
	return h.g.ord[a] < h.g.ord[b]
}
func (h *nodeHeap) Swap(i, j int) { h.idxs[i], h.idxs[j] = h.idxs[j], h.idxs[i] }
func (h *nodeHeap) Push(x any)    { h.idxs = append(h.idxs, x.(int)) }
func (h *nodeHeap) Pop() any {
	old := h.idxs
	n := len(old)
	x := old[n-1]
	h.idxs = old[:n-1]
	return x
}

// Order returns the ordered sequence of dispatchable task identifiers:
// every prerequisite of an emitted task appears earlier in the sequence.
//
// Kahn's algorithm over all nodes; ties among simultaneously ready nodes
// break by priority (high before medium before low), then by declared order
// in the source document, so the same backlog always yields the same
// sequence. Epic nodes order their tasks but are not emitted. Tasks in
// either blocked flavor are excluded; call ApplyBlocks first so propagation
// has already happened.
func (g *Graph) Order() []string {
	indeg := make([]int, len(g.ids))
	for to, ins := range g.incoming {
		indeg[to] = len(ins)
	}

	ready := &nodeHeap{g: g}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(g.ids))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		if !g.isEpic[u] {
			if t := g.bl.TaskByID[g.ids[u]]; t != nil && !t.Status.IsBlocked() {
				out = append(out, g.ids[u])
			}
		}
		for _, v := range g.outgoing[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return out
}
