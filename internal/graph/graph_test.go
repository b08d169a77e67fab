package graph_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AmosPulse/proof-stamp/internal/graph"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// model builds an indexed backlog the way the loader would, so graph tests
// can declare fixtures inline.
func model(epics ...types.Epic) *types.Backlog {
	bl := &types.Backlog{
		Epics:     epics,
		EpicByKey: make(map[string]*types.Epic),
		TaskByID:  make(map[string]*types.Task),
	}
	docOrder := 0
	for i := range bl.Epics {
		e := &bl.Epics[i]
		if e.Priority == "" {
			e.Priority = types.PriorityMedium
		}
		if e.Status == "" {
			e.Status = types.StatusPending
		}
		bl.EpicByKey[e.Key] = e
		for j := range e.Tasks {
			t := &e.Tasks[j]
			t.EpicKey = e.Key
			if t.ID == "" {
				t.ID = types.TaskID(e.Key, t.Title)
			}
			if t.Priority == "" {
				t.Priority = types.PriorityMedium
			}
			if t.Status == "" {
				t.Status = types.StatusPending
			}
			t.DocOrder = docOrder
			docOrder++
			bl.TaskByID[t.ID] = t
		}
	}
	return bl
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestOrderPriorityThenDocumentOrder(t *testing.T) {
	bl := model(types.Epic{
		Key:   "alpha",
		Title: "Alpha",
		Tasks: []types.Task{
			{Title: "Low task", Priority: types.PriorityLow},
			{Title: "High task", Priority: types.PriorityHigh},
			{Title: "Mid one", Priority: types.PriorityMedium},
			{Title: "Mid two", Priority: types.PriorityMedium},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"alpha.high-task", "alpha.mid-one", "alpha.mid-two", "alpha.low-task"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order: got %v, want %v", got, want)
	}
}

func TestOrderPrerequisiteBeatsPriority(t *testing.T) {
	// Rooftop is high priority but depends on low-priority Foundation;
	// the dependency must win.
	bl := model(types.Epic{
		Key:   "build",
		Title: "Build",
		Tasks: []types.Task{
			{Title: "Foundation", Priority: types.PriorityLow},
			{Title: "Middle", Priority: types.PriorityMedium},
			{Title: "Rooftop", Priority: types.PriorityHigh, DependsOn: []string{"build.foundation"}},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"build.middle", "build.foundation", "build.rooftop"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order: got %v, want %v", got, want)
	}
}

func TestOrderStableAcrossBuilds(t *testing.T) {
	make2 := func() []string {
		bl := model(
			types.Epic{Key: "a", Title: "A", Tasks: []types.Task{
				{Title: "One", Priority: types.PriorityHigh},
				{Title: "Two"},
			}},
			types.Epic{Key: "b", Title: "B", Tasks: []types.Task{
				{Title: "Three", DependsOn: []string{"a.one"}},
				{Title: "Four", Priority: types.PriorityHigh},
			}},
		)
		g, err := graph.Build(bl)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return g.Order()
	}

	first := make2()
	second := make2()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("order not stable: %v vs %v", first, second)
	}
}

// ---------------------------------------------------------------------------
// Cycle detection
// ---------------------------------------------------------------------------

func TestCycleNamesEveryNode(t *testing.T) {
	bl := model(types.Epic{
		Key:   "alpha",
		Title: "Alpha",
		Tasks: []types.Task{
			{Title: "A", DependsOn: []string{"alpha.b"}},
			{Title: "B", DependsOn: []string{"alpha.a"}},
		},
	})

	_, err := graph.Build(bl)
	if !errors.Is(err, graph.ErrCycleFound) {
		t.Fatalf("expected ErrCycleFound, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "alpha.a") || !strings.Contains(msg, "alpha.b") {
		t.Errorf("cycle error must name both nodes, got %q", msg)
	}
	if !strings.Contains(msg, " -> ") {
		t.Errorf("cycle error must show the walk path, got %q", msg)
	}
}

func TestCycleSelfLoop(t *testing.T) {
	bl := model(types.Epic{
		Key:   "alpha",
		Title: "Alpha",
		Tasks: []types.Task{
			{Title: "Ouroboros", DependsOn: []string{"alpha.ouroboros"}},
		},
	})

	_, err := graph.Build(bl)
	if !errors.Is(err, graph.ErrCycleFound) {
		t.Fatalf("expected ErrCycleFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "alpha.ouroboros -> alpha.ouroboros") {
		t.Errorf("self-loop path: got %q", err.Error())
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	bl := model(types.Epic{
		Key:   "alpha",
		Title: "Alpha",
		Tasks: []types.Task{
			{Title: "A", DependsOn: []string{"nowhere.nothing"}},
		},
	})

	_, err := graph.Build(bl)
	if !errors.Is(err, graph.ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Blocked propagation
// ---------------------------------------------------------------------------

func TestApplyBlocksPropagatesTransitively(t *testing.T) {
	bl := model(types.Epic{
		Key:   "pipeline",
		Title: "Pipeline",
		Tasks: []types.Task{
			{Title: "Ingest", Status: types.StatusBlockedHuman},
			{Title: "Transform", DependsOn: []string{"pipeline.ingest"}},
			{Title: "Publish", DependsOn: []string{"pipeline.transform"}},
			{Title: "Unrelated"},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	escalations := g.ApplyBlocks()

	if got := bl.TaskByID["pipeline.transform"].Status; got != types.StatusBlocked {
		t.Errorf("transform status: got %q, want %q", got, types.StatusBlocked)
	}
	if got := bl.TaskByID["pipeline.publish"].Status; got != types.StatusBlocked {
		t.Errorf("publish status: got %q, want %q", got, types.StatusBlocked)
	}
	if got := bl.TaskByID["pipeline.unrelated"].Status; got != types.StatusPending {
		t.Errorf("unrelated status: got %q, want %q", got, types.StatusPending)
	}

	for _, id := range []string{"pipeline.transform", "pipeline.publish"} {
		src, ok := g.BlockedBy(id)
		if !ok || src != "pipeline.ingest" {
			t.Errorf("BlockedBy(%q): got %q, %v; want pipeline.ingest", id, src, ok)
		}
	}

	// The owning epic escalates to blocked.
	if got := bl.EpicByKey["pipeline"].Status; got != types.StatusBlocked {
		t.Errorf("epic status: got %q, want %q", got, types.StatusBlocked)
	}
	if len(escalations) != 1 {
		t.Fatalf("escalations: got %d, want 1 (%v)", len(escalations), escalations)
	}
	esc := escalations[0]
	if esc.Kind != types.EscalationEpicBlocked {
		t.Errorf("escalation kind: got %q, want %q", esc.Kind, types.EscalationEpicBlocked)
	}
	if esc.EpicKey != "pipeline" {
		t.Errorf("escalation epic: got %q, want pipeline", esc.EpicKey)
	}
	if !strings.Contains(esc.Message, "pipeline.ingest") {
		t.Errorf("escalation message should name the source, got %q", esc.Message)
	}

	// Blocked tasks are excluded from the dispatch sequence.
	want := []string{"pipeline.unrelated"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order after blocks: got %v, want %v", got, want)
	}
}

func TestApplyBlocksHumanBlockedEpic(t *testing.T) {
	bl := model(types.Epic{
		Key:    "frozen",
		Title:  "Frozen",
		Status: types.StatusBlockedHuman,
		Tasks: []types.Task{
			{Title: "One"},
			{Title: "Two"},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	escalations := g.ApplyBlocks()

	for _, id := range []string{"frozen.one", "frozen.two"} {
		if got := bl.TaskByID[id].Status; got != types.StatusBlocked {
			t.Errorf("%s status: got %q, want %q", id, got, types.StatusBlocked)
		}
		if src, _ := g.BlockedBy(id); src != "frozen" {
			t.Errorf("BlockedBy(%q): got %q, want frozen", id, src)
		}
	}

	// The epic is already human-blocked; no escalation downgrade.
	if got := bl.EpicByKey["frozen"].Status; got != types.StatusBlockedHuman {
		t.Errorf("epic status: got %q, want %q", got, types.StatusBlockedHuman)
	}
	if len(escalations) != 0 {
		t.Errorf("escalations: got %v, want none", escalations)
	}

	if got := g.Order(); len(got) != 0 {
		t.Errorf("Order: got %v, want empty", got)
	}
}

func TestApplyBlocksPlainBlockHoldsDependents(t *testing.T) {
	bl := model(types.Epic{
		Key:   "pipeline",
		Title: "Pipeline",
		Tasks: []types.Task{
			{Title: "Ingest", Status: types.StatusBlocked},
			{Title: "Transform", DependsOn: []string{"pipeline.ingest"}},
			{Title: "Unrelated"},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	escalations := g.ApplyBlocks()

	// The dependent is held, otherwise the order would emit a task whose
	// prerequisite never got an issue.
	if got := bl.TaskByID["pipeline.transform"].Status; got != types.StatusBlocked {
		t.Errorf("transform status: got %q, want %q", got, types.StatusBlocked)
	}
	if src, ok := g.BlockedBy("pipeline.transform"); !ok || src != "pipeline.ingest" {
		t.Errorf("BlockedBy(transform): got %q, %v; want pipeline.ingest", src, ok)
	}

	// No human source anywhere, so no epic escalation.
	if len(escalations) != 0 {
		t.Errorf("escalations: got %v, want none", escalations)
	}
	if got := bl.EpicByKey["pipeline"].Status; got != types.StatusPending {
		t.Errorf("epic status: got %q, want %q", got, types.StatusPending)
	}

	want := []string{"pipeline.unrelated"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order: got %v, want %v", got, want)
	}
}

func TestApplyBlocksChainBreaksAtFinishedWork(t *testing.T) {
	bl := model(types.Epic{
		Key:   "pipeline",
		Title: "Pipeline",
		Tasks: []types.Task{
			{Title: "Ingest", Status: types.StatusBlockedHuman},
			{Title: "Transform", Status: types.StatusDone, DependsOn: []string{"pipeline.ingest"}},
			{Title: "Publish", DependsOn: []string{"pipeline.transform"}},
			{Title: "Mirror", Status: types.StatusDispatched, DependsOn: []string{"pipeline.ingest"}},
			{Title: "Verify", DependsOn: []string{"pipeline.mirror"}},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	escalations := g.ApplyBlocks()

	// Done and dispatched tasks are not re-blocked, and the block does not
	// travel through them.
	if got := bl.TaskByID["pipeline.transform"].Status; got != types.StatusDone {
		t.Errorf("transform status: got %q, want %q", got, types.StatusDone)
	}
	if got := bl.TaskByID["pipeline.mirror"].Status; got != types.StatusDispatched {
		t.Errorf("mirror status: got %q, want %q", got, types.StatusDispatched)
	}
	for _, id := range []string{"pipeline.publish", "pipeline.verify"} {
		if got := bl.TaskByID[id].Status; got != types.StatusPending {
			t.Errorf("%s status: got %q, want %q", id, got, types.StatusPending)
		}
	}

	if len(escalations) != 0 {
		t.Errorf("escalations: got %v, want none", escalations)
	}

	want := []string{"pipeline.transform", "pipeline.publish", "pipeline.mirror", "pipeline.verify"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order: got %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func TestTransitiveDependents(t *testing.T) {
	bl := model(types.Epic{
		Key:   "chain",
		Title: "Chain",
		Tasks: []types.Task{
			{Title: "A"},
			{Title: "B", DependsOn: []string{"chain.a"}},
			{Title: "C", DependsOn: []string{"chain.b"}},
			{Title: "D"},
		},
	})

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"chain.b", "chain.c"}
	if got := g.TransitiveDependents("chain.a"); !reflect.DeepEqual(got, want) {
		t.Errorf("TransitiveDependents(chain.a): got %v, want %v", got, want)
	}
	if got := g.TransitiveDependents("chain.d"); len(got) != 0 {
		t.Errorf("TransitiveDependents(chain.d): got %v, want empty", got)
	}
}

func TestPrerequisitesExcludeEpicNodes(t *testing.T) {
	bl := model(
		types.Epic{Key: "base", Title: "Base", Tasks: []types.Task{
			{Title: "Root"},
		}},
		types.Epic{Key: "tower", Title: "Tower", Tasks: []types.Task{
			{Title: "Top", DependsOn: []string{"base.root", "base"}},
		}},
	)

	g, err := graph.Build(bl)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"base.root"}
	if got := g.Prerequisites("tower.top"); !reflect.DeepEqual(got, want) {
		t.Errorf("Prerequisites: got %v, want %v", got, want)
	}
}
