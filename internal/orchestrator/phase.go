package orchestrator

import (
	"github.com/AmosPulse/proof-stamp/internal/report"
	"github.com/AmosPulse/proof-stamp/internal/stuck"
)

// Phase tracks how far a run progressed. Runs move strictly forward
// through loaded, graph-validated, filtered, dispatching, synced, and
// reported; aborted is terminal and is only ever entered before the first
// remote write.
type Phase string

const (
	PhaseLoaded         Phase = "loaded"
	PhaseGraphValidated Phase = "graph-validated"
	PhaseFiltered       Phase = "filtered"
	PhaseDispatching    Phase = "dispatching"
	PhaseSynced         Phase = "synced"
	PhaseReported       Phase = "reported"
	PhaseAborted        Phase = "aborted"
)

// Terminal reports whether a run can advance past p.
func (p Phase) Terminal() bool {
	return p == PhaseReported || p == PhaseAborted
}

// Result is everything one run produced. Phase is reported or aborted;
// Err is set when the run aborted, or when durable state failed to persist
// after an otherwise successful run.
type Result struct {
	Phase  Phase
	Report report.Run
	Stuck  []stuck.StuckRecord
	Err    error
}

// ExitCode maps the result onto the process exit code. Per-item failures
// are partial success and exit 0; only an aborted run or one that could
// not persist its durable state exits 1.
func (r Result) ExitCode() int {
	if r.Phase == PhaseAborted || r.Err != nil {
		return 1
	}
	return 0
}
