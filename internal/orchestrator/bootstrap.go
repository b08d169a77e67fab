// Package orchestrator wires one full dispatch pass: load durable state,
// parse and validate the backlog, build the dependency graph, settle what
// can be settled locally, drive the issue dispatcher and board sync, then
// persist state and print the run report.
package orchestrator

import (
	"errors"

	"github.com/AmosPulse/proof-stamp/internal/state"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// loadDurable reads tracker-state.yaml and cost-ledger.yaml from dir.
//
// A missing file is the first-run case and yields an empty value. A file
// that exists but cannot be parsed is fatal: silently resetting tracker
// state would re-create every open issue on the next run, and resetting the
// ledger would forget spend that already happened.
func loadDurable(dir string) (*types.TrackerState, *types.LedgerFile, error) {
	st, err := state.LoadTrackerState(dir)
	if errors.Is(err, state.ErrNotFound) {
		st = &types.TrackerState{}
	} else if err != nil {
		return nil, nil, err
	}
	if st.Issues == nil {
		st.Issues = make(map[string]types.IssueRecord)
	}

	lf, err := state.LoadLedger(dir)
	if errors.Is(err, state.ErrNotFound) {
		lf = &types.LedgerFile{}
	} else if err != nil {
		return nil, nil, err
	}
	return st, lf, nil
}
