package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AmosPulse/proof-stamp/internal/backlog"
	"github.com/AmosPulse/proof-stamp/internal/board"
	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/dispatch"
	"github.com/AmosPulse/proof-stamp/internal/graph"
	"github.com/AmosPulse/proof-stamp/internal/history"
	"github.com/AmosPulse/proof-stamp/internal/ledger"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/report"
	"github.com/AmosPulse/proof-stamp/internal/state"
	"github.com/AmosPulse/proof-stamp/internal/stuck"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// Run executes one full dispatch pass:
//
//  1. Verify startup requirements (credential, repo identity, state dir)
//  2. Load durable tracker state and the cost ledger
//  3. Load and validate BACKLOG.yml
//  4. Build the dependency graph; a cycle aborts the run
//  5. Overlay durable records onto the model, pruning orphans
//  6. Propagate blocks and compute the dispatch order
//  7. Detect stuck items from the durable timestamps
//  8. Resolve done and blocked work locally
//  9. Dispatch the remainder through the issue tracker
//  10. Attach created issues to the project board
//  11. Persist tracker state and the ledger
//  12. Append run history and print the report
//
// Steps 1-8 never touch the network, so every abort happens before the
// first remote write. Per-item dispatch failures do not abort the run:
// they are reported and the process still exits 0 (see Result.ExitCode).
func Run(ctx context.Context, cfg *config.FactoryConfig, dryRun bool) Result {
	started := time.Now()
	runID := uuid.New().String()

	abort := func(err error) Result {
		log.Error(fmt.Sprintf("run aborted: %v", err))
		return Result{Phase: PhaseAborted, Report: report.Run{RunID: runID}, Err: err}
	}

	log.Section("factory run")
	if dryRun {
		log.Info("dry run: no remote calls, no state writes")
	}

	if err := checkStartup(cfg, dryRun); err != nil {
		return abort(err)
	}

	st, lf, err := loadDurable(cfg.StateDir)
	if err != nil {
		return abort(err)
	}
	led := ledger.New(cfg.BudgetCeiling, lf)

	bl, err := backlog.Load(cfg.BacklogPath)
	if err != nil {
		return abort(err)
	}
	taskCount := 0
	for i := range bl.Epics {
		taskCount += len(bl.Epics[i].Tasks)
	}
	log.Info(fmt.Sprintf("loaded %s: %d epic(s), %d task(s)", cfg.BacklogPath, len(bl.Epics), taskCount))

	g, err := graph.Build(bl)
	if err != nil {
		res := abort(err)
		// A cycle is fatal, but the escalation still rides the result so
		// callers forwarding escalations see it alongside the error.
		if errors.Is(err, graph.ErrCycleFound) {
			res.Report.Escalations = append(res.Report.Escalations, types.Escalation{
				Kind:    types.EscalationCycle,
				Message: err.Error(),
			})
		}
		return res
	}
	log.OK("dependency graph validated")

	for _, id := range applyDurable(bl, st) {
		log.Warning(fmt.Sprintf("durable record %s no longer matches any backlog task; dropping it", id))
	}

	escalations := g.ApplyBlocks()
	ordered := g.Order()

	// Stuck detection reads the durable timestamps as they stood at the
	// start of the run, before this run's own status changes land.
	stuckRecords, stuckEsc := stuck.Detect(time.Now(), st.Issues, stuck.Thresholds{
		Task: cfg.StuckTaskThreshold,
		Epic: cfg.StuckEpicThreshold,
	})
	escalations = append(escalations, stuckEsc...)
	for _, e := range stuckEsc {
		log.Warning(e.Message)
	}

	local, dispatchable := resolveLocal(bl, g, ordered, st)
	log.Info(fmt.Sprintf("%d task(s) to dispatch, %d resolved locally", len(dispatchable), len(local)))

	var client *tracker.Client
	if !dryRun {
		client, err = tracker.New(cfg.RepoOwner, cfg.RepoName, cfg.Token)
		if err != nil {
			return abort(err)
		}
		if cfg.APIBaseURL != "" {
			client.BaseURL = cfg.APIBaseURL
		}
	}
	disp := dispatch.New(client, led, dispatch.Options{
		Workers:      cfg.Workers,
		MaxAttempts:  cfg.MaxAttempts,
		RateInterval: cfg.RateInterval,
		DryRun:       dryRun,
	})
	outcomes := disp.Run(ctx, bl, g, dispatchable, st)

	if !dryRun {
		if n := board.New(client, cfg.ProjectID, cfg.RateInterval).Sync(ctx, outcomes, st); n > 0 {
			log.Info(fmt.Sprintf("board sync attached %d issue(s)", n))
		}
	}

	// The report lists items in document order: locally resolved items
	// merge with dispatcher outcomes at their backlog positions.
	run := report.Run{
		RunID:       runID,
		Outcomes:    mergeOutcomes(bl, local, outcomes),
		Escalations: escalations,
		Consumed:    led.Consumed(),
		Ceiling:     led.Ceiling(),
		DryRun:      dryRun,
		Elapsed:     time.Since(started),
	}

	// A failed state write is the one post-dispatch error that must surface
	// in the exit code: losing the tracker mapping would re-create every
	// issue on the next run, and losing the ledger would forget spend.
	var persistErr error
	if !dryRun {
		if err := state.SaveTrackerState(cfg.StateDir, st); err != nil {
			persistErr = fmt.Errorf("persist tracker state: %w", err)
		} else if err := state.SaveLedger(cfg.StateDir, led.File()); err != nil {
			persistErr = fmt.Errorf("persist ledger: %w", err)
		}
		if persistErr != nil {
			log.Error(persistErr.Error())
		}

		if err := history.Append(filepath.Join(cfg.StateDir, history.FileName), time.Now(), run); err != nil {
			log.Warning(err.Error())
		}
	}

	report.Print(run)
	return Result{Phase: PhaseReported, Report: run, Stuck: stuckRecords, Err: persistErr}
}

// resolveLocal settles every task whose fate is known without a remote
// call. Done tasks leave the run entirely: their durable record is closed
// out and no report line is produced. Blocked tasks produce a
// skipped-blocked outcome and a durable record, so the next run can measure
// how long the block has been standing. The returned slice is the dispatch
// order with done tasks removed; blocked tasks are never in it.
func resolveLocal(bl *types.Backlog, g *graph.Graph, ordered []string, st *types.TrackerState) (map[string]types.ItemOutcome, []string) {
	now := time.Now().UTC()
	local := make(map[string]types.ItemOutcome)

	for i := range bl.Epics {
		for j := range bl.Epics[i].Tasks {
			t := &bl.Epics[i].Tasks[j]
			switch {
			case t.Status == types.StatusDone:
				if rec, ok := st.Issues[t.ID]; ok && rec.Status != types.StatusDone {
					rec.Status = types.StatusDone
					rec.StateEnteredAt = now
					st.Issues[t.ID] = rec
				}
			case t.Status.IsBlocked():
				rec := st.Issues[t.ID]
				if !rec.Status.IsBlocked() {
					rec.StateEnteredAt = now
				}
				rec.Status = t.Status
				st.Issues[t.ID] = rec
				local[t.ID] = types.ItemOutcome{
					TaskID:      t.ID,
					IssueNumber: rec.IssueNumber,
					Disposition: types.DispositionSkippedBlocked,
					Reason:      blockReason(bl, g, t),
				}
			}
		}
	}

	dispatchable := make([]string, 0, len(ordered))
	for _, id := range ordered {
		if bl.TaskByID[id].Status == types.StatusDone {
			continue
		}
		dispatchable = append(dispatchable, id)
	}
	return local, dispatchable
}

// blockReason renders the report line for a blocked task, naming the
// propagation source when there is one.
func blockReason(bl *types.Backlog, g *graph.Graph, t *types.Task) string {
	if src, ok := g.BlockedBy(t.ID); ok {
		if e := bl.EpicByKey[src]; e != nil {
			if e.Status == types.StatusBlockedHuman {
				return fmt.Sprintf("epic %s is blocked by a human", src)
			}
			return fmt.Sprintf("epic %s is marked blocked", src)
		}
		if p := bl.TaskByID[src]; p != nil && p.Status == types.StatusBlockedHuman {
			return fmt.Sprintf("prerequisite %s is blocked by a human", src)
		}
		return fmt.Sprintf("prerequisite %s is marked blocked", src)
	}
	if t.Status == types.StatusBlockedHuman {
		return "marked blocked:human in the backlog"
	}
	return "marked blocked in the backlog"
}

// mergeOutcomes interleaves locally resolved outcomes with dispatcher
// outcomes, ordered by backlog position.
func mergeOutcomes(bl *types.Backlog, local map[string]types.ItemOutcome, dispatched []types.ItemOutcome) []types.ItemOutcome {
	byID := make(map[string]types.ItemOutcome, len(local)+len(dispatched))
	for id, oc := range local {
		byID[id] = oc
	}
	for _, oc := range dispatched {
		byID[oc.TaskID] = oc
	}

	out := make([]types.ItemOutcome, 0, len(byID))
	for i := range bl.Epics {
		for j := range bl.Epics[i].Tasks {
			if oc, ok := byID[bl.Epics[i].Tasks[j].ID]; ok {
				out = append(out, oc)
			}
		}
	}
	return out
}
