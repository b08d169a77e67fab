// Package dispatch turns ordered backlog tasks into tracked GitHub issues.
//
// Dispatch is idempotent: every issue body carries a marker comment naming
// its task identifier, and a per-run index of open markers plus the durable
// issue map decides create versus reconcile. Creation is gated by the cost
// ledger; a refused reservation defers the task instead of failing it.
// Failures stay isolated per item: a failed create resolves the item and
// its not-yet-dispatched transitive dependents, never the whole run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/graph"
	"github.com/AmosPulse/proof-stamp/internal/ledger"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// Options bound a dispatch run.
type Options struct {
	Workers      int
	MaxAttempts  int
	RateInterval time.Duration
	DryRun       bool
}

// Dispatcher drives the issue worker pool for one run.
type Dispatcher struct {
	client *tracker.Client
	led    *ledger.Ledger
	lim    *limiter
	opts   Options
}

// New builds a dispatcher. The client may be nil in dry-run mode, where no
// remote calls are made.
func New(client *tracker.Client, led *ledger.Ledger, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Dispatcher{
		client: client,
		led:    led,
		lim:    newLimiter(opts.RateInterval),
		opts:   opts,
	}
}

// workItem is one unit handed to a worker.
type workItem struct {
	id      string
	create  bool
	payload tracker.NewIssue
	number  int            // reconcile: durable issue number
	listed  *tracker.Issue // reconcile: open-listing payload, may be nil
	agent   string         // create: persona for the assignment comment
	amount  float64        // create: reserved ledger amount
}

// workResult carries a worker's outcome back to the coordinator.
type workResult struct {
	item   workItem
	issue  *tracker.Issue
	drift  bool // reconcile: a PATCH was needed
	closed bool // reconcile: remote issue is closed, the work is finished
	stale  bool // reconcile: remote issue is gone, fall through to create
	err    error
}

// run is the coordinator's single-writer view of one dispatch run. Workers
// only perform remote calls; every mutation of outcomes, ledger, and the
// durable issue map happens on the coordinator goroutine.
type run struct {
	d        *Dispatcher
	bl       *types.Backlog
	g        *graph.Graph
	st       *types.TrackerState
	ordered  []string
	inSet    map[string]bool
	index    map[string]remoteRef
	outcomes map[string]*types.ItemOutcome
}

// Run dispatches the ordered tasks and returns one outcome per task in the
// same order. The durable state map is updated in place; the caller
// persists it afterwards.
func (d *Dispatcher) Run(ctx context.Context, bl *types.Backlog, g *graph.Graph, ordered []string, st *types.TrackerState) []types.ItemOutcome {
	if st.Issues == nil {
		st.Issues = make(map[string]types.IssueRecord)
	}
	r := &run{
		d:        d,
		bl:       bl,
		g:        g,
		st:       st,
		ordered:  ordered,
		inSet:    make(map[string]bool, len(ordered)),
		outcomes: make(map[string]*types.ItemOutcome, len(ordered)),
	}
	for _, id := range ordered {
		r.inSet[id] = true
	}
	r.index = d.buildIndex(ctx, st)

	if d.opts.DryRun {
		r.runDry()
	} else {
		r.runPool(ctx)
	}

	out := make([]types.ItemOutcome, 0, len(ordered))
	for _, id := range ordered {
		if oc := r.outcomes[id]; oc != nil {
			out = append(out, *oc)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Coordinator
// ---------------------------------------------------------------------------

// runPool runs the bounded worker pool. The feed loop walks the dispatch
// order and admits every task whose prerequisites have all resolved
// successfully, so only mutually independent items are in flight together.
func (r *run) runPool(ctx context.Context) {
	workers := r.d.opts.Workers
	workCh := make(chan workItem, workers)
	doneCh := make(chan workResult, workers)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	defer stopWorkers()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				doneCh <- r.d.process(ctx, w)
			}
		}()
	}

	inFlight := 0
	working := make(map[string]bool, workers)

	feed := func() {
		for _, id := range r.ordered {
			if inFlight >= workers {
				return
			}
			if r.outcomes[id] != nil || working[id] || !r.ready(id) {
				continue
			}
			w, dispatched := r.prepare(id)
			if !dispatched {
				continue
			}
			working[id] = true
			inFlight++
			workCh <- w
		}
	}

	for {
		feed()
		if inFlight == 0 {
			if r.allResolved() {
				return
			}
			// Nothing in flight and nothing ready cannot happen on a
			// validated graph; resolve the leftovers rather than spin.
			r.failLeftovers("prerequisite never resolved")
			return
		}
		select {
		case <-ctx.Done():
			// Stop feeding, but wait out in-flight work so completed
			// calls are still recorded.
			for ; inFlight > 0; inFlight-- {
				res := <-doneCh
				delete(working, res.item.id)
				r.finish(res, true)
			}
			r.failLeftovers(fmt.Sprintf("run cancelled: %v", ctx.Err()))
			return
		case res := <-doneCh:
			inFlight--
			delete(working, res.item.id)
			if follow, ok := r.finish(res, false); ok {
				working[follow.id] = true
				inFlight++
				workCh <- follow
			}
		}
	}
}

// runDry resolves every item locally: an existing mapping counts as
// reconciled, a fresh item as created when the ledger grants its
// reservation. No remote calls are made; the caller skips persisting
// state in dry-run mode, so nothing durable survives the process.
func (r *run) runDry() {
	for _, id := range r.ordered {
		if r.outcomes[id] != nil {
			continue
		}
		if ref, ok := r.index[id]; ok {
			r.record(id, types.DispositionReconciled, ref.number, "")
			continue
		}
		t := r.bl.TaskByID[id]
		if !r.d.led.Reserve(t.EstimatedHours) {
			r.deferBudget(id)
			continue
		}
		r.d.led.Commit(id, t.CostCategory, t.EstimatedHours)
		r.record(id, types.DispositionCreated, 0, "")
	}
}

// ready reports whether every prerequisite of id inside the dispatch set
// has resolved. Unsuccessful prerequisites resolve their dependents through
// propagation the moment they finish, so an outcome-less task only ever
// waits on in-flight work.
func (r *run) ready(id string) bool {
	for _, p := range r.g.Prerequisites(id) {
		if r.inSet[p] && r.outcomes[p] == nil {
			return false
		}
	}
	return true
}

// prepare stages id for the pool. It returns false when the item resolved
// without remote work (a refused budget reservation).
func (r *run) prepare(id string) (workItem, bool) {
	t := r.bl.TaskByID[id]
	e := r.bl.EpicByKey[t.EpicKey]
	payload := BuildIssue(e, t)

	if ref, ok := r.index[id]; ok {
		return workItem{id: id, payload: payload, number: ref.number, listed: ref.issue}, true
	}
	if !r.d.led.Reserve(t.EstimatedHours) {
		r.deferBudget(id)
		return workItem{}, false
	}
	return workItem{
		id:      id,
		create:  true,
		payload: payload,
		agent:   AgentFor(t),
		amount:  t.EstimatedHours,
	}, true
}

// finish applies one worker result under the single-writer discipline. It
// may hand back a follow-up item: a reconcile whose durable issue turned
// out to be gone falls through to creation.
func (r *run) finish(res workResult, draining bool) (workItem, bool) {
	id := res.item.id
	t := r.bl.TaskByID[id]

	switch {
	case res.err != nil:
		if res.item.create {
			r.d.led.Release(res.item.amount)
			r.setDurable(id, types.StatusPending, 0, "")
		}
		r.record(id, types.DispositionFailed, res.item.number, res.err.Error())
		log.Error(fmt.Sprintf("dispatch %s: %v", id, res.err))
		r.propagate(id, fmt.Sprintf("prerequisite %s failed", id))

	case res.stale:
		if draining {
			r.record(id, types.DispositionFailed, 0, "run cancelled before recreate")
			return workItem{}, false
		}
		delete(r.index, id)
		if !r.d.led.Reserve(t.EstimatedHours) {
			r.deferBudget(id)
			return workItem{}, false
		}
		log.Warning(fmt.Sprintf("issue #%d for %s is gone, recreating", res.item.number, id))
		return workItem{
			id:      id,
			create:  true,
			payload: res.item.payload,
			agent:   AgentFor(t),
			amount:  t.EstimatedHours,
		}, true

	case res.item.create:
		r.d.led.Commit(id, t.CostCategory, res.item.amount)
		r.record(id, types.DispositionCreated, res.issue.Number, "")
		r.setDurable(id, types.StatusDispatched, res.issue.Number, res.issue.NodeID)
		log.OK(fmt.Sprintf("created issue #%d for %s", res.issue.Number, id))

	case res.closed:
		// A human closed the issue: the work is finished.
		r.record(id, types.DispositionReconciled, res.issue.Number, "")
		r.setDurable(id, types.StatusDone, res.issue.Number, res.issue.NodeID)
		log.Info(fmt.Sprintf("issue #%d for %s is closed, marking done", res.issue.Number, id))

	default:
		r.record(id, types.DispositionReconciled, res.issue.Number, "")
		r.setDurable(id, types.StatusDispatched, res.issue.Number, res.issue.NodeID)
		if res.drift {
			log.Info(fmt.Sprintf("reconciled issue #%d for %s (content drifted)", res.issue.Number, id))
		}
	}
	return workItem{}, false
}

// deferBudget marks id skipped for budget and blocks its dependents for
// this run; both stay pending durably and retry next run.
func (r *run) deferBudget(id string) {
	r.record(id, types.DispositionSkippedBudget, 0, "")
	r.setDurable(id, types.StatusPending, 0, "")
	log.Info(fmt.Sprintf("budget refused %s, deferring", id))
	r.propagate(id, fmt.Sprintf("prerequisite %s deferred by budget", id))
}

// propagate marks every unresolved transitive dependent of rootID as
// skipped-blocked. Dependents keep durable status blocked for this run;
// the next run recomputes it from the fresh model.
func (r *run) propagate(rootID, reason string) {
	for _, dep := range r.g.TransitiveDependents(rootID) {
		if !r.inSet[dep] || r.outcomes[dep] != nil {
			continue
		}
		num := 0
		if ref, ok := r.index[dep]; ok {
			num = ref.number
		}
		r.record(dep, types.DispositionSkippedBlocked, num, reason)
		r.setDurable(dep, types.StatusBlocked, 0, "")
	}
}

func (r *run) record(id string, disp types.Disposition, number int, reason string) {
	r.outcomes[id] = &types.ItemOutcome{
		TaskID:      id,
		IssueNumber: number,
		Disposition: disp,
		Reason:      reason,
	}
}

// setDurable updates the durable record for id. StateEnteredAt only moves
// when the status actually changes, so stuck detection measures real time
// spent in a state. A zero number or empty nodeID keeps the stored value.
func (r *run) setDurable(id string, status types.Status, number int, nodeID string) {
	rec := r.st.Issues[id]
	if number > 0 && number != rec.IssueNumber {
		// A different issue now carries the task; the old board item is dead.
		rec.IssueNumber = number
		rec.BoardItemID = ""
	}
	if nodeID != "" {
		rec.NodeID = nodeID
	}
	if rec.Status != status {
		rec.Status = status
		rec.StateEnteredAt = time.Now().UTC()
	}
	r.st.Issues[id] = rec
}

func (r *run) allResolved() bool {
	for _, id := range r.ordered {
		if r.outcomes[id] == nil {
			return false
		}
	}
	return true
}

func (r *run) failLeftovers(reason string) {
	for _, id := range r.ordered {
		if r.outcomes[id] == nil {
			r.record(id, types.DispositionFailed, 0, reason)
		}
	}
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

// process executes one item remotely. Creates POST the issue and then post
// the persona comment; reconciles compare against the open listing (or
// fetch by number) and PATCH only on drift.
func (d *Dispatcher) process(ctx context.Context, w workItem) workResult {
	if w.create {
		issue, err := d.doCreate(ctx, w)
		return workResult{item: w, issue: issue, err: err}
	}
	return d.doReconcile(ctx, w)
}

func (d *Dispatcher) doCreate(ctx context.Context, w workItem) (*tracker.Issue, error) {
	var issue *tracker.Issue
	err := d.withRetry(ctx, func(c context.Context) error {
		var cerr error
		issue, cerr = d.client.CreateIssue(c, w.payload)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	// The assignment comment is best-effort: one attempt, failure logged.
	if werr := d.lim.wait(ctx); werr == nil {
		if cerr := d.client.AddComment(ctx, issue.Number, assignmentComment(w.agent)); cerr != nil {
			log.Warning(fmt.Sprintf("assign agent on #%d: %v", issue.Number, cerr))
		}
	}
	return issue, nil
}

func (d *Dispatcher) doReconcile(ctx context.Context, w workItem) workResult {
	existing := w.listed
	if existing == nil {
		err := d.withRetry(ctx, func(c context.Context) error {
			var gerr error
			existing, gerr = d.client.GetIssue(c, w.number)
			return gerr
		})
		if err != nil {
			var api *tracker.APIError
			if errors.As(err, &api) && (api.StatusCode == http.StatusNotFound || api.StatusCode == http.StatusGone) {
				return workResult{item: w, stale: true}
			}
			return workResult{item: w, err: err}
		}
	}

	if existing.State == "closed" {
		return workResult{item: w, issue: existing, closed: true}
	}
	if !issueDrifted(existing, w.payload) {
		return workResult{item: w, issue: existing}
	}

	labels := w.payload.Labels
	patch := tracker.IssuePatch{
		Title:  tracker.String(w.payload.Title),
		Body:   tracker.String(w.payload.Body),
		Labels: &labels,
	}
	var updated *tracker.Issue
	err := d.withRetry(ctx, func(c context.Context) error {
		var uerr error
		updated, uerr = d.client.UpdateIssue(c, existing.Number, patch)
		return uerr
	})
	if err != nil {
		return workResult{item: w, err: err}
	}
	return workResult{item: w, issue: updated, drift: true}
}

// withRetry paces call through the shared limiter and retries transient
// failures with exponential backoff, up to MaxAttempts attempts total.
func (d *Dispatcher) withRetry(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if werr := d.lim.wait(ctx); werr != nil {
			return werr
		}
		err = call(ctx)
		if err == nil || !retryable(err) || attempt >= d.opts.MaxAttempts {
			return err
		}
		delay := backoffDelay(attempt, retryHint(err))
		log.Warning(fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
