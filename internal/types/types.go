// Package types defines all shared structs and typed constants used by the
// factory orchestrator. YAML struct tags match the BACKLOG.yml authoring
// schema and the durable state files (snake_case field names).
package types

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Typed constants
// ---------------------------------------------------------------------------

// Priority orders work items for dispatch. Absent priorities default to
// PriorityMedium at load time.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the dispatch ordering of a priority: lower ranks dispatch
// first. Unknown values rank after low so a corrupt status sorts last
// instead of jumping the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Valid reports whether p is one of the three recognized priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Status represents the lifecycle state of a backlog item.
//
// StatusBlockedHuman is the human-applied flavor of blocked: it is set by a
// person (in the backlog document or durable state) and is the only status
// that propagates through the dependency graph. Plain StatusBlocked is
// orchestrator-applied (propagation or failed prerequisite) and is
// recomputed every run.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDispatched   Status = "dispatched"
	StatusBlocked      Status = "blocked"
	StatusBlockedHuman Status = "blocked:human"
	StatusDone         Status = "done"
)

// IsBlocked reports whether the status is either blocked flavor.
func (s Status) IsBlocked() bool {
	return s == StatusBlocked || s == StatusBlockedHuman
}

// Valid reports whether s is a recognized status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDispatched, StatusBlocked, StatusBlockedHuman, StatusDone:
		return true
	}
	return false
}

// CostCategory classifies spend recorded against the ledger. The empty
// category is allowed and reported as "uncategorized".
type CostCategory string

const (
	CostAPICalls       CostCategory = "api_calls"
	CostCompute        CostCategory = "compute"
	CostStorage        CostCategory = "storage"
	CostBandwidth      CostCategory = "bandwidth"
	CostModelInference CostCategory = "model_inference"
)

// Valid reports whether c is empty or one of the recognized categories.
func (c CostCategory) Valid() bool {
	switch c {
	case "", CostAPICalls, CostCompute, CostStorage, CostBandwidth, CostModelInference:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// BACKLOG.yml model
// ---------------------------------------------------------------------------

// Backlog is the fully validated in-memory model of BACKLOG.yml. Epics keep
// document order; the index maps share the same Epic/Task values.
type Backlog struct {
	Epics     []Epic
	EpicByKey map[string]*Epic
	TaskByID  map[string]*Task
}

// Epic is one entry in the top-level backlog map. It owns its tasks.
type Epic struct {
	Key         string
	Title       string
	Description string
	Priority    Priority
	Status      Status
	Tasks       []Task
}

// Task is a single work item inside an epic.
//
// ID is derived deterministically from the owning epic key and the task
// title (see TaskID), so the same logical task maps to the same identifier
// on every run. DocOrder is the item's position in the whole document and
// breaks dispatch-order ties after priority.
type Task struct {
	ID             string
	EpicKey        string
	Title          string
	Description    string
	Priority       Priority
	EstimatedHours float64
	CostCategory   CostCategory
	DependsOn      []string
	Status         Status
	DocOrder       int
}

// Slug lowercases s and collapses every run of non-alphanumeric characters
// into a single hyphen. Used for task identifiers and epic labels.
func Slug(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// TaskID derives the deterministic identifier for a task: the owning epic
// key joined to the slugged title with a dot. This is the idempotency key
// embedded in remote issues.
func TaskID(epicKey, title string) string {
	return epicKey + "." + Slug(title)
}

// ---------------------------------------------------------------------------
// Durable state file types (.factory/tracker-state.yaml, cost-ledger.yaml)
// ---------------------------------------------------------------------------

// TrackerState mirrors tracker-state.yaml: the durable mapping from task
// identifier to its remote issue, plus the timestamps stuck detection reads.
type TrackerState struct {
	Issues map[string]IssueRecord `yaml:"issues"`
}

// IssueRecord binds one task identifier to its remote issue. At most one
// record exists per identifier. BoardItemID is empty until board sync
// attaches the issue; a non-empty value makes re-attachment a no-op.
type IssueRecord struct {
	IssueNumber    int       `yaml:"issue_number"`
	NodeID         string    `yaml:"node_id,omitempty"`
	BoardItemID    string    `yaml:"board_item_id,omitempty"`
	Status         Status    `yaml:"status"`
	StateEnteredAt time.Time `yaml:"state_entered_at"`
}

// LedgerFile mirrors cost-ledger.yaml. Consumed is the running total and is
// monotonically non-decreasing: entries only ever append.
type LedgerFile struct {
	Consumed float64       `yaml:"consumed"`
	Entries  []LedgerEntry `yaml:"entries"`
}

// LedgerEntry records one committed spend against the budget.
type LedgerEntry struct {
	ID        string       `yaml:"id"`
	Timestamp time.Time    `yaml:"timestamp"`
	TaskID    string       `yaml:"task_id"`
	Category  CostCategory `yaml:"category,omitempty"`
	Amount    float64      `yaml:"amount"`
	Total     float64      `yaml:"total"`
}

// ---------------------------------------------------------------------------
// Run report types
// ---------------------------------------------------------------------------

// Disposition is the final per-item outcome recorded in the run report.
type Disposition string

const (
	DispositionCreated        Disposition = "created"
	DispositionReconciled     Disposition = "reconciled"
	DispositionSkippedBudget  Disposition = "skipped-budget"
	DispositionSkippedBlocked Disposition = "skipped-blocked"
	DispositionFailed         Disposition = "failed"
)

// ItemOutcome is one line of the run report: what happened to one task.
// Reason is set only for failed and skipped-blocked dispositions.
type ItemOutcome struct {
	TaskID        string
	IssueNumber   int
	Disposition   Disposition
	Reason        string
	BoardAttached bool
}

// Counts aggregates dispositions for the report summary.
type Counts struct {
	Created        int
	Reconciled     int
	SkippedBudget  int
	SkippedBlocked int
	Failed         int
}

// Add increments the counter matching d.
func (c *Counts) Add(d Disposition) {
	switch d {
	case DispositionCreated:
		c.Created++
	case DispositionReconciled:
		c.Reconciled++
	case DispositionSkippedBudget:
		c.SkippedBudget++
	case DispositionSkippedBlocked:
		c.SkippedBlocked++
	case DispositionFailed:
		c.Failed++
	}
}

// Total returns the number of counted items.
func (c Counts) Total() int {
	return c.Created + c.Reconciled + c.SkippedBudget + c.SkippedBlocked + c.Failed
}

// ---------------------------------------------------------------------------
// Escalation events
// ---------------------------------------------------------------------------

// EscalationKind classifies an escalation event.
type EscalationKind string

const (
	// EscalationStuck: an item sat in pending/blocked beyond its threshold.
	EscalationStuck EscalationKind = "stuck"
	// EscalationEpicBlocked: a human-blocked prerequisite propagated far
	// enough to block an entire epic.
	EscalationEpicBlocked EscalationKind = "epic-blocked"
	// EscalationCycle: the dependency graph contains a cycle. Emitted
	// immediately regardless of elapsed time.
	EscalationCycle EscalationKind = "cycle"
)

// Escalation is a typed signal for a human-facing channel. The orchestrator
// records escalations in the run report; it never performs the notification
// itself.
type Escalation struct {
	Kind    EscalationKind
	TaskID  string
	EpicKey string
	Elapsed time.Duration
	Message string
}
