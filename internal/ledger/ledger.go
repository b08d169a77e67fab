// Package ledger enforces the run budget. A Ledger wraps the durable
// cost-ledger file: Reserve gates each dispatch against the ceiling before
// any remote call is made, Commit records spend after a dispatch succeeds,
// and Release returns an unused reservation after a failure. A refusal from
// Reserve is backpressure, not an error: the item defers to a later run.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

// warnFraction is the share of the ceiling past which the ledger logs a
// budget warning, once per run.
const warnFraction = 0.8

// Ledger is safe for concurrent use by the dispatch workers. Reservations
// count in-flight work so parallel dispatches cannot jointly overshoot the
// ceiling.
type Ledger struct {
	mu       sync.Mutex
	ceiling  float64
	consumed float64
	reserved float64
	entries  []types.LedgerEntry
	warned   bool
}

// New builds a Ledger over the durable file contents. A nil file starts the
// ledger empty; consumed spend from prior runs carries forward.
func New(ceiling float64, file *types.LedgerFile) *Ledger {
	l := &Ledger{ceiling: ceiling}
	if file != nil {
		l.consumed = file.Consumed
		l.entries = append(l.entries, file.Entries...)
	}
	return l
}

// Reserve asks whether amount may be spent without crossing the ceiling,
// counting reservations already handed to in-flight dispatches. It reserves
// and reports true, or refuses and reports false. Refusal leaves the item
// pending for a later run.
func (l *Ledger) Reserve(amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consumed+l.reserved+amount > l.ceiling {
		return false
	}
	l.reserved += amount
	return true
}

// Release returns a reservation after the dispatch it gated failed. The
// amount must match what Reserve granted.
func (l *Ledger) Release(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Commit converts a reservation into recorded spend. Called only after the
// dispatch succeeded.
func (l *Ledger) Commit(taskID string, category types.CostCategory, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.consumed += amount
	l.entries = append(l.entries, types.LedgerEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Category:  category,
		Amount:    amount,
		Total:     l.consumed,
	})
	if !l.warned && l.ceiling > 0 && l.consumed >= l.ceiling*warnFraction {
		l.warned = true
		log.Warning(fmt.Sprintf("budget at %.1f%% of ceiling (%.2f of %.2f consumed)",
			l.consumed/l.ceiling*100, l.consumed, l.ceiling))
	}
}

// Consumed returns the durable running total.
func (l *Ledger) Consumed() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumed
}

// Ceiling returns the configured budget ceiling.
func (l *Ledger) Ceiling() float64 { return l.ceiling }

// Remaining returns the headroom under the ceiling, ignoring in-flight
// reservations.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ceiling - l.consumed
}

// File snapshots the ledger for atomic persistence at run end.
func (l *Ledger) File() *types.LedgerFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]types.LedgerEntry, len(l.entries))
	copy(entries, l.entries)
	return &types.LedgerFile{Consumed: l.consumed, Entries: entries}
}

// ---------------------------------------------------------------------------
// Cost report
// ---------------------------------------------------------------------------

// CostReport is the exportable JSON view of the ledger.
type CostReport struct {
	ReportGenerated time.Time          `json:"report_generated"`
	BudgetCeiling   float64            `json:"budget_ceiling"`
	TotalConsumed   float64            `json:"total_consumed"`
	Remaining       float64            `json:"remaining"`
	UsagePercent    float64            `json:"usage_percent"`
	CostBreakdown   map[string]float64 `json:"cost_breakdown"`
	CostEntries     []CostReportEntry  `json:"cost_entries"`
}

// CostReportEntry is one committed spend in the JSON report.
type CostReportEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	Category  string    `json:"category"`
	Amount    float64   `json:"amount"`
	Total     float64   `json:"total"`
}

// Report renders the indented JSON cost report: totals, usage percentage,
// per-category breakdown, and every entry. Empty categories report as
// "uncategorized".
func (l *Ledger) Report(now time.Time) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	breakdown := make(map[string]float64)
	entries := make([]CostReportEntry, 0, len(l.entries))
	for _, e := range l.entries {
		cat := string(e.Category)
		if cat == "" {
			cat = "uncategorized"
		}
		breakdown[cat] += e.Amount
		entries = append(entries, CostReportEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			TaskID:    e.TaskID,
			Category:  cat,
			Amount:    e.Amount,
			Total:     e.Total,
		})
	}

	pct := 0.0
	if l.ceiling > 0 {
		pct = l.consumed / l.ceiling * 100
	}

	return json.MarshalIndent(CostReport{
		ReportGenerated: now,
		BudgetCeiling:   l.ceiling,
		TotalConsumed:   l.consumed,
		Remaining:       l.ceiling - l.consumed,
		UsagePercent:    pct,
		CostBreakdown:   breakdown,
		CostEntries:     entries,
	}, "", "  ")
}
