// Package backlog loads the declarative BACKLOG.yml document and builds the
// typed model the orchestrator consumes. Validation collects everything: a
// malformed document reports every violation at once instead of failing on
// the first one found.
package backlog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// ---------------------------------------------------------------------------
// MalformedBacklogError
// ---------------------------------------------------------------------------

// MalformedBacklogError lists every schema violation found in a backlog
// document. It is fatal: nothing is dispatched from a document that fails
// validation.
type MalformedBacklogError struct {
	Violations []string
}

func (e *MalformedBacklogError) Error() string {
	if len(e.Violations) == 1 {
		return "malformed backlog: " + e.Violations[0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "malformed backlog: %d violations:", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Document schema
// ---------------------------------------------------------------------------

// epicDoc and taskDoc mirror the authoring schema exactly. EstimatedHours is
// a pointer so a missing value is distinguishable from an explicit zero.
type epicDoc struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Priority    string    `yaml:"priority"`
	Status      string    `yaml:"status"`
	Tasks       []taskDoc `yaml:"tasks"`
}

type taskDoc struct {
	Task           string   `yaml:"task"`
	Description    string   `yaml:"description"`
	Priority       string   `yaml:"priority"`
	EstimatedHours *float64 `yaml:"estimated_hours"`
	CostCategory   string   `yaml:"cost_category"`
	DependsOn      []string `yaml:"depends_on"`
	Status         string   `yaml:"status"`
}

// ---------------------------------------------------------------------------
// Load / Parse
// ---------------------------------------------------------------------------

// Load reads and validates the backlog document at path.
func Load(path string) (*types.Backlog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	return Parse(data)
}

// Parse builds the backlog model from raw document bytes:
//
//  1. Decode the top-level "backlog" mapping, keeping epics in file order.
//  2. Derive the deterministic identifier for every task (epic key + slug).
//  3. Apply defaults: medium priority, pending status.
//  4. Collect every schema violation across the whole document.
//  5. Return the model, or a MalformedBacklogError naming all violations.
//
// Pure transform: no side effects beyond reading its input.
func Parse(data []byte) (*types.Backlog, error) {
	var doc struct {
		Backlog yaml.Node `yaml:"backlog"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedBacklogError{Violations: []string{fmt.Sprintf("not valid YAML: %v", err)}}
	}
	if doc.Backlog.Kind == 0 || doc.Backlog.Tag == "!!null" {
		return nil, &MalformedBacklogError{Violations: []string{`top-level "backlog" mapping is required but missing`}}
	}
	if doc.Backlog.Kind != yaml.MappingNode {
		return nil, &MalformedBacklogError{Violations: []string{`"backlog" must be a mapping of epic-key to epic definition`}}
	}

	var violations []string
	bl := &types.Backlog{
		EpicByKey: make(map[string]*types.Epic),
		TaskByID:  make(map[string]*types.Task),
	}
	seenID := make(map[string]bool)
	seenEpic := make(map[string]bool)

	// A mapping node stores its key/value pairs flattened into Content.
	docOrder := 0
	for i := 0; i+1 < len(doc.Backlog.Content); i += 2 {
		key := doc.Backlog.Content[i].Value
		if seenEpic[key] {
			violations = append(violations, fmt.Sprintf("epic %q: duplicate epic key", key))
			continue
		}
		seenEpic[key] = true

		var ed epicDoc
		if err := doc.Backlog.Content[i+1].Decode(&ed); err != nil {
			violations = append(violations, fmt.Sprintf("epic %q: %v", key, err))
			continue
		}

		epic := types.Epic{
			Key:         key,
			Title:       ed.Title,
			Description: ed.Description,
			Priority:    types.PriorityMedium,
			Status:      types.StatusPending,
		}
		if ed.Title == "" {
			violations = append(violations, fmt.Sprintf("epic %q: title is required but empty", key))
		}
		if ed.Priority != "" {
			epic.Priority = types.Priority(ed.Priority)
			if !epic.Priority.Valid() {
				violations = append(violations, fmt.Sprintf("epic %q: invalid priority %q (must be high, medium, or low)", key, ed.Priority))
			}
		}
		if ed.Status != "" {
			epic.Status = types.Status(ed.Status)
			if !epic.Status.Valid() {
				violations = append(violations, fmt.Sprintf("epic %q: invalid status %q", key, ed.Status))
			}
		}

		for ti, td := range ed.Tasks {
			where := fmt.Sprintf("epic %q: task %d", key, ti+1)
			if td.Task != "" {
				where = fmt.Sprintf("epic %q: task %q", key, td.Task)
			}

			task := types.Task{
				EpicKey:      key,
				Title:        td.Task,
				Description:  td.Description,
				Priority:     types.PriorityMedium,
				CostCategory: types.CostCategory(td.CostCategory),
				DependsOn:    td.DependsOn,
				Status:       types.StatusPending,
				DocOrder:     docOrder,
			}
			docOrder++

			if td.Task == "" {
				violations = append(violations, where+`: "task" (the title) is required but empty`)
			} else {
				task.ID = types.TaskID(key, td.Task)
				if seenID[task.ID] {
					violations = append(violations, fmt.Sprintf("%s: duplicate task identifier %q", where, task.ID))
				}
				seenID[task.ID] = true
			}

			switch {
			case td.EstimatedHours == nil:
				violations = append(violations, where+": estimated_hours is required but missing")
			case *td.EstimatedHours < 0:
				violations = append(violations, fmt.Sprintf("%s: estimated_hours %v must not be negative", where, *td.EstimatedHours))
			default:
				task.EstimatedHours = *td.EstimatedHours
			}

			if td.Priority != "" {
				task.Priority = types.Priority(td.Priority)
				if !task.Priority.Valid() {
					violations = append(violations, fmt.Sprintf("%s: invalid priority %q (must be high, medium, or low)", where, td.Priority))
				}
			}
			if td.Status != "" {
				task.Status = types.Status(td.Status)
				if !task.Status.Valid() {
					violations = append(violations, fmt.Sprintf("%s: invalid status %q", where, td.Status))
				}
			}
			if !task.CostCategory.Valid() {
				violations = append(violations, fmt.Sprintf("%s: invalid cost_category %q", where, td.CostCategory))
			}

			epic.Tasks = append(epic.Tasks, task)
		}

		bl.Epics = append(bl.Epics, epic)
	}

	// Index after the epic slice stops growing so the pointers stay valid.
	for i := range bl.Epics {
		e := &bl.Epics[i]
		bl.EpicByKey[e.Key] = e
		for j := range e.Tasks {
			t := &e.Tasks[j]
			if t.ID != "" {
				bl.TaskByID[t.ID] = t
			}
		}
	}

	// Dependency references may name a task identifier or an epic key; both
	// are graph nodes. Anything else is a violation.
	for _, e := range bl.Epics {
		for _, t := range e.Tasks {
			for _, dep := range t.DependsOn {
				if !seenID[dep] && bl.EpicByKey[dep] == nil {
					violations = append(violations, fmt.Sprintf("epic %q: task %q depends on unknown identifier %q", e.Key, t.Title, dep))
				}
			}
		}
	}

	if len(violations) > 0 {
		return nil, &MalformedBacklogError{Violations: violations}
	}
	return bl, nil
}
