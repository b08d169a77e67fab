// Package state provides atomic load and save operations for the two
// durable orchestrator files: tracker-state.yaml and cost-ledger.yaml.
//
// All writes are atomic: data is marshalled to a .tmp file in the same
// directory, then os.Rename replaces the target in a single kernel call.
// This prevents partial writes from corrupting cross-run state.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// File names inside the state directory.
const (
	TrackerStateFile = "tracker-state.yaml"
	LedgerFileName   = "cost-ledger.yaml"
)

// ErrNotFound is returned by Load functions when the state file does not exist.
var ErrNotFound = errors.New("state file not found")

// ParseError is returned when a state file exists but cannot be unmarshalled.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EnsureDir creates the state directory if it does not exist and verifies it
// is writable. First run bootstrap: both state files start absent and are
// created on the first save.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("state dir %s not writable: %w", dir, err)
	}
	return os.Remove(probe)
}

// LoadTrackerState reads tracker-state.yaml from dir.
// Returns ErrNotFound if the file is absent, or *ParseError on malformed YAML.
// The Issues map is always non-nil on success so callers can index freely.
func LoadTrackerState(dir string) (*types.TrackerState, error) {
	path := filepath.Join(dir, TrackerStateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var ts types.TrackerState
	if err := yaml.Unmarshal(data, &ts); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if ts.Issues == nil {
		ts.Issues = map[string]types.IssueRecord{}
	}
	return &ts, nil
}

// SaveTrackerState atomically writes ts to tracker-state.yaml in dir.
func SaveTrackerState(dir string, ts *types.TrackerState) error {
	data, err := yaml.Marshal(ts)
	if err != nil {
		return fmt.Errorf("marshal tracker state: %w", err)
	}
	return atomicWrite(filepath.Join(dir, TrackerStateFile), data)
}

// LoadLedger reads cost-ledger.yaml from dir.
// Returns ErrNotFound if the file is absent, or *ParseError on malformed YAML.
func LoadLedger(dir string) (*types.LedgerFile, error) {
	path := filepath.Join(dir, LedgerFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var lf types.LedgerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &lf, nil
}

// SaveLedger atomically writes lf to cost-ledger.yaml in dir.
// The consumed total must never decrease across saves; the ledger enforces
// that invariant before calling here.
func SaveLedger(dir string, lf *types.LedgerFile) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	return atomicWrite(filepath.Join(dir, LedgerFileName), data)
}

// atomicWrite writes data to path by first writing to path+".tmp",
// then calling os.Rename to replace the final target atomically.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup on rename failure
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
