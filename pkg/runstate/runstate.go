// Package runstate persists the resumable run-state document of spec.md
// §6: a single JSON file recording the run id, its start time, the current
// global phase, and a per-plugin lifecycle record, rewritten atomically
// after every per-plugin phase transition.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is a plugin's lifecycle status within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// PluginRecord is the per-plugin lifecycle record embedded in RunState.
type PluginRecord struct {
	Phase       string     `json:"phase"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunState is the full persisted document.
type RunState struct {
	RunID     string                   `json:"run_id"`
	StartedAt time.Time                `json:"started_at"`
	Phase     string                   `json:"phase"`
	Plugins   map[string]*PluginRecord `json:"plugins"`
}

// New creates a fresh RunState for runID, starting now.
func New(runID string, now time.Time) *RunState {
	return &RunState{
		RunID:     runID,
		StartedAt: now.UTC(),
		Phase:     "init",
		Plugins:   make(map[string]*PluginRecord),
	}
}

// Store owns the single on-disk JSON document for a run, written
// atomically (temp file + rename).
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save marshals state as indented JSON and atomically replaces the file
// at the store's path.
func (s *Store) Save(state *RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run-state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp run-state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename run-state file: %w", err)
	}
	return nil
}

// Load reads and parses the run-state document from the store's path.
func (s *Store) Load() (*RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read run-state file: %w", err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal run-state file: %w", err)
	}
	return &state, nil
}

// Path returns the store's backing file path.
func (s *Store) Path() string {
	return s.path
}

// MarkRunning records a plugin entering phase, overwriting any prior
// record for that plugin.
func (rs *RunState) MarkRunning(plugin, phase string, startedAt time.Time) {
	t := startedAt.UTC()
	rs.Plugins[plugin] = &PluginRecord{
		Phase:     phase,
		Status:    StatusRunning,
		StartedAt: &t,
	}
}

// MarkCompleted finalizes a plugin's current phase record as completed.
func (rs *RunState) MarkCompleted(plugin string, completedAt time.Time) {
	rec, ok := rs.Plugins[plugin]
	if !ok {
		rec = &PluginRecord{}
		rs.Plugins[plugin] = rec
	}
	t := completedAt.UTC()
	rec.Status = StatusCompleted
	rec.CompletedAt = &t
	rec.Error = ""
}

// MarkFailed finalizes a plugin's current phase record as failed with err.
func (rs *RunState) MarkFailed(plugin string, completedAt time.Time, err error) {
	rec, ok := rs.Plugins[plugin]
	if !ok {
		rec = &PluginRecord{}
		rs.Plugins[plugin] = rec
	}
	t := completedAt.UTC()
	rec.Status = StatusFailed
	rec.CompletedAt = &t
	if err != nil {
		rec.Error = err.Error()
	}
}

// MarkSkipped records a plugin as skipped for the given phase without it
// ever having run (e.g. IsApplicable returned false).
func (rs *RunState) MarkSkipped(plugin, phase string) {
	rs.Plugins[plugin] = &PluginRecord{
		Phase:  phase,
		Status: StatusSkipped,
	}
}

// DefaultPath returns the well-known path for a run's state document
// given the configured run-state directory and run id.
func DefaultPath(runStateDir, runID string) string {
	return filepath.Join(runStateDir, runID+".json")
}
