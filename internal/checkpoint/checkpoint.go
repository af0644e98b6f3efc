// Package checkpoint persists per-cycle progress so an interrupted run can
// be resumed with its cycle and failure budgets intact.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CycleRecord is the durable snapshot taken after a cycle finishes.
type CycleRecord struct {
	Cycle        int       `json:"cycle"`
	PlanID       string    `json:"plan_id"`
	PlanVersion  int       `json:"plan_version"`
	Executed     []string  `json:"executed,omitempty"`
	Failed       []string  `json:"failed,omitempty"`
	Adjustment   string    `json:"adjustment,omitempty"`
	FailedCycles int       `json:"failed_cycles"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunCheckpoint accumulates the cycle history of one run.
type RunCheckpoint struct {
	RunID  string        `json:"run_id"`
	Goal   string        `json:"goal"`
	Cycles []CycleRecord `json:"cycles"`
}

// Last returns the most recent cycle record, or nil for an empty history.
func (rc *RunCheckpoint) Last() *CycleRecord {
	if rc == nil || len(rc.Cycles) == 0 {
		return nil
	}
	return &rc.Cycles[len(rc.Cycles)-1]
}

// Store manages run checkpoints on disk, one JSON file per run.
type Store struct {
	dir  string
	runs map[string]*RunCheckpoint
	mu   sync.RWMutex
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:  dir,
		runs: make(map[string]*RunCheckpoint),
	}, nil
}

// Append records a completed cycle for a run and flushes it to disk.
func (s *Store) Append(runID, goal string, rec CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.runs[runID]
	if !ok {
		rc = &RunCheckpoint{RunID: runID, Goal: goal}
		s.runs[runID] = rc
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rc.Cycles = append(rc.Cycles, rec)

	return s.flush(runID)
}

// Get retrieves the checkpoint history for a run, or nil if none exists.
func (s *Store) Get(runID string) *RunCheckpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[runID]
}

// flush writes one run's checkpoint file.
func (s *Store) flush(runID string) error {
	rc := s.runs[runID]
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s.json", runID))
	return os.WriteFile(path, data, 0644)
}

// Load restores checkpoints from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var rc RunCheckpoint
		if err := json.Unmarshal(data, &rc); err != nil {
			continue
		}
		if rc.RunID == "" {
			rc.RunID = entry.Name()[:len(entry.Name())-5]
		}
		s.runs[rc.RunID] = &rc
	}

	return nil
}
