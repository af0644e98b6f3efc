package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// JSONL record types for the streaming journal format.
const (
	RecordTypeHeader = "header" // Run metadata (first line)
	RecordTypeEvent  = "event"  // Individual event
	RecordTypeFooter = "footer" // Final state (last line, optional)
)

// JSONLRecord is a wrapper for JSONL lines with type discrimination.
type JSONLRecord struct {
	RecordType string `json:"_type"` // header, event, footer

	// Header fields (when _type == "header")
	ID        string    `json:"id,omitempty"`
	Goal      string    `json:"goal,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Event fields (when _type == "event")
	*Event `json:",omitempty"`

	// Footer fields (when _type == "footer")
	Status    string                 `json:"status,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Artifacts map[string]interface{} `json:"artifacts,omitempty"`
	State     map[string]interface{} `json:"state,omitempty"`
	UpdatedAt time.Time              `json:"updated_at,omitempty"`
}

// FileStore implements Store using one JSONL file per run.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-based journal store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save persists a run to disk in JSONL format.
func (s *FileStore) Save(run *Run) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	path := filepath.Join(s.dir, run.ID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}
	defer f.Close()

	header := JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         run.ID,
		Goal:       run.Goal,
		Mode:       run.Mode,
		CreatedAt:  run.CreatedAt,
	}
	if err := s.writeLine(f, header); err != nil {
		return err
	}

	for _, evt := range run.Events {
		evtCopy := evt
		record := JSONLRecord{
			RecordType: RecordTypeEvent,
			Event:      &evtCopy,
		}
		if err := s.writeLine(f, record); err != nil {
			return err
		}
	}

	footer := JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     run.Status,
		Error:      run.Error,
		Artifacts:  run.Artifacts,
		State:      run.State,
		UpdatedAt:  run.UpdatedAt,
	}
	return s.writeLine(f, footer)
}

// writeLine writes a single JSONL record.
func (s *FileStore) writeLine(f *os.File, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return nil
}

// Load reads a run from disk.
func (s *FileStore) Load(id string) (*Run, error) {
	path := filepath.Join(s.dir, id+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run := &Run{
		State:     make(map[string]interface{}),
		Artifacts: make(map[string]interface{}),
		Events:    []Event{},
	}

	// bufio.Reader instead of Scanner - no line length limits
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Process final line if no trailing newline
				if len(bytes.TrimSpace(line)) > 0 {
					if parseErr := s.parseLine(line, run); parseErr != nil {
						return nil, parseErr
					}
				}
				break
			}
			return nil, fmt.Errorf("error reading journal: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := s.parseLine(line, run); err != nil {
			return nil, err
		}
	}

	// Restore sequence counter from last event
	if len(run.Events) > 0 {
		run.seqCounter = run.Events[len(run.Events)-1].SeqID
	}
	return run, nil
}

// parseLine parses a single JSONL line into the run.
func (s *FileStore) parseLine(line []byte, run *Run) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse journal line: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		run.ID = record.ID
		run.Goal = record.Goal
		run.Mode = record.Mode
		run.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			run.Events = append(run.Events, *record.Event)
		}
	case RecordTypeFooter:
		run.Status = record.Status
		run.Error = record.Error
		run.Artifacts = record.Artifacts
		run.State = record.State
		run.UpdatedAt = record.UpdatedAt
	}
	return nil
}
