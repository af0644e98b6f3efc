package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/openclaw/sentinel/internal/journal"
)

// LoadRun reads a run journal from a JSONL file. A missing footer leaves
// the run in the running state, which is exactly what a live file looks
// like mid-run.
func (r *Replayer) LoadRun(path string) (*journal.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	defer f.Close()

	run := &journal.Run{
		Status:    journal.StatusRunning,
		State:     make(map[string]interface{}),
		Artifacts: make(map[string]interface{}),
		Events:    []journal.Event{},
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(bytes.TrimSpace(line)) > 0 {
					if parseErr := r.parseLine(line, run); parseErr != nil {
						return nil, parseErr
					}
				}
				break
			}
			return nil, fmt.Errorf("error reading run file: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := r.parseLine(line, run); err != nil {
			return nil, err
		}
	}

	return run, nil
}

// parseLine folds a single JSONL record into the run.
func (r *Replayer) parseLine(line []byte, run *journal.Run) error {
	var record journal.JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse journal line: %w", err)
	}

	switch record.RecordType {
	case journal.RecordTypeHeader:
		run.ID = record.ID
		run.Goal = record.Goal
		run.Mode = record.Mode
		run.CreatedAt = record.CreatedAt

	case journal.RecordTypeEvent:
		if record.Event != nil {
			evt := *record.Event
			if r.maxContentSize > 0 && len(evt.Content) > r.maxContentSize {
				evt.Content = evt.Content[:r.maxContentSize] +
					fmt.Sprintf("\n... [truncated, %d bytes total]", len(record.Event.Content))
			}
			run.Events = append(run.Events, evt)
		}

	case journal.RecordTypeFooter:
		run.Status = record.Status
		run.Error = record.Error
		run.Artifacts = record.Artifacts
		run.State = record.State
		run.UpdatedAt = record.UpdatedAt
	}

	return nil
}
