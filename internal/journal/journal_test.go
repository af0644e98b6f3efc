package journal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAddEventAssignsSequence(t *testing.T) {
	run := &Run{ID: "run-1"}

	first := run.AddEvent(Event{Type: EventPlanStart})
	second := run.AddEvent(Event{Type: EventPlanComplete})
	if first != 1 || second != 2 {
		t.Errorf("sequence ids = %d, %d, want 1, 2", first, second)
	}
	if run.CurrentSeqID() != 2 {
		t.Errorf("current seq = %d, want 2", run.CurrentSeqID())
	}
	if run.Events[0].Timestamp.IsZero() {
		t.Error("event timestamp was not stamped")
	}
}

func TestAddEventIsSafeUnderConcurrency(t *testing.T) {
	run := &Run{ID: "run-1"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.AddEvent(Event{Type: EventNodeStart})
		}()
	}
	wg.Wait()

	if len(run.Events) != 50 {
		t.Fatalf("events = %d, want 50", len(run.Events))
	}
	seen := make(map[uint64]bool, 50)
	for _, event := range run.Events {
		if seen[event.SeqID] {
			t.Fatalf("duplicate sequence id %d", event.SeqID)
		}
		seen[event.SeqID] = true
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	manager := NewManager(store)
	run, err := manager.Create("analyze the sales data", "until_complete")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	run.AddEvent(Event{
		Type: EventNodeEnd, Component: "controller", Node: "task_1",
		Meta: &EventMeta{Produced: []string{"code_assessment"}},
	})
	run.Status = StatusComplete
	run.Artifacts = map[string]interface{}{"code_assessment": "ok"}
	if err := manager.Update(run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := manager.Get(run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Goal != "analyze the sales data" || loaded.Mode != "until_complete" {
		t.Errorf("header round trip lost fields: %+v", loaded)
	}
	if loaded.Status != StatusComplete {
		t.Errorf("status = %q, want complete", loaded.Status)
	}
	if len(loaded.Events) != 1 || loaded.Events[0].Node != "task_1" {
		t.Fatalf("events round trip = %+v", loaded.Events)
	}
	if meta := loaded.Events[0].Meta; meta == nil || len(meta.Produced) != 1 {
		t.Errorf("event meta lost: %+v", loaded.Events[0].Meta)
	}
	// Sequence counter resumes from the last persisted event.
	if seq := loaded.AddEvent(Event{Type: EventCheckin}); seq != 2 {
		t.Errorf("resumed seq = %d, want 2", seq)
	}
}

func TestFileStoreToleratesMissingTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	run := &Run{ID: "run-x", Goal: "g", Status: StatusRunning}
	run.AddEvent(Event{Type: EventPlanStart})
	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "run-x.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	trimmed := data[:len(data)-1]
	if err := os.WriteFile(path, trimmed, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := store.Load("run-x")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != StatusRunning {
		t.Errorf("footer on unterminated line was dropped, status = %q", loaded.Status)
	}
	if len(loaded.Events) != 1 {
		t.Errorf("events = %d, want 1", len(loaded.Events))
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish("run-1", Event{Type: EventCheckin})
	p.Close()
}
