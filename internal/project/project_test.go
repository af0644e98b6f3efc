package project

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/openclaw/sentinel/internal/dialog"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T, opts policy.Options) (*Engine, *strings.Builder) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	log := quietLogger()
	out := &strings.Builder{}
	manager := dialog.NewManager(out, memory.NewInMemoryStore(), nil, log)
	engine := policy.NewEngine(memory.NewInMemoryStore(), log, opts)
	return NewEngine(store, engine, manager, log), out
}

func TestCreateAndReloadProject(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	created, err := store.Create("rollout", "staged service rollout")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	loaded, err := store.Load(created.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "rollout" || loaded.Version != 1 {
		t.Errorf("loaded = %q v%d, want rollout v1", loaded.Name, loaded.Version)
	}
	if _, err := store.Load("missing"); err == nil {
		t.Error("expected error for unknown project")
	}
}

func TestSaveBumpsVersion(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	project, err := store.Create("rollout", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Save(project); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := store.Load(project.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Version != 2 {
		t.Errorf("version = %d, want 2", reloaded.Version)
	}
}

func TestAddGoalsEnforcesGoalCeiling(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{MaxGoals: 2})
	project, err := engine.CreateProject("rollout", "", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := engine.AddGoals(project.ID, []Goal{{Text: "a"}, {Text: "b"}}); err != nil {
		t.Fatalf("AddGoals within limit: %v", err)
	}
	_, err = engine.AddGoals(project.ID, []Goal{{Text: "c"}})
	var violation *policy.Violation
	if !errors.As(err, &violation) {
		t.Fatalf("AddGoals over limit = %v, want Violation", err)
	}

	// The rejected goal must not have been persisted.
	reloaded, err := engine.store.Load(project.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Goals) != 2 {
		t.Errorf("goals = %d after rejected add, want 2", len(reloaded.Goals))
	}
}

func TestRegisterPlanRejectsCycles(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{})
	project, err := engine.CreateProject("rollout", "", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	steps := []Step{
		{ID: "a", Action: "first", DependsOn: []string{"b"}},
		{ID: "b", Action: "second", DependsOn: []string{"a"}},
	}
	_, err = engine.RegisterPlan(project.ID, steps, "")
	var violation *policy.Violation
	if !errors.As(err, &violation) {
		t.Fatalf("RegisterPlan with cycle = %v, want Violation", err)
	}
}

func TestRegisterPlanRejectsUnresolvedDependencies(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{})
	project, err := engine.CreateProject("rollout", "", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	steps := []Step{{ID: "a", Action: "first", DependsOn: []string{"ghost"}}}
	_, err = engine.RegisterPlan(project.ID, steps, "")
	var violation *policy.Violation
	if !errors.As(err, &violation) {
		t.Fatalf("RegisterPlan with unresolved dep = %v, want Violation", err)
	}
}

func TestRegisterPlanEnforcesDepthCeiling(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{MaxDependencyDepth: 1})
	project, err := engine.CreateProject("rollout", "", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	steps := []Step{
		{ID: "a", Action: "first"},
		{ID: "b", Action: "second", DependsOn: []string{"a"}},
		{ID: "c", Action: "third", DependsOn: []string{"b"}},
	}
	_, err = engine.RegisterPlan(project.ID, steps, "")
	var violation *policy.Violation
	if !errors.As(err, &violation) {
		t.Fatalf("RegisterPlan over depth limit = %v, want Violation", err)
	}
}

func TestRegisterPlanComputesDepthAndOrder(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{})
	project, err := engine.CreateProject("rollout", "", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	steps := []Step{
		{ID: "deploy", Action: "deploy", DependsOn: []string{"build", "migrate"}},
		{ID: "build", Action: "build"},
		{ID: "migrate", Action: "migrate", DependsOn: []string{"build"}},
	}
	record, err := engine.RegisterPlan(project.ID, steps, "plan-1")
	if err != nil {
		t.Fatalf("RegisterPlan: %v", err)
	}
	if record.MaxDepth != 2 {
		t.Errorf("max depth = %d, want 2", record.MaxDepth)
	}

	order, err := engine.ExecutionOrder(project.ID)
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	want := []string{"build", "migrate", "deploy"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRecordStepResultUpdatesPlanAndGoal(t *testing.T) {
	engine, _ := newTestEngine(t, policy.Options{})
	project, err := engine.CreateProject("rollout", "", []Goal{{ID: "ship", Text: "ship it"}})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := engine.RegisterPlan(project.ID, []Step{{ID: "ship", Action: "ship"}}, ""); err != nil {
		t.Fatalf("RegisterPlan: %v", err)
	}

	updated, err := engine.RecordStepResult(project.ID, "ship", StatusCompleted, "done")
	if err != nil {
		t.Fatalf("RecordStepResult: %v", err)
	}
	if updated.Goals["ship"].Status != StatusCompleted {
		t.Errorf("goal status = %q, want completed", updated.Goals["ship"].Status)
	}
	found := false
	for _, plan := range updated.Plans {
		for _, step := range plan.Steps {
			if step.ID == "ship" && step.Status == StatusCompleted && step.Output == "done" {
				found = true
			}
		}
	}
	if !found {
		t.Error("plan step was not updated")
	}
	if len(updated.Logs) == 0 {
		t.Error("expected a step_completed log entry")
	}
}

func TestReportsRenderThroughDialog(t *testing.T) {
	engine, out := newTestEngine(t, policy.Options{})
	project, err := engine.CreateProject("rollout", "staged rollout", []Goal{
		{ID: "g1", Text: "ship it", Status: StatusCompleted},
		{ID: "g2", Text: "monitor"},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if err := engine.Overview(project.ID); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if err := engine.ProgressReport(project.ID); err != nil {
		t.Fatalf("ProgressReport: %v", err)
	}
	rendered := out.String()
	if !strings.Contains(rendered, "rollout") {
		t.Errorf("report missing project name:\n%s", rendered)
	}
	if !strings.Contains(rendered, "1/2") {
		t.Errorf("report missing progress counts:\n%s", rendered)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first, err := store.Create("first", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create("second", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
	if summaries[0].Name != "first" {
		t.Errorf("most recent = %q, want first", summaries[0].Name)
	}
}

func TestDetectCyclesFindsLoop(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	cycles := DetectCycles(graph)
	if len(cycles) == 0 {
		t.Fatal("expected a cycle")
	}
	if got := cycles[0]; got[0] != got[len(got)-1] {
		t.Errorf("cycle does not close on itself: %v", got)
	}
}
