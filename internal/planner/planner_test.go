package planner

import (
	"io"
	"testing"

	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/tools"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

// limitedSource hides selected tools from an underlying source.
type limitedSource struct {
	inner  ToolSource
	hidden map[string]bool
}

func (s *limitedSource) Has(name string) bool {
	return !s.hidden[name] && s.inner.Has(name)
}

func (s *limitedSource) GetSchema(name string) (tools.Schema, bool) {
	if s.hidden[name] {
		return tools.Schema{}, false
	}
	return s.inner.GetSchema(name)
}

func newTestPlanner(t *testing.T, opts policy.Options) (*Planner, *memory.InMemoryStore) {
	t.Helper()
	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	store := memory.NewInMemoryStore()
	engine := policy.NewEngine(store, quietLogger(), opts)
	return New(catalog, store, engine, quietLogger()), store
}

func TestGoalClassification(t *testing.T) {
	p, _ := newTestPlanner(t, policy.Options{})

	cases := []struct {
		goal     string
		goalType string
	}{
		{"fix a bug in the parser", "code_generation"},
		{"build a payments microservice", "microservice"},
		{"process the quarterly csv export", "file_processing"},
		{"when was the telegraph invented", "info_query"},
	}
	for _, tc := range cases {
		plan, err := p.Plan(tc.goal, nil)
		if err != nil {
			t.Fatalf("Plan(%q): %v", tc.goal, err)
		}
		if plan.GoalType != tc.goalType {
			t.Errorf("Plan(%q) type = %s, want %s", tc.goal, plan.GoalType, tc.goalType)
		}
	}
}

func TestCodeGoalPlanShape(t *testing.T) {
	p, _ := newTestPlanner(t, policy.Options{})

	plan, err := p.Plan("refactor this code for clarity", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Version != 1 || plan.ID == "" {
		t.Errorf("plan identity = (%s, %d), want uuid at version 1", plan.ID, plan.Version)
	}
	if plan.Graph.Len() != 4 {
		t.Fatalf("nodes = %d, want 3 subgoals plus sanity checkpoint", plan.Graph.Len())
	}

	analyze, ok := plan.Graph.Get("task_1_analyze_requirements")
	if !ok || analyze.Tool != "code_analyzer" {
		t.Fatalf("first node = %+v, want code_analyzer", analyze)
	}
	if len(analyze.Produces) != 1 || analyze.Produces[0] != "code_assessment" {
		t.Errorf("produces = %v, want code_assessment", analyze.Produces)
	}

	validate, ok := plan.Graph.Get("task_3_validate_code")
	if !ok {
		t.Fatal("missing task_3_validate_code")
	}
	if len(validate.Requires) != 2 {
		t.Errorf("requires = %v, want both upstream artifacts", validate.Requires)
	}

	sanity, ok := plan.Graph.Get("sanity_validate")
	if !ok || sanity.Tool != "" || sanity.Parallelizable {
		t.Fatalf("sanity node = %+v, want serialized pass-through", sanity)
	}
	if len(sanity.Produces) != 1 || sanity.Produces[0] != "sanity_report" {
		t.Errorf("sanity produces = %v, want sanity_report", sanity.Produces)
	}
}

func TestToolGapFallsBackToPassThrough(t *testing.T) {
	store := memory.NewInMemoryStore()
	engine := policy.NewEngine(store, quietLogger(), policy.Options{})
	// An empty catalog leaves every subgoal without its preferred tool.
	p := New(tools.NewCatalog(), store, engine, quietLogger())

	run := &journal.Run{ID: "run-1"}
	p.AttachRun(run)

	plan, err := p.Plan("fix this code bug", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	first, ok := plan.Graph.Get("task_1_analyze_requirements")
	if !ok || first.Tool != "" {
		t.Fatalf("first node = %+v, want pass-through", first)
	}
	if first.Produces[0] != "artifact_1" {
		t.Errorf("produces = %v, want synthetic artifact", first.Produces)
	}

	gaps := 0
	for _, event := range run.Events {
		if event.Type == journal.EventToolGap {
			gaps++
		}
	}
	if gaps == 0 {
		t.Error("expected at least one tool gap event")
	}
}

func TestRefineKeepsIDAndBumpsVersion(t *testing.T) {
	p, _ := newTestPlanner(t, policy.Options{})

	plan, err := p.Plan("when was the telegraph invented", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	refined, err := p.Refine(plan, []string{"execution_failures"})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if refined.ID != plan.ID {
		t.Errorf("refined ID = %s, want %s", refined.ID, plan.ID)
	}
	if refined.Version != 2 {
		t.Errorf("refined version = %d, want 2", refined.Version)
	}
	if _, ok := refined.Graph.Get("task_3_address_reflection_findings"); !ok {
		t.Error("refined plan missing remediation node")
	}
}

func TestPolicyBlockTriggersDeterministicFallback(t *testing.T) {
	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	source := &limitedSource{
		inner:  catalog,
		hidden: map[string]bool{"web_search": true, "internet_extract": true, "microservice_builder": true},
	}
	store := memory.NewInMemoryStore()
	// Only read is allowed, so code_analyzer's analyze permission blocks
	// the adaptive plan.
	engine := policy.NewEngine(store, quietLogger(), policy.Options{AllowedPermissions: []string{"read"}})
	p := New(source, store, engine, quietLogger())

	plan, err := p.Plan("fix the bug", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.GoalType != "fallback" {
		t.Fatalf("goal type = %s, want fallback", plan.GoalType)
	}
	echo, ok := plan.Graph.Get("echo")
	if !ok || echo.Produces[0] != "echoed_message" {
		t.Fatalf("fallback graph = %+v, want echo node", plan.Graph.Nodes())
	}
}

func TestPlanIsRecorded(t *testing.T) {
	p, store := newTestPlanner(t, policy.Options{})

	plan, err := p.Plan("summarize the json report file", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	facts, err := store.Query("plans", plan.ID)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("plan facts = %d, want 1", len(facts))
	}
	traces, err := store.Search("goal type", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(traces) == 0 || traces[0].Namespace != "planning_traces" {
		t.Errorf("traces = %v, want a recorded planning trace", traces)
	}
}
