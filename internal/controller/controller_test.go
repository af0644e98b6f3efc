package controller

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/sentinel/internal/dialog"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/simulation"
	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/tools"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

// flakyTool fails a configured number of times before succeeding. It
// counts invocations so tests can assert a tool body never ran.
type flakyTool struct {
	failuresLeft int
	calls        int
}

func (t *flakyTool) Name() string { return "flaky" }

func (t *flakyTool) Schema() tools.Schema {
	return tools.Schema{
		Name:          "flaky",
		Version:       "1.0.0",
		Description:   "Fail a configured number of times, then succeed",
		InputSchema:   map[string]interface{}{},
		OutputSchema:  map[string]interface{}{"value": map[string]interface{}{"type": "string"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *flakyTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	t.calls++
	if t.failuresLeft > 0 {
		t.failuresLeft--
		return nil, fmt.Errorf("transient failure")
	}
	return map[string]interface{}{"value": "ok"}, nil
}

// slowTool sleeps before succeeding so time-bounded modes can trip.
type slowTool struct {
	delay time.Duration
}

func (t *slowTool) Name() string { return "slow" }

func (t *slowTool) Schema() tools.Schema {
	return tools.Schema{
		Name:          "slow",
		Version:       "1.0.0",
		Description:   "Sleep for a configured delay, then succeed",
		InputSchema:   map[string]interface{}{},
		OutputSchema:  map[string]interface{}{"value": map[string]interface{}{"type": "string"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *slowTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	time.Sleep(t.delay)
	return map[string]interface{}{"value": "done"}, nil
}

type harness struct {
	controller *Controller
	store      *memory.InMemoryStore
	gate       *dialog.ApprovalGate
}

func newHarness(t *testing.T, extra tools.Tool, gate *dialog.ApprovalGate) *harness {
	t.Helper()
	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if extra != nil {
		if err := catalog.Register(extra); err != nil {
			t.Fatalf("Register %s: %v", extra.Name(), err)
		}
	}
	store := memory.NewInMemoryStore()
	engine := policy.NewEngine(store, quietLogger(), policy.Options{})
	manager := dialog.NewManager(io.Discard, store, nil, quietLogger())
	if gate == nil {
		gate = dialog.AutoApproved()
	}
	worker := NewCatalogWorker(catalog)
	return &harness{
		controller: New(worker, engine, catalog, gate, manager, store, quietLogger()),
		store:      store,
		gate:       gate,
	}
}

func echoNode(id, message string) *taskgraph.Node {
	return &taskgraph.Node{
		ID:             id,
		Description:    "echo " + message,
		Tool:           "echo",
		Args:           map[string]interface{}{"message": message},
		Produces:       []string{"echoed_message"},
		Parallelizable: true,
	}
}

func mustAdd(t *testing.T, g *taskgraph.Graph, n *taskgraph.Node) {
	t.Helper()
	if err := g.Add(n); err != nil {
		t.Fatalf("Add(%s): %v", n.ID, err)
	}
}

func TestExecuteUntilComplete(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Executed) != 1 || len(trace.Failed) != 0 {
		t.Fatalf("executed=%v failed=%v, want one success", trace.Executed, trace.Failed)
	}
	if trace.Artifacts["echoed_message"] != "hello" {
		t.Errorf("artifacts = %v, want echoed_message=hello", trace.Artifacts)
	}
}

func TestArtifactsFeedDownstreamNodes(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))
	mustAdd(t, graph, &taskgraph.Node{
		ID:       "n2",
		Requires: []string{"echoed_message"},
		Produces: []string{"final"},
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The pass-through node returns its resolved args, which must include
	// the upstream artifact.
	final, ok := trace.Artifacts["final"].(map[string]interface{})
	if !ok || final["echoed_message"] != "hello" {
		t.Errorf("final artifact = %v, want upstream echo", trace.Artifacts["final"])
	}
}

func TestSimulationGateBlocksPredictedFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.store.StoreFact("simulations", "n1", simulation.Result{
		NodeID:   "n1",
		Success:  false,
		Warnings: []string{"High predicted failure risk"},
	}, nil)

	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Failed) != 1 {
		t.Fatalf("failed = %v, want n1 blocked", trace.Failed)
	}
	if !strings.Contains(trace.Results[0].Error, "Simulation predicted failure") {
		t.Errorf("error = %q, want simulation gate message", trace.Results[0].Error)
	}
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	h := newHarness(t, &flakyTool{failuresLeft: 1}, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{
		ID:             "n1",
		Tool:           "flaky",
		Produces:       []string{"value"},
		Parallelizable: true,
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := trace.Results[0]
	if !result.Success || !result.AttemptedRecovery {
		t.Errorf("result = %+v, want recovered success", result)
	}
}

func TestUpstreamFailureCascades(t *testing.T) {
	h := newHarness(t, &flakyTool{failuresLeft: 10}, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{
		ID:             "n1",
		Tool:           "flaky",
		Produces:       []string{"value"},
		Parallelizable: true,
	})
	mustAdd(t, graph, &taskgraph.Node{
		ID:       "n2",
		Requires: []string{"value"},
		Produces: []string{"final"},
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Failed) != 2 {
		t.Fatalf("failed = %v, want both nodes", trace.Failed)
	}
	if trace.Results[1].Error != "Upstream failure" {
		t.Errorf("n2 error = %q, want upstream failure", trace.Results[1].Error)
	}
}

func TestApprovalRequired(t *testing.T) {
	gate := dialog.NewApprovalGate(nil, nil)
	h := newHarness(t, nil, gate)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trace.Results[0].Error != "Approval required for real execution" {
		t.Errorf("error = %q, want approval requirement", trace.Results[0].Error)
	}
}

func TestDangerousArgumentsBlocked(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{
		ID:             "n1",
		Tool:           "echo",
		Args:           map[string]interface{}{"message": "rm -rf /tmp/scratch"},
		Produces:       []string{"echoed_message"},
		Parallelizable: true,
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Failed) != 1 {
		t.Fatalf("failed = %v, want policy block", trace.Failed)
	}
	if trace.Results[0].Policy == nil || trace.Results[0].Policy.Allowed {
		t.Errorf("policy = %+v, want block", trace.Results[0].Policy)
	}
}

func TestExecuteUntilNodeStopsAtTarget(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{ID: "n1", Produces: []string{"a"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n2", Requires: []string{"a"}, Produces: []string{"b"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n3", Requires: []string{"b"}, Produces: []string{"c"}})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilNode, Params{TargetNode: "n2"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Executed) != 2 {
		t.Fatalf("executed = %v, want n1 and n2", trace.Executed)
	}
	last := trace.Results[len(trace.Results)-1]
	if last.Node.ID != "n3" || last.Error != "Skipped due to unresolved dependencies" {
		t.Errorf("last result = %+v, want n3 skipped", last)
	}
}

func TestExecuteUntilNodeRequiresTarget(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	if _, err := h.controller.Execute(context.Background(), graph, ModeUntilNode, Params{}); err == nil {
		t.Fatal("expected error for missing target node")
	}
}

func TestExecuteForCycles(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{ID: "n1", Produces: []string{"a"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n2", Requires: []string{"a"}, Produces: []string{"b"}})

	trace, err := h.controller.Execute(context.Background(), graph, ModeForCycles, Params{MaxCycles: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trace.Cycles != 1 || len(trace.Executed) != 1 {
		t.Errorf("cycles=%d executed=%v, want exactly one", trace.Cycles, trace.Executed)
	}
}

func TestExecuteForTimeStopsOnDeadline(t *testing.T) {
	h := newHarness(t, &slowTool{delay: 50 * time.Millisecond}, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{ID: "n1", Tool: "slow", Produces: []string{"a"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n2", Tool: "slow", Requires: []string{"a"}, Produces: []string{"b"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n3", Requires: []string{"b"}, Produces: []string{"c"}})

	trace, err := h.controller.Execute(context.Background(), graph, ModeForTime, Params{Duration: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Executed) != 1 || trace.Executed[0] != "n1" {
		t.Fatalf("executed = %v, want only n1 before the deadline", trace.Executed)
	}
	if len(trace.Results) != 3 {
		t.Fatalf("results = %d, want unreached nodes recorded", len(trace.Results))
	}
	for _, result := range trace.Results[1:] {
		if result.Error != "Skipped due to unresolved dependencies" {
			t.Errorf("%s error = %q, want skip marker", result.Node.ID, result.Error)
		}
	}
}

func TestExecuteRejectsDanglingRequirement(t *testing.T) {
	flaky := &flakyTool{}
	h := newHarness(t, flaky, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{
		ID:       "n1",
		Tool:     "flaky",
		Requires: []string{"ghost"},
		Produces: []string{"value"},
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err == nil || !taskgraph.IsStructural(err) {
		t.Fatalf("err = %v, want structural rejection", err)
	}
	if trace != nil {
		t.Errorf("trace = %+v, want none", trace)
	}
	if flaky.calls != 0 {
		t.Errorf("tool invoked %d time(s), want rejection before execution", flaky.calls)
	}
}

func TestExecuteRejectsMissingRequiredArgs(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{
		ID:       "n1",
		Tool:     "web_search",
		Args:     map[string]interface{}{},
		Produces: []string{"search_results"},
	})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{})
	if err == nil || !taskgraph.IsStructural(err) {
		t.Fatalf("err = %v, want structural rejection", err)
	}
	if err != nil && !strings.Contains(err.Error(), "required argument") {
		t.Errorf("err = %q, want missing required argument", err)
	}
	if trace != nil {
		t.Errorf("trace = %+v, want none", trace)
	}
}

func TestExecuteUntilCondition(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, &taskgraph.Node{ID: "n1", Produces: []string{"a"}})
	mustAdd(t, graph, &taskgraph.Node{ID: "n2", Requires: []string{"a"}, Produces: []string{"b"}})

	trace, err := h.controller.Execute(context.Background(), graph, ModeUntilCondition, Params{
		Condition: func(trace *Trace) bool { return len(trace.Results) >= 1 },
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(trace.Executed) != 1 {
		t.Errorf("executed = %v, want stop after first node", trace.Executed)
	}
}

func TestCheckinsAreRecorded(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	if _, err := h.controller.Execute(context.Background(), graph, ModeWithCheckins, Params{CheckinInterval: time.Millisecond}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	facts, err := h.store.Query("execution_notifications", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// One per-result notification plus the final check-in.
	if len(facts) < 2 {
		t.Errorf("notifications = %d, want at least 2", len(facts))
	}
}

func TestExecutionResultsPersisted(t *testing.T) {
	h := newHarness(t, nil, nil)
	graph := taskgraph.New()
	mustAdd(t, graph, echoNode("n1", "hello"))

	if _, err := h.controller.Execute(context.Background(), graph, ModeUntilComplete, Params{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	facts, err := h.store.Query("execution", "n1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("execution facts = %d, want 1", len(facts))
	}
}
