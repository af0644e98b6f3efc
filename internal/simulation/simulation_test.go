package simulation

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/tools"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

// collectorTool is a minimal registered tool used to observe argument
// resolution through profile preconditions.
type collectorTool struct{}

func (t *collectorTool) Name() string { return "collector" }

func (t *collectorTool) Schema() tools.Schema {
	return tools.Schema{
		Name:          "collector",
		Version:       "1.0.0",
		Description:   "Collect upstream artifacts for inspection",
		InputSchema:   map[string]interface{}{},
		OutputSchema:  map[string]interface{}{"collection": map[string]interface{}{"type": "object"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *collectorTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"collection": args}, nil
}

func newTestSandbox(t *testing.T) (*Sandbox, *memory.InMemoryStore) {
	t.Helper()
	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if err := catalog.Register(&collectorTool{}); err != nil {
		t.Fatalf("Register collector: %v", err)
	}
	store := memory.NewInMemoryStore()
	return NewSandbox(catalog, store, DefaultProfiles(), quietLogger()), store
}

func TestSimulateCall_UnregisteredToolFails(t *testing.T) {
	sandbox, _ := newTestSandbox(t)

	result := sandbox.SimulateCall("nonexistent_tool", map[string]interface{}{})
	if result.Success {
		t.Fatal("expected failure for unregistered tool")
	}
	if result.FailureLikelihood != 1.0 {
		t.Errorf("failure likelihood = %v, want 1.0", result.FailureLikelihood)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Tool not registered") {
		t.Errorf("warnings = %v, want registration warning", result.Warnings)
	}
}

func TestSimulateCall_CleanCallSucceeds(t *testing.T) {
	sandbox, _ := newTestSandbox(t)

	result := sandbox.SimulateCall("code_analyzer", map[string]interface{}{"code": "fmt.Println(42)"})
	if !result.Success {
		t.Fatalf("expected success, got warnings %v", result.Warnings)
	}
	if result.FailureLikelihood >= 0.7 {
		t.Errorf("failure likelihood = %v, want < 0.7", result.FailureLikelihood)
	}
	if _, ok := result.Outputs["code_assessment"]; !ok {
		t.Errorf("outputs = %v, want code_assessment key", result.Outputs)
	}
}

func TestSimulateCall_MissingRequiredParamWarns(t *testing.T) {
	sandbox, _ := newTestSandbox(t)

	result := sandbox.SimulateCall("code_analyzer", map[string]interface{}{})
	if result.Success {
		t.Fatal("expected failure when required parameter missing")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Missing required parameter") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want missing required parameter", result.Warnings)
	}
}

func TestPredictor_PreconditionPenalty(t *testing.T) {
	predictor := NewEffectPredictor(map[string]Profile{
		"fetch": {Preconditions: []string{"url"}, FailureLikelihood: 0.1},
	})

	prediction := predictor.Predict("fetch", map[string]interface{}{})
	if len(prediction.Warnings) != 1 || !strings.Contains(prediction.Warnings[0], "Missing precondition") {
		t.Fatalf("warnings = %v, want missing precondition", prediction.Warnings)
	}
	if prediction.FailureLikelihood < 0.29 || prediction.FailureLikelihood > 0.31 {
		t.Errorf("failure likelihood = %v, want 0.3", prediction.FailureLikelihood)
	}
}

func TestPredictor_HighRiskWarning(t *testing.T) {
	predictor := NewEffectPredictor(map[string]Profile{
		"risky": {FailureLikelihood: 0.6},
	})

	prediction := predictor.Predict("risky", map[string]interface{}{})
	if len(prediction.Warnings) != 1 || prediction.Warnings[0] != "High predicted failure risk" {
		t.Errorf("warnings = %v, want high risk warning", prediction.Warnings)
	}
}

func TestPredictor_EchoFallbackForUnknownProfile(t *testing.T) {
	predictor := NewEffectPredictor(nil)

	prediction := predictor.Predict("mystery", map[string]interface{}{"b": 1, "a": 2})
	echo, ok := prediction.Outputs["echo"].(string)
	if !ok {
		t.Fatalf("outputs = %v, want echo fallback", prediction.Outputs)
	}
	if !strings.Contains(echo, "mystery processed [a b]") {
		t.Errorf("echo = %q, want sorted arg keys", echo)
	}
	if prediction.Confidence != 0.5 || prediction.FailureLikelihood != 0.1 {
		t.Errorf("defaults = (%v, %v), want (0.5, 0.1)", prediction.Confidence, prediction.FailureLikelihood)
	}
}

func TestBenchmarkEstimate(t *testing.T) {
	var facade BenchmarkFacade

	small := facade.Estimate("echo", map[string]interface{}{"message": "hi"})
	if small.Complexity != "O(n)" || small.RelativeSpeed != 10 {
		t.Errorf("small input = (%s, %v), want (O(n), 10)", small.Complexity, small.RelativeSpeed)
	}

	large := facade.Estimate("echo", map[string]interface{}{"message": strings.Repeat("x", 300)})
	if large.Complexity != "O(n log n)" {
		t.Errorf("complexity = %s, want O(n log n)", large.Complexity)
	}
	if large.RelativeSpeed != 1 {
		t.Errorf("relative speed = %v, want clamped to 1", large.RelativeSpeed)
	}
}

func TestSimulateCall_RecordsVirtualWrites(t *testing.T) {
	sandbox, _ := newTestSandbox(t)

	result := sandbox.SimulateCall("write_file", map[string]interface{}{
		"path":    "reports/summary.txt",
		"content": "done",
	})
	if !sandbox.VFS().Exists("reports/summary.txt") {
		t.Fatalf("virtual paths = %v, want reports/summary.txt", sandbox.VFS().List())
	}
	content, err := sandbox.VFS().Read("reports/summary.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.HasPrefix(content, "Predicted write by write_file") {
		t.Errorf("content = %q, want predicted write marker", content)
	}
	if _, ok := result.VFSChanges["reports/summary.txt"]; !ok {
		t.Errorf("vfs changes = %v, want reports/summary.txt", result.VFSChanges)
	}
}

func TestSimulateGraph_FeedsArtifactsDownstream(t *testing.T) {
	sandbox, store := newTestSandbox(t)
	sandbox.UpdateProfiles(map[string]Profile{
		"collector": {Preconditions: []string{"code_assessment"}, FailureLikelihood: 0.1},
	})

	graph := taskgraph.New()
	mustAddNode(t, graph, &taskgraph.Node{
		ID:             "analyze",
		Tool:           "code_analyzer",
		Args:           map[string]interface{}{"code": "x := 1"},
		Produces:       []string{"code_assessment"},
		Parallelizable: true,
	})
	mustAddNode(t, graph, &taskgraph.Node{
		ID:             "collect",
		Tool:           "collector",
		Requires:       []string{"code_assessment"},
		Produces:       []string{"collection"},
		Parallelizable: true,
	})

	results, err := sandbox.SimulateGraph(graph)
	if err != nil {
		t.Fatalf("SimulateGraph: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	// The collector's only precondition is the upstream artifact. A
	// warning here means resolution did not feed it through.
	if collect := results["collect"]; !collect.Success {
		t.Errorf("collect warnings = %v, want none", collect.Warnings)
	}

	facts, err := store.Query("simulations", "analyze")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("persisted facts = %d, want 1", len(facts))
	}
}

func TestSimulateGraph_NoopPassesThrough(t *testing.T) {
	sandbox, _ := newTestSandbox(t)

	graph := taskgraph.New()
	mustAddNode(t, graph, &taskgraph.Node{
		ID:       "sanity",
		Produces: []string{"sanity_report"},
	})

	results, err := sandbox.SimulateGraph(graph)
	if err != nil {
		t.Fatalf("SimulateGraph: %v", err)
	}
	sanity := results["sanity"]
	if !sanity.Success {
		t.Fatal("expected pass-through node to succeed")
	}
	if sanity.Outputs["sanity_report"] != "Pass-through node" {
		t.Errorf("outputs = %v, want pass-through marker", sanity.Outputs)
	}
	if sanity.Benchmark.Complexity != "O(1)" || sanity.Benchmark.RelativeSpeed != 10 {
		t.Errorf("benchmark = %+v, want O(1) at speed 10", sanity.Benchmark)
	}
}

func TestLoadProfilesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := `
summarizer:
  outputs:
    summary: condensed text
  preconditions: [text]
  latency_pattern: low
  failure_likelihood: 0.05
  confidence: 0.9
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	profile, ok := profiles["summarizer"]
	if !ok {
		t.Fatalf("profiles = %v, want summarizer", profiles)
	}
	if profile.LatencyPattern != "low" || profile.Confidence != 0.9 {
		t.Errorf("profile = %+v, want low latency at 0.9 confidence", profile)
	}
	if profile.Outputs["summary"] != "condensed text" {
		t.Errorf("outputs = %v, want summary", profile.Outputs)
	}
}

func TestWatchProfilesLoadsInitialFile(t *testing.T) {
	sandbox, _ := newTestSandbox(t)
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := "custom_tool:\n  failure_likelihood: 0.4\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	watcher, err := WatchProfiles(path, sandbox, quietLogger())
	if err != nil {
		t.Fatalf("WatchProfiles: %v", err)
	}
	defer watcher.Close()

	names := sandbox.predictor.Profiles()
	found := false
	for _, name := range names {
		if name == "custom_tool" {
			found = true
		}
	}
	if !found {
		t.Errorf("profiles = %v, want custom_tool", names)
	}
}

func mustAddNode(t *testing.T, g *taskgraph.Graph, n *taskgraph.Node) {
	t.Helper()
	if err := g.Add(n); err != nil {
		t.Fatalf("Add(%s): %v", n.ID, err)
	}
}
