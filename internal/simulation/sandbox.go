package simulation

import (
	"fmt"
	"strings"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/tools"
)

// Result captures the predicted outcome of one simulated tool call.
type Result struct {
	NodeID            string                 `json:"node_id,omitempty"`
	Tool              string                 `json:"tool"`
	Success           bool                   `json:"success"`
	Outputs           map[string]interface{} `json:"outputs"`
	VFSChanges        map[string]string      `json:"vfs_changes,omitempty"`
	SideEffects       []string               `json:"side_effects,omitempty"`
	Benchmark         Benchmark              `json:"benchmark"`
	FailureLikelihood float64                `json:"failure_likelihood"`
	RuntimeSeconds    float64                `json:"runtime_seconds"`
	Warnings          []string               `json:"warnings,omitempty"`
}

// Failure marks a node whose simulation predicted it would not succeed.
// Callers treat it as recoverable: the plan can be refined and retried.
type Failure struct {
	Node     string
	Warnings []string
}

func (f *Failure) Error() string {
	if len(f.Warnings) == 0 {
		return fmt.Sprintf("simulated failure for node %s", f.Node)
	}
	return fmt.Sprintf("simulated failure for node %s: %s", f.Node, strings.Join(f.Warnings, "; "))
}

// ToolSource answers whether a tool exists and what its schema declares.
type ToolSource interface {
	Has(name string) bool
	GetSchema(name string) (tools.Schema, bool)
}

// Sandbox runs tool calls and whole task graphs against predicted effects
// instead of the real world.
type Sandbox struct {
	predictor *EffectPredictor
	bench     BenchmarkFacade
	vfs       *VirtualFileSystem
	catalog   ToolSource
	store     memory.Store
	log       *logging.Logger
}

// NewSandbox wires a sandbox around a tool catalog and a memory store.
// Results of graph simulations are persisted under the "simulations"
// namespace so that execution can gate on them later.
func NewSandbox(catalog ToolSource, store memory.Store, profiles map[string]Profile, log *logging.Logger) *Sandbox {
	return &Sandbox{
		predictor: NewEffectPredictor(profiles),
		vfs:       NewVirtualFileSystem(),
		catalog:   catalog,
		store:     store,
		log:       log.WithComponent("simulation"),
	}
}

// VFS exposes the sandbox's virtual filesystem overlay.
func (s *Sandbox) VFS() *VirtualFileSystem { return s.vfs }

// UpdateProfiles merges additional semantic profiles into the predictor.
func (s *Sandbox) UpdateProfiles(profiles map[string]Profile) {
	s.predictor.UpdateProfiles(profiles)
}

// SimulateCall predicts the outcome of a single tool call. A call succeeds
// only when its failure likelihood stays below 0.7 and no warnings were
// raised.
func (s *Sandbox) SimulateCall(tool string, args map[string]interface{}) Result {
	bench := s.bench.Estimate(tool, args)

	if !s.catalog.Has(tool) {
		return Result{
			Tool:              tool,
			Success:           false,
			Outputs:           map[string]interface{}{},
			Benchmark:         bench,
			FailureLikelihood: 1.0,
			Warnings:          []string{fmt.Sprintf("Tool not registered: %s", tool)},
		}
	}

	warnings := s.missingRequired(tool, args)
	prediction := s.predictor.Predict(tool, args)
	warnings = append(warnings, prediction.Warnings...)

	changes := make(map[string]string)
	for _, path := range prediction.VFSWrites {
		content := fmt.Sprintf("Predicted write by %s using args %v", tool, sortedKeys(args))
		s.vfs.Write(path, content, map[string]interface{}{"tool": tool})
		changes[path] = content
	}
	for _, effect := range prediction.SideEffects {
		pseudo := fmt.Sprintf("side_effect://%s/%s", tool, effect)
		s.vfs.Write(pseudo, effect, map[string]interface{}{"tool": tool, "kind": "side_effect"})
		changes[pseudo] = effect
	}

	return Result{
		Tool:              tool,
		Success:           prediction.FailureLikelihood < 0.7 && len(warnings) == 0,
		Outputs:           prediction.Outputs,
		VFSChanges:        changes,
		SideEffects:       prediction.SideEffects,
		Benchmark:         bench,
		FailureLikelihood: prediction.FailureLikelihood,
		RuntimeSeconds:    prediction.RuntimeSeconds,
		Warnings:          warnings,
	}
}

// SimulateGraph walks the graph in dependency order, feeding each node's
// predicted outputs into downstream argument resolution. Every node result
// is persisted to the "simulations" namespace keyed by node ID.
func (s *Sandbox) SimulateGraph(graph *taskgraph.Graph) (map[string]Result, error) {
	batches, err := graph.Batches()
	if err != nil {
		return nil, err
	}

	results := make(map[string]Result)
	predicted := make(map[string]interface{})

	for _, batch := range batches {
		for _, node := range batch {
			var result Result
			if node.Tool == "" {
				result = s.noop(node)
			} else {
				result = s.SimulateCall(node.Tool, s.resolveArgs(node, predicted))
			}
			result.NodeID = node.ID

			s.storeOutputs(node, result, predicted)
			results[node.ID] = result
			s.log.SimulationResult(node.ID, result.Success, result.FailureLikelihood, len(result.Warnings))
			s.persist(node.ID, result)
		}
	}
	return results, nil
}

// resolveArgs overlays predicted upstream artifacts onto the node's declared
// arguments.
func (s *Sandbox) resolveArgs(node *taskgraph.Node, predicted map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(node.Args))
	for k, v := range node.Args {
		args[k] = v
	}
	for _, artifact := range node.Requires {
		if value, ok := predicted[artifact]; ok {
			args[artifact] = value
		}
	}
	return args
}

// storeOutputs records what the node is predicted to hand downstream: the
// matching output key when the prediction names it, otherwise the whole
// output map.
func (s *Sandbox) storeOutputs(node *taskgraph.Node, result Result, predicted map[string]interface{}) {
	for _, artifact := range node.Produces {
		if value, ok := result.Outputs[artifact]; ok {
			predicted[artifact] = value
			continue
		}
		if len(result.Outputs) > 0 {
			predicted[artifact] = result.Outputs
		} else {
			predicted[artifact] = result.Benchmark
		}
	}
}

// noop models a coordination node with no tool attached. It passes its own
// produced argument through when present.
func (s *Sandbox) noop(node *taskgraph.Node) Result {
	outputs := make(map[string]interface{})
	for _, artifact := range node.Produces {
		if value, ok := node.Args[artifact]; ok {
			outputs[artifact] = value
		} else {
			outputs[artifact] = "Pass-through node"
		}
	}
	return Result{
		Tool:    node.Tool,
		Success: true,
		Outputs: outputs,
		Benchmark: Benchmark{
			Complexity:    "O(1)",
			RelativeSpeed: 10,
			Notes:         "pass-through node",
		},
		FailureLikelihood: 0,
	}
}

func (s *Sandbox) missingRequired(tool string, args map[string]interface{}) []string {
	schema, ok := s.catalog.GetSchema(tool)
	if !ok {
		return nil
	}
	var warnings []string
	for _, param := range sortedKeys(schema.InputSchema) {
		spec, ok := schema.InputSchema[param].(map[string]interface{})
		if !ok {
			continue
		}
		if required, _ := spec["required"].(bool); !required {
			continue
		}
		if _, present := args[param]; !present {
			warnings = append(warnings, fmt.Sprintf("Missing required parameter %q", param))
		}
	}
	return warnings
}

func (s *Sandbox) persist(nodeID string, result Result) {
	if s.store == nil {
		return
	}
	_, err := s.store.StoreFact("simulations", nodeID, result, map[string]interface{}{
		"tool":    result.Tool,
		"success": result.Success,
	})
	if err != nil {
		s.log.Warn("failed to persist simulation result", map[string]interface{}{"node": nodeID, "error": err.Error()})
	}
}
