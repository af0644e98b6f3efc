// Package controller coordinates real execution of task graphs with
// simulation gating, policy limits, operator approval, and trace reporting.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/sentinel/internal/dialog"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/simulation"
	"github.com/openclaw/sentinel/internal/taskgraph"
)

// Mode selects how long execution keeps going.
type Mode string

const (
	ModeUntilComplete  Mode = "until_complete"
	ModeForTime        Mode = "for_time"
	ModeUntilNode      Mode = "until_node"
	ModeForCycles      Mode = "for_cycles"
	ModeUntilCondition Mode = "until_condition"
	ModeWithCheckins   Mode = "with_checkins"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUntilComplete, ModeForTime, ModeUntilNode, ModeForCycles, ModeUntilCondition, ModeWithCheckins:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unsupported execution mode: %q", s)
}

// Params carries per-mode settings. Only the fields relevant to the chosen
// mode are read.
type Params struct {
	Duration        time.Duration
	TargetNode      string
	MaxCycles       int
	Condition       func(*Trace) bool
	CheckinInterval time.Duration
}

// SimulationSummary is what execution remembers about a node's prior
// simulation.
type SimulationSummary struct {
	Success       bool
	Warnings      []string
	RelativeSpeed float64
}

// NodeResult is the outcome of one node.
type NodeResult struct {
	Node              *taskgraph.Node
	Success           bool
	Output            interface{}
	Error             string
	AttemptedRecovery bool
	Policy            *policy.Result
	Simulation        *SimulationSummary
	Duration          time.Duration
}

// Trace accumulates node results for one execution.
type Trace struct {
	Results   []NodeResult
	Executed  []string
	Failed    []string
	Artifacts map[string]interface{}
	Elapsed   time.Duration
	Cycles    int
}

// Add appends a result.
func (t *Trace) Add(result NodeResult) {
	t.Results = append(t.Results, result)
}

// FailedNodes returns the results that did not succeed.
func (t *Trace) FailedNodes() []NodeResult {
	var failed []NodeResult
	for _, r := range t.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary renders the trace as one line per node.
func (t *Trace) Summary() string {
	var parts []string
	for _, r := range t.Results {
		if r.Success {
			parts = append(parts, fmt.Sprintf("Task %s: %v", r.Node.ID, r.Output))
		} else {
			parts = append(parts, fmt.Sprintf("Task %s failed: %s", r.Node.ID, r.Error))
		}
	}
	return strings.Join(parts, " | ")
}

// stopFn decides whether execution should halt. It is consulted before each
// node (with nil node and result) and again after.
type stopFn func(trace *Trace, elapsed time.Duration, cycles int, node *taskgraph.Node, result *NodeResult) bool

// SchemaSource answers tool schema lookups for policy checks and validation.
type SchemaSource interface {
	policy.SchemaSource
	Has(name string) bool
}

// Controller runs task graphs for real, gated by simulation verdicts,
// policy, and operator approval.
type Controller struct {
	worker    Worker
	policy    *policy.Engine
	schemas   SchemaSource
	gate      *dialog.ApprovalGate
	dialog    *dialog.Manager
	store     memory.Store
	validator *taskgraph.Validator
	log       *logging.Logger
	run       *journal.Run
	publisher journal.Publisher
}

// New creates a controller.
func New(worker Worker, engine *policy.Engine, schemas SchemaSource, gate *dialog.ApprovalGate,
	manager *dialog.Manager, store memory.Store, log *logging.Logger) *Controller {
	return &Controller{
		worker:    worker,
		policy:    engine,
		schemas:   schemas,
		gate:      gate,
		dialog:    manager,
		store:     store,
		validator: taskgraph.NewValidator(schemas),
		log:       log.WithComponent("controller"),
		publisher: journal.NopPublisher{},
	}
}

// AttachRun directs execution events into a journal run and, when a
// publisher is set, onto the event bus.
func (c *Controller) AttachRun(run *journal.Run, publisher journal.Publisher) {
	c.run = run
	if publisher != nil {
		c.publisher = publisher
	}
}

// Execute runs the graph under the given mode.
func (c *Controller) Execute(ctx context.Context, graph *taskgraph.Graph, mode Mode, params Params) (*Trace, error) {
	switch mode {
	case ModeUntilComplete:
		return c.executeGraph(ctx, graph, mode, nil, 0)
	case ModeForTime:
		limit := params.Duration
		return c.executeGraph(ctx, graph, mode, func(_ *Trace, elapsed time.Duration, _ int, _ *taskgraph.Node, _ *NodeResult) bool {
			return elapsed >= limit
		}, 0)
	case ModeUntilNode:
		if params.TargetNode == "" {
			return nil, fmt.Errorf("target node is required for %s", ModeUntilNode)
		}
		target := params.TargetNode
		return c.executeGraph(ctx, graph, mode, func(_ *Trace, _ time.Duration, _ int, node *taskgraph.Node, _ *NodeResult) bool {
			return node != nil && node.ID == target
		}, 0)
	case ModeForCycles:
		limit := params.MaxCycles
		if limit < 0 {
			limit = 0
		}
		return c.executeGraph(ctx, graph, mode, func(_ *Trace, _ time.Duration, cycles int, _ *taskgraph.Node, _ *NodeResult) bool {
			return cycles >= limit
		}, 0)
	case ModeUntilCondition:
		condition := params.Condition
		if condition == nil {
			condition = func(*Trace) bool { return false }
		}
		return c.executeGraph(ctx, graph, mode, func(trace *Trace, _ time.Duration, _ int, _ *taskgraph.Node, _ *NodeResult) bool {
			return condition(trace)
		}, 0)
	case ModeWithCheckins:
		interval := params.CheckinInterval
		if interval < 100*time.Millisecond {
			interval = 100 * time.Millisecond
		}
		return c.executeGraph(ctx, graph, mode, nil, interval)
	}
	return nil, fmt.Errorf("unsupported execution mode: %q", mode)
}

func (c *Controller) executeGraph(ctx context.Context, graph *taskgraph.Graph, mode Mode, shouldStop stopFn, checkinInterval time.Duration) (*Trace, error) {
	if err := c.validator.Validate(graph); err != nil {
		return nil, err
	}
	deps, err := graph.DependencyMap()
	if err != nil {
		return nil, err
	}
	indegree := taskgraph.Indegree(deps)

	var ready []string
	for _, node := range graph.Nodes() {
		if indegree[node.ID] == 0 {
			ready = append(ready, node.ID)
		}
	}

	trace := &Trace{Artifacts: make(map[string]interface{})}
	executed := make(map[string]bool)
	failed := make(map[string]bool)
	start := time.Now()
	lastCheckin := start
	cycles := 0
	consecutiveFailures := 0

	c.log.ExecutionStart(string(mode), graph.Len())

	for len(ready) > 0 {
		if shouldStop != nil && shouldStop(trace, time.Since(start), cycles, nil, nil) {
			break
		}
		nodeID := ready[0]
		ready = ready[1:]
		node, _ := graph.Get(nodeID)

		if upstreamFailed(deps[nodeID], failed) {
			result := NodeResult{Node: node, Error: "Upstream failure"}
			failed[nodeID] = true
			trace.Add(result)
			c.recordResult(result)
			ready = releaseDependents(nodeID, deps, indegree, ready)
			continue
		}

		nodeStart := time.Now()
		result := c.runNode(ctx, node, trace, time.Since(start), cycles, consecutiveFailures)
		result.Duration = time.Since(nodeStart)

		if result.Success {
			executed[nodeID] = true
			consecutiveFailures = 0
			storeOutputs(node, result.Output, trace.Artifacts)
		} else {
			failed[nodeID] = true
			consecutiveFailures++
		}
		trace.Add(result)
		c.recordResult(result)
		cycles++

		if checkinInterval > 0 && time.Since(lastCheckin) >= checkinInterval {
			c.checkin(map[string]interface{}{
				"node":    nodeID,
				"cycles":  cycles,
				"elapsed": time.Since(start).Seconds(),
			})
			lastCheckin = time.Now()
		}
		if shouldStop != nil && shouldStop(trace, time.Since(start), cycles, node, &result) {
			break
		}
		ready = releaseDependents(nodeID, deps, indegree, ready)
	}

	for _, node := range graph.Nodes() {
		if executed[node.ID] || failed[node.ID] {
			continue
		}
		result := NodeResult{Node: node, Error: "Skipped due to unresolved dependencies"}
		trace.Add(result)
		c.recordResult(result)
		c.emit(journal.Event{Type: journal.EventNodeSkipped, Component: "controller", Node: node.ID})
	}

	trace.Elapsed = time.Since(start)
	trace.Cycles = cycles
	trace.Executed = keys(executed)
	trace.Failed = keys(failed)

	if checkinInterval > 0 {
		c.checkin(map[string]interface{}{
			"status":  "completed",
			"cycles":  cycles,
			"elapsed": trace.Elapsed.Seconds(),
		})
	}
	c.persistTrace(trace)
	c.log.ExecutionComplete(string(mode), trace.Elapsed, len(trace.Executed), len(trace.Failed))
	return trace, nil
}

// runNode applies the execution gates in order: simulation verdict, runtime
// limits, tool allow-list, operator approval, then the worker itself.
func (c *Controller) runNode(parent context.Context, node *taskgraph.Node, trace *Trace,
	elapsed time.Duration, cycles, consecutiveFailures int) NodeResult {

	ctx, span := c.startNodeSpan(parent, node)

	c.log.NodeStart(node.ID, node.Tool)
	c.emit(journal.Event{Type: journal.EventNodeStart, Component: "controller", Node: node.ID, Tool: node.Tool})

	simSummary, simErr := c.simulationVerdict(node)
	if simErr != nil {
		c.endNodeSpan(span, false, simErr.Error())
		return NodeResult{Node: node, Error: simErr.Error(), Simulation: simSummary}
	}

	runtimeResult, _ := c.policy.CheckRuntimeLimits(policy.RuntimeState{
		Elapsed:             elapsed,
		Cycles:              cycles,
		ConsecutiveFailures: consecutiveFailures,
	}, false)
	gateResult := runtimeResult.Merge(c.policy.CheckExecution(node, c.schemas))
	if !gateResult.Allowed {
		reason := strings.Join(gateResult.Reasons, "; ")
		if reason == "" {
			reason = "Policy blocked"
		}
		c.endNodeSpan(span, false, reason)
		return NodeResult{Node: node, Error: reason, Policy: &gateResult, Simulation: simSummary}
	}

	c.gate.RequestApproval(fmt.Sprintf("Execute task %s: %s", node.ID, node.Description))
	c.emit(journal.Event{Type: journal.EventApproval, Component: "controller", Node: node.ID, Content: "approval requested"})
	if !c.gate.IsApproved() {
		err := "Approval required for real execution"
		c.endNodeSpan(span, false, err)
		return NodeResult{Node: node, Error: err, Policy: &gateResult, Simulation: simSummary}
	}

	args := resolveArgs(node, trace.Artifacts)
	result := c.runWithRecovery(ctx, node, args)
	result.Policy = &gateResult
	result.Simulation = simSummary

	c.log.NodeComplete(node.ID, result.Duration, result.Success, result.Error)
	success := result.Success
	c.emit(journal.Event{
		Type: journal.EventNodeEnd, Component: "controller", Node: node.ID, Tool: node.Tool,
		Success: &success, Error: result.Error,
		Meta: &journal.EventMeta{AttemptedRecovery: result.AttemptedRecovery, Produced: node.Produces},
	})
	c.endNodeSpan(span, result.Success, result.Error)
	return result
}

// runWithRecovery executes the node and retries once on failure.
func (c *Controller) runWithRecovery(ctx context.Context, node *taskgraph.Node, args map[string]interface{}) NodeResult {
	output, err := c.worker.ExecuteNode(ctx, node, args)
	if err == nil {
		return NodeResult{Node: node, Success: true, Output: output}
	}
	c.log.Warn("node failed, retrying once", map[string]interface{}{"node": node.ID, "error": err.Error()})
	output, retryErr := c.worker.ExecuteNode(ctx, node, args)
	if retryErr == nil {
		return NodeResult{Node: node, Success: true, Output: output, AttemptedRecovery: true}
	}
	return NodeResult{Node: node, Error: retryErr.Error(), AttemptedRecovery: true}
}

// simulationVerdict looks up the node's most recent simulation. A recorded
// unsuccessful simulation blocks execution; no record at all passes.
func (c *Controller) simulationVerdict(node *taskgraph.Node) (*SimulationSummary, error) {
	facts, err := c.store.Query("simulations", node.ID)
	if err != nil || len(facts) == 0 {
		return nil, nil
	}
	summary := summarizeSimulation(facts[0].Value)
	if summary == nil {
		return nil, nil
	}
	if !summary.Success {
		return summary, fmt.Errorf("Simulation predicted failure for %s", node.ID)
	}
	return summary, nil
}

func (c *Controller) checkin(status map[string]interface{}) {
	c.dialog.ExecutionStatus(status)
	event := journal.Event{Type: journal.EventCheckin, Component: "controller", Args: status}
	c.emit(event)
}

func (c *Controller) recordResult(result NodeResult) {
	payload := map[string]interface{}{
		"task":    result.Node.ID,
		"tool":    result.Node.Tool,
		"success": result.Success,
		"error":   result.Error,
		"output":  result.Output,
	}
	metadata := map[string]interface{}{
		"task":    result.Node.ID,
		"tool":    result.Node.Tool,
		"success": result.Success,
		"type":    "node_result",
	}
	if _, err := c.store.StoreFact("execution", result.Node.ID, payload, metadata); err != nil {
		c.log.Warn("failed to write execution record", map[string]interface{}{"node": result.Node.ID, "error": err.Error()})
	}
	if encoded, err := json.Marshal(payload); err == nil {
		if err := c.store.StoreText(string(encoded), "execution", metadata); err != nil {
			c.log.Warn("failed to index execution record", map[string]interface{}{"node": result.Node.ID, "error": err.Error()})
		}
	}
	c.dialog.ExecutionStatus(map[string]interface{}{
		"task":    result.Node.ID,
		"success": result.Success,
		"error":   result.Error,
	})
}

func (c *Controller) persistTrace(trace *Trace) {
	summary := map[string]interface{}{
		"type":      "summary",
		"successes": len(trace.Results) - len(trace.FailedNodes()),
		"failures":  len(trace.FailedNodes()),
		"executed":  trace.Executed,
		"failed":    trace.Failed,
	}
	if err := c.store.StoreText(trace.Summary(), "execution", summary); err != nil {
		c.log.Warn("failed to persist trace summary", map[string]interface{}{"error": err.Error()})
	}
	if _, err := c.store.StoreFact("execution", "", summary, summary); err != nil {
		c.log.Warn("failed to persist trace summary", map[string]interface{}{"error": err.Error()})
	}
	if len(trace.Artifacts) > 0 {
		payload := map[string]interface{}{
			"type":      "artifacts",
			"artifacts": trace.Artifacts,
			"executed":  trace.Executed,
			"failed":    trace.Failed,
		}
		if _, err := c.store.StoreFact("execution", "", payload, map[string]interface{}{"type": "artifacts"}); err != nil {
			c.log.Warn("failed to persist artifacts", map[string]interface{}{"error": err.Error()})
		}
	}
	c.emit(journal.Event{
		Type:      journal.EventTraceSummary,
		Component: "controller",
		Content:   trace.Summary(),
	})
}

func (c *Controller) emit(event journal.Event) {
	if c.run == nil {
		return
	}
	c.run.AddEvent(event)
	c.publisher.Publish(c.run.ID, event)
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

// resolveArgs overlays produced artifacts onto the node's declared
// arguments. Declared arguments win.
func resolveArgs(node *taskgraph.Node, artifacts map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(node.Args))
	for k, v := range node.Args {
		args[k] = v
	}
	for _, requirement := range node.Requires {
		if _, declared := args[requirement]; declared {
			continue
		}
		if value, ok := artifacts[requirement]; ok {
			args[requirement] = value
		}
	}
	return args
}

// storeOutputs destructures map outputs by produced artifact name, falling
// back to the whole output.
func storeOutputs(node *taskgraph.Node, output interface{}, artifacts map[string]interface{}) {
	if len(node.Produces) == 0 {
		return
	}
	outputs, isMap := output.(map[string]interface{})
	for _, produced := range node.Produces {
		if isMap {
			if value, ok := outputs[produced]; ok {
				artifacts[produced] = value
				continue
			}
		}
		artifacts[produced] = output
	}
}

// summarizeSimulation normalizes a stored simulation value, which may be a
// typed result or a JSON round-tripped map.
func summarizeSimulation(value interface{}) *SimulationSummary {
	switch v := value.(type) {
	case simulation.Result:
		return &SimulationSummary{Success: v.Success, Warnings: v.Warnings, RelativeSpeed: v.Benchmark.RelativeSpeed}
	case *simulation.Result:
		return &SimulationSummary{Success: v.Success, Warnings: v.Warnings, RelativeSpeed: v.Benchmark.RelativeSpeed}
	case map[string]interface{}:
		summary := &SimulationSummary{RelativeSpeed: 10}
		summary.Success, _ = v["success"].(bool)
		if warnings, ok := v["warnings"].([]interface{}); ok {
			for _, w := range warnings {
				if s, ok := w.(string); ok {
					summary.Warnings = append(summary.Warnings, s)
				}
			}
		}
		if bench, ok := v["benchmark"].(map[string]interface{}); ok {
			if speed, ok := bench["relative_speed"].(float64); ok {
				summary.RelativeSpeed = speed
			}
		}
		return summary
	}
	return nil
}

func upstreamFailed(deps []string, failed map[string]bool) bool {
	for _, dep := range deps {
		if failed[dep] {
			return true
		}
	}
	return false
}

func releaseDependents(nodeID string, deps map[string][]string, indegree map[string]int, ready []string) []string {
	for dependent, dependencies := range deps {
		for _, dep := range dependencies {
			if dep != nodeID {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 && !containsID(ready, dependent) {
				ready = append(ready, dependent)
			}
		}
	}
	return ready
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
