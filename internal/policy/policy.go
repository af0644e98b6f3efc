// Package policy governs planning and execution safety: permission
// allow-lists, parallelism preferences, runtime ceilings, and project
// governance. Decisions are returned as values; only enforced ceilings
// surface as Violation errors.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/tools"
)

// Rewrite records a plan mutation the engine applied.
type Rewrite struct {
	Kind   string `json:"kind"`
	Node   string `json:"node,omitempty"`
	Detail string `json:"detail"`
}

// Result is a policy verdict. Zero issues means Allowed with empty
// reasons. Results merge associatively: allowed ANDs, reasons and
// rewrites concatenate.
type Result struct {
	Allowed  bool      `json:"allowed"`
	Reasons  []string  `json:"reasons,omitempty"`
	Rewrites []Rewrite `json:"rewrites,omitempty"`
}

// Allow returns a passing result.
func Allow() Result {
	return Result{Allowed: true}
}

// Block returns a failing result with the given reason.
func Block(reason string) Result {
	return Result{Allowed: false, Reasons: []string{reason}}
}

// Merge combines two results.
func (r Result) Merge(other Result) Result {
	return Result{
		Allowed:  r.Allowed && other.Allowed,
		Reasons:  append(append([]string{}, r.Reasons...), other.Reasons...),
		Rewrites: append(append([]Rewrite{}, r.Rewrites...), other.Rewrites...),
	}
}

// Violation is raised when an enforced policy ceiling is breached. It is
// distinct from structural errors: the plan may be valid, the run is not
// permitted to continue.
type Violation struct {
	Reason  string
	Details map[string]interface{}
}

func (e *Violation) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Reason)
}

// SchemaSource resolves tool schemas. The tool catalog satisfies this.
type SchemaSource interface {
	GetSchema(name string) (tools.Schema, bool)
}

// RuntimeState is the execution snapshot checked against runtime limits.
type RuntimeState struct {
	Elapsed             time.Duration
	Cycles              int
	ConsecutiveFailures int
}

// ProjectState is the governance snapshot checked against project limits.
type ProjectState struct {
	Project          string
	Goals            int
	DependencyDepth  int
	RefinementRounds int
	Age              time.Duration
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	AllowedPermissions     []string
	DeterministicFirst     *bool
	ParallelLimit          int
	MaxWallClock           time.Duration
	MaxCycles              int
	MaxConsecutiveFailures int

	MaxGoals            int
	MaxDependencyDepth  int
	MaxRefinementRounds int
	MaxProjectAge       time.Duration
}

// Engine applies safety, preference, and governance policies.
type Engine struct {
	memory memory.Store
	log    *logging.Logger

	allowedPermissions map[string]bool
	deterministicFirst bool
	parallelLimit      int

	maxWallClock           time.Duration
	maxCycles              int
	maxConsecutiveFailures int

	maxGoals            int
	maxDependencyDepth  int
	maxRefinementRounds int
	maxProjectAge       time.Duration
}

// NewEngine creates a policy engine. store receives the audit trail and
// must not be nil.
func NewEngine(store memory.Store, log *logging.Logger, opts Options) *Engine {
	permissions := opts.AllowedPermissions
	if len(permissions) == 0 {
		permissions = []string{"read", "analyze", "search", "generate"}
	}
	allowed := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		allowed[p] = true
	}

	deterministicFirst := true
	if opts.DeterministicFirst != nil {
		deterministicFirst = *opts.DeterministicFirst
	}
	parallelLimit := opts.ParallelLimit
	if parallelLimit == 0 {
		parallelLimit = 3
	}
	maxCycles := opts.MaxCycles
	if maxCycles == 0 {
		maxCycles = 50
	}
	maxConsecutive := opts.MaxConsecutiveFailures
	if maxConsecutive == 0 {
		maxConsecutive = 5
	}
	maxGoals := opts.MaxGoals
	if maxGoals == 0 {
		maxGoals = 25
	}
	maxDepth := opts.MaxDependencyDepth
	if maxDepth == 0 {
		maxDepth = 10
	}
	maxRounds := opts.MaxRefinementRounds
	if maxRounds == 0 {
		maxRounds = 8
	}

	return &Engine{
		memory:                 store,
		log:                    log.WithComponent("policy"),
		allowedPermissions:     allowed,
		deterministicFirst:     deterministicFirst,
		parallelLimit:          parallelLimit,
		maxWallClock:           opts.MaxWallClock,
		maxCycles:              maxCycles,
		maxConsecutiveFailures: maxConsecutive,
		maxGoals:               maxGoals,
		maxDependencyDepth:     maxDepth,
		maxRefinementRounds:    maxRounds,
		maxProjectAge:          opts.MaxProjectAge,
	}
}

// MaxCycles exposes the cycle ceiling for callers building runtime state.
func (e *Engine) MaxCycles() int { return e.maxCycles }

// ------------------------------------------------------------------
// Plan-time policies
// ------------------------------------------------------------------

// CheckPlan evaluates a plan before simulation or execution. Permission
// breaches and artifact collisions block; determinism and parallelism
// preferences are applied as silent rewrites. Applying CheckPlan to its
// own output is a no-op.
func (e *Engine) CheckPlan(graph *taskgraph.Graph, schemas SchemaSource) Result {
	result := e.checkPermissions(graph, schemas)
	result = result.Merge(e.enforceParallelLimit(graph))
	result = result.Merge(e.checkArtifacts(graph))
	e.log.PolicyDecision("plan", result.Allowed, result.Reasons)
	return result
}

func (e *Engine) checkPermissions(graph *taskgraph.Graph, schemas SchemaSource) Result {
	result := Allow()
	for _, node := range graph.Nodes() {
		if node.Tool == "" {
			continue
		}
		schema, ok := schemas.GetSchema(node.Tool)
		if !ok {
			reason := fmt.Sprintf("tool metadata missing for %s", node.Tool)
			e.recordEvent("block", reason, map[string]interface{}{"node": node.ID})
			result = result.Merge(Block(reason))
			continue
		}
		if disallowed := e.disallowedPermissions(schema.Permissions); len(disallowed) > 0 {
			reason := fmt.Sprintf("tool %q permissions not allowed: %s", node.Tool, strings.Join(disallowed, ", "))
			e.recordEvent("block", reason, map[string]interface{}{
				"node":        node.ID,
				"permissions": schema.Permissions,
			})
			result = result.Merge(Block(reason))
			continue
		}
		if e.deterministicFirst && !schema.Deterministic && node.Parallelizable {
			node.Parallelizable = false
			result.Rewrites = append(result.Rewrites, Rewrite{
				Kind:   "serialize_nondeterministic",
				Node:   node.ID,
				Detail: fmt.Sprintf("tool %s is not deterministic", node.Tool),
			})
			e.log.PolicyRewrite("serialize_nondeterministic", node.ID)
		}
	}
	return result
}

func (e *Engine) disallowedPermissions(permissions []string) []string {
	var disallowed []string
	for _, p := range permissions {
		if !e.allowedPermissions[p] {
			disallowed = append(disallowed, p)
		}
	}
	return disallowed
}

func (e *Engine) enforceParallelLimit(graph *taskgraph.Graph) Result {
	result := Allow()
	parallelCount := 0
	for _, node := range graph.Nodes() {
		if node.Parallelizable {
			parallelCount++
		}
	}
	if parallelCount <= e.parallelLimit {
		return result
	}
	e.recordEvent("rewrite", "parallel limit exceeded; serializing tasks", map[string]interface{}{
		"parallel_count": parallelCount,
		"limit":          e.parallelLimit,
	})
	for _, node := range graph.Nodes() {
		if !node.Parallelizable {
			continue
		}
		node.Parallelizable = false
		result.Rewrites = append(result.Rewrites, Rewrite{
			Kind:   "serialize_parallel_limit",
			Node:   node.ID,
			Detail: fmt.Sprintf("parallel count %d exceeded limit %d", parallelCount, e.parallelLimit),
		})
		e.log.PolicyRewrite("serialize_parallel_limit", node.ID)
	}
	return result
}

func (e *Engine) checkArtifacts(graph *taskgraph.Graph) Result {
	produced := make(map[string]string)
	for _, node := range graph.Nodes() {
		for _, artifact := range node.Produces {
			if prev, collision := produced[artifact]; collision {
				reason := fmt.Sprintf("artifact collision: %q produced by %s and %s", artifact, prev, node.ID)
				e.recordEvent("block", reason, map[string]interface{}{"artifact": artifact})
				return Block(reason)
			}
			produced[artifact] = node.ID
		}
	}
	return Allow()
}

// ------------------------------------------------------------------
// Execution-time policies
// ------------------------------------------------------------------

// CheckExecution gates a single node immediately before it runs: the
// tool must still be cataloged and allowed, and no argument may carry a
// dangerous token.
func (e *Engine) CheckExecution(node *taskgraph.Node, schemas SchemaSource) Result {
	if node.Tool == "" {
		return Allow()
	}
	schema, ok := schemas.GetSchema(node.Tool)
	if !ok {
		reason := fmt.Sprintf("cannot execute tool %s without metadata", node.Tool)
		e.recordEvent("block", reason, map[string]interface{}{"node": node.ID})
		return Block(reason)
	}
	if disallowed := e.disallowedPermissions(schema.Permissions); len(disallowed) > 0 {
		reason := fmt.Sprintf("tool %q permissions not allowed: %s", node.Tool, strings.Join(disallowed, ", "))
		e.recordEvent("block", reason, map[string]interface{}{"node": node.ID})
		return Block(reason)
	}
	if dangerous := dangerousArgs(node.Args); len(dangerous) > 0 {
		reason := fmt.Sprintf("unsafe arguments detected for task %s", node.ID)
		e.recordEvent("block", reason, map[string]interface{}{"args": dangerous})
		return Block(reason)
	}
	return Allow()
}

// dangerousTokens block execution when found inside any stringified
// argument value.
var dangerousTokens = []string{"subprocess", "os.system", "rm -rf", "../", `\..\`}

func dangerousArgs(args map[string]interface{}) []string {
	var flagged []string
	for _, value := range args {
		str, ok := value.(string)
		if !ok {
			str = fmt.Sprintf("%v", value)
		}
		for _, token := range dangerousTokens {
			if strings.Contains(str, token) {
				flagged = append(flagged, str)
				break
			}
		}
	}
	return flagged
}

// CheckRuntimeLimits compares a run snapshot to the configured ceilings.
// With enforce true a breach returns a Violation; otherwise it returns a
// blocking Result the caller folds into node handling.
func (e *Engine) CheckRuntimeLimits(state RuntimeState, enforce bool) (Result, error) {
	var reasons []string
	if e.maxWallClock > 0 && state.Elapsed >= e.maxWallClock {
		reasons = append(reasons, fmt.Sprintf("wall clock limit reached (%s >= %s)", state.Elapsed, e.maxWallClock))
	}
	if e.maxCycles > 0 && state.Cycles >= e.maxCycles {
		reasons = append(reasons, fmt.Sprintf("cycle limit reached (%d >= %d)", state.Cycles, e.maxCycles))
	}
	if e.maxConsecutiveFailures > 0 && state.ConsecutiveFailures >= e.maxConsecutiveFailures {
		reasons = append(reasons, fmt.Sprintf("consecutive failure limit reached (%d >= %d)", state.ConsecutiveFailures, e.maxConsecutiveFailures))
	}
	if len(reasons) == 0 {
		return Allow(), nil
	}
	e.recordEvent("block", "runtime limits breached", map[string]interface{}{"reasons": reasons})
	if enforce {
		return Result{}, &Violation{Reason: strings.Join(reasons, "; ")}
	}
	return Result{Allowed: false, Reasons: reasons}, nil
}

// ------------------------------------------------------------------
// Project governance
// ------------------------------------------------------------------

// CheckProjectLimits enforces governance ceilings on long-horizon
// projects. Breaches return a Violation.
func (e *Engine) CheckProjectLimits(state ProjectState) error {
	var reasons []string
	if e.maxGoals > 0 && state.Goals > e.maxGoals {
		reasons = append(reasons, fmt.Sprintf("goal count %d exceeds limit %d", state.Goals, e.maxGoals))
	}
	if e.maxDependencyDepth > 0 && state.DependencyDepth > e.maxDependencyDepth {
		reasons = append(reasons, fmt.Sprintf("dependency depth %d exceeds limit %d", state.DependencyDepth, e.maxDependencyDepth))
	}
	if e.maxRefinementRounds > 0 && state.RefinementRounds > e.maxRefinementRounds {
		reasons = append(reasons, fmt.Sprintf("refinement rounds %d exceed limit %d", state.RefinementRounds, e.maxRefinementRounds))
	}
	if e.maxProjectAge > 0 && state.Age > e.maxProjectAge {
		reasons = append(reasons, fmt.Sprintf("project age %s exceeds limit %s", state.Age, e.maxProjectAge))
	}
	if len(reasons) == 0 {
		return nil
	}
	reason := strings.Join(reasons, "; ")
	e.recordEvent("block", reason, map[string]interface{}{"project": state.Project})
	e.log.GovernanceViolation(state.Project, reason)
	return &Violation{Reason: reason, Details: map[string]interface{}{"project": state.Project}}
}

// ------------------------------------------------------------------
// Reflection-time policies
// ------------------------------------------------------------------

// Advise converts reflection issues into a policy decision.
func (e *Engine) Advise(issues []string) Result {
	if len(issues) == 0 {
		return Allow()
	}
	return Result{Allowed: false, Reasons: issues}
}

// recordEvent writes an audit record into the policy_events namespace.
func (e *Engine) recordEvent(kind, message string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"event":   kind,
		"message": message,
		"details": details,
	}
	if _, err := e.memory.StoreFact("policy_events", "", payload, payload); err != nil {
		e.log.Warn("policy_event_persist_failed", map[string]interface{}{"error": err.Error()})
	}
	if err := e.memory.StoreText(fmt.Sprintf("%s: %s", kind, message), "policy_events", payload); err != nil {
		e.log.Warn("policy_event_persist_failed", map[string]interface{}{"error": err.Error()})
	}
}
