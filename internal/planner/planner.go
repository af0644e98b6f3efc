// Package planner builds executable task graphs from free-form goals,
// grounded in recalled memory and aligned with policy before anything runs.
package planner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/taskgraph"
	"github.com/openclaw/sentinel/internal/tools"
)

// ToolSource answers tool existence and schema lookups during planning.
type ToolSource interface {
	Has(name string) bool
	GetSchema(name string) (tools.Schema, bool)
}

// Metadata records how a plan came to be.
type Metadata struct {
	OriginGoal       string   `json:"origin_goal"`
	KnowledgeSources []string `json:"knowledge_sources"`
	ToolChoices      []string `json:"tool_choices"`
	ReasoningTrace   string   `json:"reasoning_trace"`
}

// Plan is a versioned task graph for one goal. Refinement keeps the ID and
// bumps the version.
type Plan struct {
	ID       string
	Version  int
	Goal     string
	GoalType string
	Graph    *taskgraph.Graph
	Metadata Metadata
}

// planContext carries goal analysis through graph construction.
type planContext struct {
	goal         string
	goalType     string
	memories     []memory.TextResult
	contextBlock string
}

// Planner derives task graphs from goals. Plans are policy-checked and
// structurally validated before being returned; when the adaptive path
// fails, a deterministic single-purpose fallback plan is produced instead.
type Planner struct {
	tools     ToolSource
	store     memory.Store
	policy    *policy.Engine
	validator *taskgraph.Validator
	log       *logging.Logger
	run       *journal.Run
}

// New creates a planner over the given tool source, memory store, and
// policy engine.
func New(toolSource ToolSource, store memory.Store, engine *policy.Engine, log *logging.Logger) *Planner {
	return &Planner{
		tools:     toolSource,
		store:     store,
		policy:    engine,
		validator: taskgraph.NewValidator(toolSource),
		log:       log.WithComponent("planner"),
	}
}

// AttachRun directs plan and tool-gap events into a journal run.
func (p *Planner) AttachRun(run *journal.Run) { p.run = run }

// Plan builds a task graph for the goal. reflectionIssues, when non-empty,
// come from a prior cycle's reflection and add a remediation subgoal.
func (p *Planner) Plan(goal string, reflectionIssues []string) (*Plan, error) {
	pctx := p.analyzeGoal(goal)
	p.log.PlanStart(goal, pctx.goalType)

	graph, meta, err := p.buildGraph(pctx, p.subgoals(pctx, reflectionIssues))
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	plan := &Plan{
		ID:       uuid.NewString(),
		Version:  1,
		Goal:     goal,
		GoalType: pctx.goalType,
		Graph:    graph,
		Metadata: meta,
	}

	if err := p.align(plan); err != nil {
		p.log.Warn("adaptive planning failed, using deterministic fallback",
			map[string]interface{}{"goal": goal, "error": err.Error()})
		fallback, ferr := p.deterministicPlan(goal)
		if ferr != nil {
			return nil, fmt.Errorf("fallback planning failed: %w", ferr)
		}
		plan = fallback
	}

	p.recordPlan(plan)
	p.log.PlanComplete(plan.ID, plan.Version, plan.Graph.Len())
	p.emit(journal.Event{
		Type:      journal.EventPlanComplete,
		Component: "planner",
		PlanID:    plan.ID,
		Version:   plan.Version,
		Content:   plan.Metadata.ReasoningTrace,
	})
	return plan, nil
}

// Refine rebuilds the plan for the same goal with reflection findings folded
// in. The plan ID is retained and the version incremented.
func (p *Planner) Refine(prev *Plan, reflectionIssues []string) (*Plan, error) {
	next, err := p.Plan(prev.Goal, reflectionIssues)
	if err != nil {
		return nil, err
	}
	next.ID = prev.ID
	next.Version = prev.Version + 1
	p.emit(journal.Event{
		Type:      journal.EventPlanRefined,
		Component: "planner",
		PlanID:    next.ID,
		Version:   next.Version,
		Content:   strings.Join(reflectionIssues, "; "),
	})
	return next, nil
}

// ------------------------------------------------------------------
// Goal analysis
// ------------------------------------------------------------------

func (p *Planner) analyzeGoal(goal string) planContext {
	normalized := strings.ToLower(goal)
	goalType := "info_query"
	switch {
	case containsAny(normalized, "code", "bug", "refactor"):
		goalType = "code_generation"
	case containsAny(normalized, "service", "api", "microservice"):
		goalType = "microservice"
	case containsAny(normalized, "file", "process", "csv", "json"):
		goalType = "file_processing"
	}

	memories, block := p.memoryContext(goal)
	return planContext{goal: goal, goalType: goalType, memories: memories, contextBlock: block}
}

// memoryContext recalls up to six relevant memories and renders them into a
// context block for downstream nodes.
func (p *Planner) memoryContext(goal string) ([]memory.TextResult, string) {
	results, err := p.store.Search(goal, 6)
	if err != nil {
		p.log.Warn("memory recall failed", map[string]interface{}{"error": err.Error()})
		return nil, ""
	}
	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[%s] %s", r.Namespace, r.Text))
	}
	return results, strings.Join(lines, "\n")
}

func (p *Planner) subgoals(pctx planContext, reflectionIssues []string) []string {
	var subgoals []string
	switch pctx.goalType {
	case "code_generation":
		subgoals = []string{"analyze_requirements", "generate_code", "validate_code"}
	case "microservice":
		subgoals = []string{"design_service", "generate_service", "validate_service"}
	case "file_processing":
		subgoals = []string{"gather_files", "process_files", "summarize_outputs"}
	default:
		subgoals = []string{"collect_information", "synthesize_answer"}
	}
	if len(reflectionIssues) > 0 {
		subgoals = append(subgoals, "address_reflection_findings")
	}
	return subgoals
}

// ------------------------------------------------------------------
// Graph construction
// ------------------------------------------------------------------

func (p *Planner) buildGraph(pctx planContext, subgoals []string) (*taskgraph.Graph, Metadata, error) {
	graph := taskgraph.New()
	var produced []string
	var toolChoices []string

	for idx, subgoal := range subgoals {
		nodeID := fmt.Sprintf("task_%d_%s", idx+1, subgoal)
		tool, args, output := p.selectTool(subgoal, pctx.goal)

		var requires []string
		if idx > 0 {
			requires = append(requires, produced...)
		}
		artifact := output
		if artifact == "" {
			artifact = fmt.Sprintf("artifact_%d", idx+1)
		}

		node := &taskgraph.Node{
			ID:             nodeID,
			Description:    fmt.Sprintf("%s for goal", titleCase(subgoal)),
			Tool:           tool,
			Args:           args,
			Requires:       requires,
			Produces:       []string{artifact},
			Parallelizable: p.parallelizableFor(tool),
		}
		if err := graph.Add(node); err != nil {
			return nil, Metadata{}, err
		}
		produced = append(produced, artifact)
		toolChoices = append(toolChoices, tool)
	}

	var sanityRequires []string
	if len(produced) > 0 {
		sanityRequires = []string{produced[len(produced)-1]}
	}
	err := graph.Add(&taskgraph.Node{
		ID:          "sanity_validate",
		Description: "Sanity validation checkpoint",
		Args:        map[string]interface{}{"context": pctx.contextBlock},
		Requires:    sanityRequires,
		Produces:    []string{"sanity_report"},
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	toolChoices = append(toolChoices, "")

	meta := Metadata{
		OriginGoal:       pctx.goal,
		KnowledgeSources: knowledgeSources(pctx.memories),
		ToolChoices:      toolChoices,
		ReasoningTrace:   reasoningTrace(pctx, graph),
	}
	return graph, meta, nil
}

// selectTool maps a subgoal to a catalog tool, its arguments, and the
// artifact it yields. Subgoals whose preferred tool is missing are reported
// as tool gaps and fall back to pass-through nodes.
func (p *Planner) selectTool(subgoal, goal string) (string, map[string]interface{}, string) {
	type choice struct {
		match  string
		tool   string
		args   map[string]interface{}
		output string
	}
	choices := []choice{
		{"analyze", "code_analyzer", map[string]interface{}{"code": goal}, "code_assessment"},
		{"generate_service", "microservice_builder", map[string]interface{}{"description": goal, "auto_start": false}, "service_spec"},
		{"collect_information", "web_search", map[string]interface{}{"query": goal}, "search_results"},
		{"process_files", "internet_extract", map[string]interface{}{"url": lastWord(goal)}, "extracted_content"},
		{"synthesize", "internet_extract", map[string]interface{}{"url": goal}, "synthesis"},
	}
	for _, c := range choices {
		if !strings.Contains(subgoal, c.match) {
			continue
		}
		if p.tools.Has(c.tool) {
			return c.tool, c.args, c.output
		}
		p.log.ToolGap(subgoal)
		p.emit(journal.Event{
			Type:      journal.EventToolGap,
			Component: "planner",
			Tool:      c.tool,
			Content:   fmt.Sprintf("no tool available for subgoal %s", subgoal),
		})
		break
	}
	return "", map[string]interface{}{"message": goal}, ""
}

func (p *Planner) parallelizableFor(tool string) bool {
	if tool == "" {
		return true
	}
	schema, ok := p.tools.GetSchema(tool)
	return ok && schema.Deterministic
}

// align runs plan-level policy and structural validation. A policy block or
// a structural defect fails the plan.
func (p *Planner) align(plan *Plan) error {
	if result := p.policy.CheckPlan(plan.Graph, p.tools); !result.Allowed {
		return fmt.Errorf("plan blocked by policy: %s", strings.Join(result.Reasons, "; "))
	}
	if err := p.validator.Validate(plan.Graph); err != nil {
		return err
	}
	return nil
}

// ------------------------------------------------------------------
// Deterministic fallback
// ------------------------------------------------------------------

// deterministicPlan builds a one-or-two node plan keyed off goal keywords.
// It exists so that planning never leaves the loop without something
// executable.
func (p *Planner) deterministicPlan(goal string) (*Plan, error) {
	normalized := strings.ToLower(strings.TrimSpace(goal))
	var nodes []*taskgraph.Node

	switch {
	case strings.Contains(normalized, "code") && p.tools.Has("code_analyzer"):
		nodes = append(nodes, &taskgraph.Node{
			ID:             "analyze_code",
			Description:    "Analyze provided code for safety",
			Tool:           "code_analyzer",
			Args:           map[string]interface{}{"code": goal},
			Produces:       []string{"code_assessment"},
			Parallelizable: p.parallelizableFor("code_analyzer"),
		})
	case strings.Contains(normalized, "service") && p.tools.Has("microservice_builder"):
		nodes = append(nodes, &taskgraph.Node{
			ID:             "design_service",
			Description:    "Generate microservice from description",
			Tool:           "microservice_builder",
			Args:           map[string]interface{}{"description": goal, "auto_start": false},
			Produces:       []string{"service_spec"},
			Parallelizable: p.parallelizableFor("microservice_builder"),
		})
	case strings.Contains(normalized, "scrape") || strings.Contains(normalized, "extract"):
		var requires []string
		if p.tools.Has("web_search") {
			nodes = append(nodes, &taskgraph.Node{
				ID:             "search",
				Description:    "Search for relevant sources",
				Tool:           "web_search",
				Args:           map[string]interface{}{"query": goal},
				Produces:       []string{"search_results"},
				Parallelizable: p.parallelizableFor("web_search"),
			})
			requires = []string{"search_results"}
		}
		extractTool := ""
		if p.tools.Has("internet_extract") {
			extractTool = "internet_extract"
		}
		nodes = append(nodes, &taskgraph.Node{
			ID:             "extract",
			Description:    "Extract information from the web",
			Tool:           extractTool,
			Args:           map[string]interface{}{"url": lastWord(goal)},
			Requires:       requires,
			Produces:       []string{"extracted_content"},
			Parallelizable: p.parallelizableFor(extractTool),
		})
	case strings.HasPrefix(normalized, "search") || p.tools.Has("web_search"):
		searchTool := ""
		if p.tools.Has("web_search") {
			searchTool = "web_search"
		}
		nodes = append(nodes, &taskgraph.Node{
			ID:             "search",
			Description:    "Search for information",
			Tool:           searchTool,
			Args:           map[string]interface{}{"query": goal},
			Produces:       []string{"search_results"},
			Parallelizable: p.parallelizableFor(searchTool),
		})
	default:
		nodes = append(nodes, &taskgraph.Node{
			ID:             "echo",
			Description:    "Echo the goal back",
			Args:           map[string]interface{}{"message": goal},
			Produces:       []string{"echoed_message"},
			Parallelizable: true,
		})
	}

	graph := taskgraph.New()
	for _, node := range nodes {
		if err := graph.Add(node); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		ID:       uuid.NewString(),
		Version:  1,
		Goal:     goal,
		GoalType: "fallback",
		Graph:    graph,
		Metadata: Metadata{OriginGoal: goal},
	}
	if err := p.align(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ------------------------------------------------------------------
// Recording
// ------------------------------------------------------------------

func (p *Planner) recordPlan(plan *Plan) {
	nodes := make([]map[string]interface{}, 0, plan.Graph.Len())
	for _, node := range plan.Graph.Nodes() {
		nodes = append(nodes, map[string]interface{}{
			"id":       node.ID,
			"tool":     node.Tool,
			"requires": node.Requires,
			"produces": node.Produces,
		})
	}
	_, err := p.store.StoreFact("plans", plan.ID, map[string]interface{}{
		"goal":      plan.Goal,
		"goal_type": plan.GoalType,
		"version":   plan.Version,
		"metadata":  plan.Metadata,
		"nodes":     nodes,
	}, nil)
	if err != nil {
		p.log.Warn("failed to record plan", map[string]interface{}{"plan": plan.ID, "error": err.Error()})
		return
	}
	if err := p.store.StoreText(plan.Metadata.ReasoningTrace, "planning_traces", map[string]interface{}{
		"goal":      plan.Goal,
		"goal_type": plan.GoalType,
	}); err != nil {
		p.log.Warn("failed to record planning trace", map[string]interface{}{"plan": plan.ID, "error": err.Error()})
	}
}

func (p *Planner) emit(event journal.Event) {
	if p.run == nil {
		return
	}
	p.run.AddEvent(event)
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

func reasoningTrace(pctx planContext, graph *taskgraph.Graph) string {
	var toolNames []string
	for _, node := range graph.Nodes() {
		name := node.Tool
		if name == "" {
			name = "no-tool"
		}
		toolNames = append(toolNames, node.ID+":"+name)
	}
	return fmt.Sprintf("Goal type=%s; used memories=%d; tools=%s",
		pctx.goalType, len(pctx.memories), strings.Join(toolNames, ";"))
}

func knowledgeSources(memories []memory.TextResult) []string {
	sources := make([]string, 0, len(memories))
	for _, m := range memories {
		sources = append(sources, m.Namespace)
	}
	return sources
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[len(fields)-1]
}

func titleCase(subgoal string) string {
	words := strings.Split(subgoal, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
