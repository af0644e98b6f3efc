// Package reflection turns execution traces into actionable findings that
// can drive replanning.
package reflection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openclaw/sentinel/internal/controller"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/policy"
)

// Adjustment actions.
const (
	AdjustNone   = "none"
	AdjustReplan = "replan"
)

// Adjustment tells the loop what to do with the current plan.
type Adjustment struct {
	Action string   `json:"action"`
	Focus  []string `json:"focus,omitempty"`
}

// Insights summarizes what simulations said about the executed nodes.
type Insights struct {
	Warnings          []string `json:"warnings,omitempty"`
	PredictedFailures []string `json:"predicted_failures,omitempty"`
	SlowPaths         []string `json:"slow_paths,omitempty"`
}

// Reflection is one cycle's self-assessment.
type Reflection struct {
	Summary       string         `json:"summary"`
	Issues        []string       `json:"issues_detected"`
	Suggestions   []string       `json:"improvement_suggestions"`
	RootCause     string         `json:"root_cause"`
	Adjustment    Adjustment     `json:"plan_adjustment"`
	Context       string         `json:"context,omitempty"`
	Type          string         `json:"reflection_type"`
	Confidence    float64        `json:"confidence"`
	Simulation    Insights       `json:"simulation"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	PolicyAdvice  *policy.Result `json:"policy_advice,omitempty"`
}

// Engine produces reflections from traces and persists them for later
// recall.
type Engine struct {
	store  memory.Store
	policy *policy.Engine
	log    *logging.Logger
	run    *journal.Run
}

// New creates a reflection engine.
func New(store memory.Store, engine *policy.Engine, log *logging.Logger) *Engine {
	return &Engine{store: store, policy: engine, log: log.WithComponent("reflection")}
}

// AttachRun directs reflection events into a journal run.
func (e *Engine) AttachRun(run *journal.Run) { e.run = run }

// Reflect assesses a trace. reflectionType tags the reflection (operational,
// project, ...); goal, when non-empty, pulls related memory context.
func (e *Engine) Reflect(trace *controller.Trace, reflectionType, goal, correlationID string) Reflection {
	issues := detectIssues(trace)
	insights := simulationInsights(trace)
	if len(insights.Warnings) > 0 {
		issues = append(issues, "simulation_warnings")
	}
	if len(insights.PredictedFailures) > 0 {
		issues = append(issues, "simulation_failures")
	}
	blocked, rewrites, fixes := policyOutcomes(trace)
	if len(blocked) > 0 {
		issues = append(issues, "policy_blocked")
	}

	suggestions := suggestImprovements(issues, insights)
	suggestions = append(suggestions, fixes...)

	reflection := Reflection{
		Summary:       summarize(trace, issues, suggestions, len(blocked), rewrites),
		Issues:        issues,
		Suggestions:   suggestions,
		RootCause:     rootCause(issues),
		Adjustment:    planAdjustment(issues),
		Type:          reflectionType,
		Confidence:    confidence(issues),
		Simulation:    insights,
		CorrelationID: correlationID,
	}
	if goal != "" {
		reflection.Context = e.memoryContext(goal)
	}

	e.persist(reflection)

	advice := e.policy.Advise(issues)
	if !advice.Allowed {
		reflection.PolicyAdvice = &advice
	}

	e.emit(reflection)
	return reflection
}

// ------------------------------------------------------------------
// Analysis
// ------------------------------------------------------------------

func detectIssues(trace *controller.Trace) []string {
	var issues []string
	if len(trace.FailedNodes()) > 0 {
		issues = append(issues, "execution_failures")
	}
	if len(trace.Results) == 0 {
		issues = append(issues, "no_results")
	}
	return issues
}

func simulationInsights(trace *controller.Trace) Insights {
	var insights Insights
	for _, result := range trace.Results {
		sim := result.Simulation
		if sim == nil {
			continue
		}
		insights.Warnings = append(insights.Warnings, sim.Warnings...)
		if !sim.Success {
			insights.PredictedFailures = append(insights.PredictedFailures, result.Node.ID)
		}
		if sim.RelativeSpeed < 5 {
			insights.SlowPaths = append(insights.SlowPaths, result.Node.ID)
		}
	}
	return insights
}

func policyOutcomes(trace *controller.Trace) (blocked []string, rewrites int, fixes []string) {
	for _, result := range trace.Results {
		p := result.Policy
		if p == nil {
			continue
		}
		rewrites += len(p.Rewrites)
		if !p.Allowed {
			blocked = append(blocked, result.Node.ID)
			if len(p.Reasons) > 0 {
				fixes = append(fixes, fmt.Sprintf("Adjust task %s to satisfy policy: %s",
					result.Node.ID, strings.Join(p.Reasons, ", ")))
			}
		}
	}
	return blocked, rewrites, fixes
}

func suggestImprovements(issues []string, insights Insights) []string {
	var suggestions []string
	if containsIssue(issues, "execution_failures") {
		suggestions = append(suggestions, "Retry failed tasks with adjusted inputs")
	}
	if containsIssue(issues, "no_results") {
		suggestions = append(suggestions, "Expand search scope or enrich inputs")
	}
	if len(insights.Warnings) > 0 {
		suggestions = append(suggestions, "Resolve simulation warnings before live execution")
	}
	if len(insights.PredictedFailures) > 0 {
		suggestions = append(suggestions, "Reorder or adjust tasks flagged by simulation")
	}
	if len(insights.SlowPaths) > 0 {
		suggestions = append(suggestions, "Optimize predicted slow tasks using benchmark notes")
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "Continue current strategy")
	}
	return suggestions
}

func planAdjustment(issues []string) Adjustment {
	if len(issues) == 0 {
		return Adjustment{Action: AdjustNone}
	}
	return Adjustment{Action: AdjustReplan, Focus: issues}
}

func rootCause(issues []string) string {
	if len(issues) == 0 {
		return "none"
	}
	return issues[0]
}

func confidence(issues []string) float64 {
	base := 0.8 - 0.2*float64(len(issues))
	if base < 0.1 {
		return 0.1
	}
	return base
}

func summarize(trace *controller.Trace, issues, suggestions []string, blocked, rewrites int) string {
	var policyBits []string
	if blocked > 0 {
		policyBits = append(policyBits, fmt.Sprintf("blocked=%d", blocked))
	}
	if rewrites > 0 {
		policyBits = append(policyBits, fmt.Sprintf("rewrites=%d", rewrites))
	}
	policySummary := ""
	if len(policyBits) > 0 {
		policySummary = " policy=" + strings.Join(policyBits, " ")
	}
	return fmt.Sprintf("Trace results=%d, issues=%v, suggestions=%v%s",
		len(trace.Results), issues, suggestions, policySummary)
}

func containsIssue(issues []string, issue string) bool {
	for _, existing := range issues {
		if existing == issue {
			return true
		}
	}
	return false
}

// ------------------------------------------------------------------
// Persistence
// ------------------------------------------------------------------

func (e *Engine) memoryContext(goal string) string {
	results, err := e.store.Search(goal, 3)
	if err != nil {
		e.log.Warn("memory recall failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[%s] %s", r.Namespace, r.Text))
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) persist(reflection Reflection) {
	namespace := "reflection." + reflection.Type
	metadata := map[string]interface{}{
		"summary":    reflection.Summary,
		"confidence": reflection.Confidence,
		"type":       reflection.Type,
	}
	if _, err := e.store.StoreFact(namespace, "", reflection, metadata); err != nil {
		e.log.Warn("failed to persist reflection", map[string]interface{}{"error": err.Error()})
		return
	}
	if encoded, err := json.Marshal(reflection); err == nil {
		if err := e.store.StoreText(string(encoded), namespace, metadata); err != nil {
			e.log.Warn("failed to index reflection", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (e *Engine) emit(reflection Reflection) {
	if e.run == nil {
		return
	}
	e.run.AddEvent(journal.Event{
		Type:          journal.EventReflection,
		Component:     "reflection",
		CorrelationID: reflection.CorrelationID,
		Content:       reflection.Summary,
		Meta: &journal.EventMeta{
			Issues:     reflection.Issues,
			Confidence: reflection.Confidence,
			Adjustment: reflection.Adjustment.Action,
		},
	})
}
