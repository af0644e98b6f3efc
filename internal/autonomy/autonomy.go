// Package autonomy drives the plan, simulate, execute, reflect cycle until
// the goal resolves or a guardrail stops it.
package autonomy

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/sentinel/internal/checkpoint"
	"github.com/openclaw/sentinel/internal/controller"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/planner"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/reflection"
	"github.com/openclaw/sentinel/internal/simulation"
)

// Stop reasons.
const (
	StopComplete     = "complete"
	StopMaxCycles    = "max_cycles"
	StopFailedCycles = "consecutive_failed_cycles"
	StopDeadline     = "deadline"
	StopPolicyLimit  = "policy_limit"
	StopPolicyBlock  = "policy_block"
	StopCanceled     = "canceled"
)

// Options bounds a loop run. Zero values fall back to defaults.
// FirstCycle and InitialFailedCycles carry state forward when a run
// resumes from a checkpoint.
type Options struct {
	MaxCycles           int
	MaxFailedCycles     int
	Deadline            time.Duration
	Mode                controller.Mode
	ExecutionParams     controller.Params
	FirstCycle          int
	InitialFailedCycles int
}

// CycleRecord captures one full cycle.
type CycleRecord struct {
	Cycle             int
	PlanID            string
	PlanVersion       int
	SimulatedNodes    int
	PredictedFailures []string
	Trace             *controller.Trace
	Reflection        reflection.Reflection
	Duration          time.Duration
}

// Result is the outcome of a loop run.
type Result struct {
	Goal       string
	Cycles     []CycleRecord
	StopReason string
	FinalTrace *controller.Trace
}

// Loop wires the planner, sandbox, controller, and reflection engine into
// one bounded autonomy cycle.
type Loop struct {
	planner     *planner.Planner
	sandbox     *simulation.Sandbox
	controller  *controller.Controller
	reflector   *reflection.Engine
	policy      *policy.Engine
	store       memory.Store
	log         *logging.Logger
	run         *journal.Run
	checkpoints *checkpoint.Store
}

// New creates an autonomy loop.
func New(p *planner.Planner, sandbox *simulation.Sandbox, c *controller.Controller,
	reflector *reflection.Engine, engine *policy.Engine, store memory.Store, log *logging.Logger) *Loop {
	return &Loop{
		planner:    p,
		sandbox:    sandbox,
		controller: c,
		reflector:  reflector,
		policy:     engine,
		store:      store,
		log:        log.WithComponent("autonomy"),
	}
}

// AttachRun directs cycle events into a journal run.
func (l *Loop) AttachRun(run *journal.Run) { l.run = run }

// AttachCheckpoints enables per-cycle checkpointing. Checkpoints are keyed
// by the attached run's ID, so AttachRun must be called as well.
func (l *Loop) AttachCheckpoints(cs *checkpoint.Store) { l.checkpoints = cs }

// Run executes cycles until the goal resolves cleanly, a guardrail trips,
// or the context is canceled.
func (l *Loop) Run(ctx context.Context, goal string, opts Options) (*Result, error) {
	maxCycles := opts.MaxCycles
	if maxCycles <= 0 {
		maxCycles = 5
	}
	maxFailed := opts.MaxFailedCycles
	if maxFailed <= 0 {
		maxFailed = 3
	}
	mode := opts.Mode
	if mode == "" {
		mode = controller.ModeUntilComplete
	}

	if err := l.store.StoreText(goal, "goals", map[string]interface{}{"type": "user_goal"}); err != nil {
		l.log.Warn("failed to record goal", map[string]interface{}{"error": err.Error()})
	}

	plan, err := l.planner.Plan(goal, nil)
	if err != nil {
		return nil, fmt.Errorf("initial planning failed: %w", err)
	}

	firstCycle := opts.FirstCycle
	if firstCycle <= 0 {
		firstCycle = 1
	}

	result := &Result{Goal: goal}
	start := time.Now()
	failedCycles := opts.InitialFailedCycles

	for cycle := firstCycle; cycle <= maxCycles; cycle++ {
		if ctx.Err() != nil {
			result.StopReason = StopCanceled
			return result, nil
		}
		if opts.Deadline > 0 && time.Since(start) >= opts.Deadline {
			result.StopReason = StopDeadline
			return result, nil
		}
		if _, err := l.policy.CheckRuntimeLimits(policy.RuntimeState{
			Elapsed:             time.Since(start),
			Cycles:              cycle - 1,
			ConsecutiveFailures: failedCycles,
		}, true); err != nil {
			result.StopReason = StopPolicyLimit
			return result, nil
		}

		record, err := l.runCycle(ctx, cycle, goal, plan, mode, opts.ExecutionParams)
		result.Cycles = append(result.Cycles, record)
		if record.Trace != nil {
			result.FinalTrace = record.Trace
		}
		if err != nil {
			return result, fmt.Errorf("cycle %d: %w", cycle, err)
		}

		if record.Trace != nil && len(record.Trace.Failed) > 0 {
			failedCycles++
		} else {
			failedCycles = 0
		}
		l.saveCheckpoint(goal, record, failedCycles)

		if record.Reflection.Adjustment.Action == reflection.AdjustNone {
			result.StopReason = StopComplete
			return result, nil
		}
		if containsIssue(record.Reflection.Issues, "policy_blocked") {
			result.StopReason = StopPolicyBlock
			return result, nil
		}
		if failedCycles >= maxFailed {
			result.StopReason = StopFailedCycles
			return result, nil
		}

		plan, err = l.planner.Refine(plan, record.Reflection.Adjustment.Focus)
		if err != nil {
			return result, fmt.Errorf("replanning failed in cycle %d: %w", cycle, err)
		}
	}

	result.StopReason = StopMaxCycles
	return result, nil
}

// runCycle performs one simulate, execute, reflect pass.
func (l *Loop) runCycle(ctx context.Context, cycle int, goal string, plan *planner.Plan,
	mode controller.Mode, params controller.Params) (CycleRecord, error) {

	cycleStart := time.Now()
	ctx, span := l.startCycleSpan(ctx, cycle, plan)
	defer span.End()

	l.log.CycleStart(cycle, goal)
	correlationID := ""
	if l.run != nil {
		correlationID = l.run.StartCorrelation()
		l.run.AddEvent(journal.Event{
			Type: journal.EventCycleStart, Component: "autonomy",
			Cycle: cycle, PlanID: plan.ID, Version: plan.Version, CorrelationID: correlationID,
		})
	}

	record := CycleRecord{Cycle: cycle, PlanID: plan.ID, PlanVersion: plan.Version}

	simResults, err := l.sandbox.SimulateGraph(plan.Graph)
	if err != nil {
		record.Duration = time.Since(cycleStart)
		l.endCycleSpan(span, record, err)
		l.log.Error("simulation failed", map[string]interface{}{"cycle": cycle, "error": err.Error()})
		return record, fmt.Errorf("simulation: %w", err)
	}
	record.SimulatedNodes = len(simResults)
	for nodeID, sim := range simResults {
		if !sim.Success {
			record.PredictedFailures = append(record.PredictedFailures, nodeID)
		}
	}
	if l.run != nil {
		l.run.AddEvent(journal.Event{
			Type: journal.EventSimulationGraph, Component: "autonomy",
			Cycle: cycle, CorrelationID: correlationID,
			Content: fmt.Sprintf("%d nodes simulated, %d predicted failures",
				record.SimulatedNodes, len(record.PredictedFailures)),
		})
	}

	trace, err := l.controller.Execute(ctx, plan.Graph, mode, params)
	if err != nil {
		record.Duration = time.Since(cycleStart)
		l.endCycleSpan(span, record, err)
		l.log.Error("execution failed", map[string]interface{}{"cycle": cycle, "error": err.Error()})
		return record, fmt.Errorf("execution: %w", err)
	}
	record.Trace = trace

	record.Reflection = l.reflector.Reflect(trace, "operational", goal, correlationID)
	record.Duration = time.Since(cycleStart)

	l.log.CycleComplete(cycle, record.Duration, len(record.Reflection.Issues), record.Reflection.Confidence)
	if l.run != nil {
		l.run.AddEvent(journal.Event{
			Type: journal.EventCycleEnd, Component: "autonomy",
			Cycle: cycle, CorrelationID: correlationID,
			DurationMs: record.Duration.Milliseconds(),
			Meta: &journal.EventMeta{
				Issues:     record.Reflection.Issues,
				Confidence: record.Reflection.Confidence,
				Adjustment: record.Reflection.Adjustment.Action,
			},
		})
	}
	l.endCycleSpan(span, record, nil)
	return record, nil
}

// saveCheckpoint records durable cycle progress when checkpointing is
// enabled. Failures are logged, never fatal to the loop.
func (l *Loop) saveCheckpoint(goal string, record CycleRecord, failedCycles int) {
	if l.checkpoints == nil || l.run == nil {
		return
	}
	cp := checkpoint.CycleRecord{
		Cycle:        record.Cycle,
		PlanID:       record.PlanID,
		PlanVersion:  record.PlanVersion,
		Adjustment:   record.Reflection.Adjustment.Action,
		FailedCycles: failedCycles,
	}
	if record.Trace != nil {
		cp.Executed = record.Trace.Executed
		cp.Failed = record.Trace.Failed
	}
	if err := l.checkpoints.Append(l.run.ID, goal, cp); err != nil {
		l.log.Warn("failed to write checkpoint", map[string]interface{}{
			"run":   l.run.ID,
			"error": err.Error(),
		})
	}
}

func containsIssue(issues []string, issue string) bool {
	for _, existing := range issues {
		if existing == issue {
			return true
		}
	}
	return false
}
