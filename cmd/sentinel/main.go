// Package main is the entry point for the sentinel orchestrator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/openclaw/sentinel/internal/autonomy"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/project"
	"github.com/openclaw/sentinel/internal/taskgraph"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sentinel"),
		kong.Description("Autonomous goal orchestrator: plan, simulate, execute, reflect."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Run executes the autonomy loop over a goal.
func (r *RunCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	mode, params, err := r.executionParams(rt.cfg)
	if err != nil {
		return err
	}

	opts := autonomy.Options{
		MaxCycles:       r.MaxCycles,
		MaxFailedCycles: r.MaxFailedCycles,
		Mode:            mode,
		ExecutionParams: params,
	}

	goal := r.Goal
	var run *journal.Run
	if r.Resume != "" {
		checkpointed := rt.checkpoints.Get(r.Resume)
		last := checkpointed.Last()
		if last == nil {
			return fmt.Errorf("no checkpoint recorded for run %s", r.Resume)
		}
		if goal == "" {
			goal = checkpointed.Goal
		}
		opts.FirstCycle = last.Cycle + 1
		opts.InitialFailedCycles = last.FailedCycles
		run, err = rt.journals.Get(r.Resume)
		if err != nil {
			return fmt.Errorf("load run journal: %w", err)
		}
		run.Status = journal.StatusRunning
		fmt.Printf("resuming run %s at cycle %d (%d prior consecutive failure(s))\n",
			run.ID, opts.FirstCycle, opts.InitialFailedCycles)
	} else {
		if goal == "" {
			return fmt.Errorf("a goal is required unless --resume is given")
		}
		run, err = rt.journals.Create(goal, string(mode))
		if err != nil {
			return fmt.Errorf("open run journal: %w", err)
		}
	}
	rt.attachRun(run)

	if opts.MaxCycles == 0 {
		opts.MaxCycles = rt.cfg.Autonomy.MaxCycles
	}
	if opts.MaxFailedCycles == 0 {
		opts.MaxFailedCycles = rt.cfg.Autonomy.MaxFailedCycles
	}
	if r.Deadline != "" {
		d, err := time.ParseDuration(r.Deadline)
		if err != nil {
			return fmt.Errorf("invalid --deadline: %w", err)
		}
		opts.Deadline = d
	} else {
		opts.Deadline = rt.cfg.AutonomyDeadline()
	}

	result, runErr := rt.loop.Run(context.Background(), goal, opts)

	run.Status = journal.StatusComplete
	if runErr != nil {
		run.Status = journal.StatusFailed
		run.Error = runErr.Error()
	}
	if result != nil {
		run.State["stop_reason"] = result.StopReason
		run.State["cycles"] = len(result.Cycles)
		if result.FinalTrace != nil {
			run.Artifacts = result.FinalTrace.Artifacts
		}
	}
	if err := rt.journals.Update(run); err != nil {
		rt.log.Warn("failed to finalize run journal", map[string]interface{}{"run": run.ID, "error": err.Error()})
	}

	if result != nil {
		printRunResult(result, run.ID)
	}
	return runErr
}

func printRunResult(result *autonomy.Result, runID string) {
	fmt.Printf("run %s stopped: %s after %d cycle(s)\n", runID, result.StopReason, len(result.Cycles))
	if result.FinalTrace != nil {
		executed := len(result.FinalTrace.Executed)
		failed := len(result.FinalTrace.Failed)
		fmt.Printf("final cycle: %d executed, %d failed\n", executed, failed)
		if summary := result.FinalTrace.Summary(); summary != "" {
			fmt.Println(summary)
		}
	}
	for _, cycle := range result.Cycles {
		if len(cycle.Reflection.Issues) > 0 {
			fmt.Printf("cycle %d issues: %s\n", cycle.Cycle, strings.Join(cycle.Reflection.Issues, ", "))
		}
	}
}

// Run builds and prints a plan without executing it.
func (p *PlanCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	plan, err := rt.planner.Plan(p.Goal, nil)
	if err != nil {
		return err
	}
	fmt.Printf("plan %s v%d (%s)\n", plan.ID, plan.Version, plan.GoalType)
	for _, node := range plan.Graph.Nodes() {
		tool := node.Tool
		if tool == "" {
			tool = "(no-op)"
		}
		fmt.Printf("  %-40s %-22s requires=%v produces=%v\n", node.ID, tool, node.Requires, node.Produces)
	}
	if plan.Metadata.ReasoningTrace != "" {
		fmt.Println(plan.Metadata.ReasoningTrace)
	}
	return nil
}

// Run dry-runs a goal's plan in the simulation sandbox.
func (s *SimulateCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	plan, err := rt.planner.Plan(s.Goal, nil)
	if err != nil {
		return err
	}
	results, err := rt.sandbox.SimulateGraph(plan.Graph)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	failures := 0
	for _, id := range ids {
		result := results[id]
		verdict := "ok"
		if !result.Success {
			verdict = "FAIL"
			failures++
		}
		fmt.Printf("  %-40s %-4s likelihood=%.2f runtime=%.3fs %s\n",
			id, verdict, result.FailureLikelihood, result.RuntimeSeconds, result.Benchmark.Complexity)
		for _, warning := range result.Warnings {
			fmt.Printf("    warning: %s\n", warning)
		}
	}
	fmt.Printf("%d node(s), %d predicted failure(s)\n", len(ids), failures)
	return nil
}

// planFileNode is the JSON shape accepted by the validate command.
type planFileNode struct {
	ID             string                 `json:"id"`
	Description    string                 `json:"description"`
	Tool           string                 `json:"tool"`
	Args           map[string]interface{} `json:"args"`
	Requires       []string               `json:"requires"`
	Produces       []string               `json:"produces"`
	Parallelizable bool                   `json:"parallelizable"`
}

// Run structurally validates a plan file.
func (v *ValidateCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	data, err := os.ReadFile(v.File)
	if err != nil {
		return fmt.Errorf("read plan file: %w", err)
	}
	var nodes []planFileNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("parse plan file: %w", err)
	}

	graph := taskgraph.New()
	for _, spec := range nodes {
		node := &taskgraph.Node{
			ID:             spec.ID,
			Description:    spec.Description,
			Tool:           spec.Tool,
			Args:           spec.Args,
			Requires:       spec.Requires,
			Produces:       spec.Produces,
			Parallelizable: spec.Parallelizable,
		}
		if err := graph.Add(node); err != nil {
			return fmt.Errorf("%s: %w", v.File, err)
		}
	}

	validator := taskgraph.NewValidator(rt.catalog)
	if err := validator.Validate(graph, v.Inputs...); err != nil {
		return fmt.Errorf("%s: %w", v.File, err)
	}
	fmt.Printf("%s: %d node(s), structurally valid\n", v.File, graph.Len())
	return nil
}

// Run creates a project.
func (c *ProjectCreateCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	goals := make([]project.Goal, 0, len(c.Goal))
	for _, text := range c.Goal {
		goals = append(goals, project.Goal{Text: text})
	}
	created, err := rt.projects.CreateProject(c.Name, c.Description, goals)
	if err != nil {
		return err
	}
	fmt.Printf("created project %s (%d goal(s))\n", created.ID, len(created.Goals))
	return nil
}

// Run shows project overview and progress.
func (s *ProjectStatusCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.projects.Overview(s.ID); err != nil {
		return err
	}
	if err := rt.projects.ProgressReport(s.ID); err != nil {
		return err
	}
	return rt.projects.DependencyReport(s.ID)
}

// Run lists stored projects.
func (l *ProjectListCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	summaries, err := rt.projects.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no projects")
		return nil
	}
	for _, summary := range summaries {
		fmt.Printf("  %s  v%-3d %-24s %s\n",
			summary.ID, summary.Version, summary.Name, summary.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// Run shows version information.
func (VersionCmd) Run(g *Globals) error {
	fmt.Printf("sentinel version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
