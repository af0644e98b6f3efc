package project

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/sentinel/internal/dialog"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/policy"
)

// Engine coordinates long-horizon projects: durable storage, dependency
// validation, governance ceilings, and operator reports.
type Engine struct {
	store  *Store
	policy *policy.Engine
	dialog *dialog.Manager
	log    *logging.Logger
	run    *journal.Run
}

// NewEngine creates a project engine.
func NewEngine(store *Store, engine *policy.Engine, manager *dialog.Manager, log *logging.Logger) *Engine {
	return &Engine{
		store:  store,
		policy: engine,
		dialog: manager,
		log:    log.WithComponent("project"),
	}
}

// AttachRun directs governance events into a journal run.
func (e *Engine) AttachRun(run *journal.Run) { e.run = run }

// CreateProject creates a project, optionally seeding initial goals.
func (e *Engine) CreateProject(name, description string, goals []Goal) (*Project, error) {
	project, err := e.store.Create(name, description)
	if err != nil {
		return nil, err
	}
	if len(goals) > 0 {
		if project, err = e.AddGoals(project.ID, goals); err != nil {
			return nil, err
		}
	}
	e.log.Info("project created", map[string]interface{}{"project": project.ID, "name": name})
	return project, nil
}

// AddGoals merges goals into a project after checking the governance goal
// ceiling against the post-merge count.
func (e *Engine) AddGoals(projectID string, goals []Goal) (*Project, error) {
	project, err := e.store.Load(projectID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]Goal, len(project.Goals)+len(goals))
	for id, goal := range project.Goals {
		merged[id] = goal
	}
	for _, goal := range goals {
		if goal.ID == "" {
			goal.ID = uuid.New().String()
		}
		if goal.Status == "" {
			goal.Status = StatusPending
		}
		merged[goal.ID] = goal
	}

	if err := e.policy.CheckProjectLimits(policy.ProjectState{
		Project: projectID,
		Goals:   len(merged),
		Age:     time.Since(project.CreatedAt),
	}); err != nil {
		e.log.GovernanceViolation(projectID, err.Error())
		return nil, err
	}

	project.Goals = merged
	if err := e.store.Save(project); err != nil {
		return nil, err
	}
	for _, goal := range goals {
		e.emit(journal.Event{
			Type: journal.EventGoalAdded, Component: "project",
			Content: goal.Text,
			Meta:    &journal.EventMeta{Project: projectID, Goal: goal.ID},
		})
	}
	return project, nil
}

// SetGoalStatus updates one goal's status.
func (e *Engine) SetGoalStatus(projectID, goalID, status string) error {
	project, err := e.store.Load(projectID)
	if err != nil {
		return err
	}
	goal, ok := project.Goals[goalID]
	if !ok {
		return fmt.Errorf("unknown goal %s in project %s", goalID, projectID)
	}
	goal.Status = status
	project.Goals[goalID] = goal
	return e.store.Save(project)
}

// RegisterPlan validates a step plan against the dependency rules and
// governance ceilings, then attaches it to the project.
func (e *Engine) RegisterPlan(projectID string, steps []Step, planID string) (*PlanRecord, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("plan steps are required")
	}
	graph, err := NormalizeSteps(steps)
	if err != nil {
		return nil, err
	}
	if cycles := DetectCycles(graph); len(cycles) > 0 {
		return nil, &policy.Violation{Reason: fmt.Sprintf("plan contains dependency cycles: %v", cycles)}
	}
	if unresolved := FindUnresolved(graph); len(unresolved) > 0 {
		return nil, &policy.Violation{Reason: fmt.Sprintf("plan has unresolved dependencies: %v", unresolved)}
	}
	depths, err := ComputeDepths(graph)
	if err != nil {
		return nil, err
	}
	maxDepth := 0
	for _, depth := range depths {
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	project, err := e.store.Load(projectID)
	if err != nil {
		return nil, err
	}
	if err := e.policy.CheckProjectLimits(policy.ProjectState{
		Project:         projectID,
		Goals:           len(project.Goals),
		DependencyDepth: maxDepth,
		Age:             time.Since(project.CreatedAt),
	}); err != nil {
		e.log.GovernanceViolation(projectID, err.Error())
		return nil, err
	}

	if planID == "" {
		planID = uuid.New().String()
	}
	for i := range steps {
		if steps[i].Status == "" {
			steps[i].Status = StatusPending
		}
	}
	record := PlanRecord{
		ID:           planID,
		Steps:        steps,
		Dependencies: graph,
		MaxDepth:     maxDepth,
		CreatedAt:    time.Now(),
	}
	project.Plans[planID] = record
	project.Dependencies = graph
	project.Logs = append(project.Logs, LogEntry{
		Event:     "plan_registered",
		Details:   map[string]interface{}{"plan_id": planID, "steps": len(steps)},
		Timestamp: time.Now(),
	})
	if err := e.store.Save(project); err != nil {
		return nil, err
	}
	e.emit(journal.Event{
		Type: journal.EventPlanRegistered, Component: "project",
		PlanID: planID,
		Meta:   &journal.EventMeta{Project: projectID},
	})
	return &record, nil
}

// RecordStepResult records a step outcome. A step ID that is also a goal
// ID updates that goal's status.
func (e *Engine) RecordStepResult(projectID, stepID, status, output string) (*Project, error) {
	project, err := e.store.Load(projectID)
	if err != nil {
		return nil, err
	}
	for planID, plan := range project.Plans {
		for i := range plan.Steps {
			if plan.Steps[i].ID == stepID {
				plan.Steps[i].Status = status
				plan.Steps[i].Output = output
				project.Plans[planID] = plan
			}
		}
	}
	if goal, ok := project.Goals[stepID]; ok {
		goal.Status = status
		project.Goals[stepID] = goal
	}
	project.Logs = append(project.Logs, LogEntry{
		Event: "step_completed",
		Details: map[string]interface{}{
			"step_id": stepID,
			"status":  status,
			"output":  output,
		},
		Timestamp: time.Now(),
	})
	if err := e.store.Save(project); err != nil {
		return nil, err
	}
	e.emit(journal.Event{
		Type: journal.EventStepCompleted, Component: "project",
		Node: stepID, Content: status,
		Meta: &journal.EventMeta{Project: projectID},
	})
	return project, nil
}

// ExecutionOrder returns the stored plan steps in dependency order.
func (e *Engine) ExecutionOrder(projectID string) ([]string, error) {
	project, err := e.store.Load(projectID)
	if err != nil {
		return nil, err
	}
	return TopologicalSort(project.Dependencies), nil
}

// Overview renders the project summary through the dialog manager.
func (e *Engine) Overview(projectID string) error {
	project, err := e.store.Load(projectID)
	if err != nil {
		return err
	}
	var goals []string
	for _, id := range sortedGoalIDs(project.Goals) {
		goal := project.Goals[id]
		goals = append(goals, fmt.Sprintf("[%s] %s", goal.Status, goal.Text))
	}
	health := "ok"
	if issues := e.dependencyIssues(project); len(issues) > 0 {
		health = fmt.Sprintf("%d dependency issues", len(issues))
	}
	e.dialog.ProjectOverview(project.Name, goals, health)
	return nil
}

// ProgressReport renders completed versus total goals.
func (e *Engine) ProgressReport(projectID string) error {
	project, err := e.store.Load(projectID)
	if err != nil {
		return err
	}
	completed := 0
	for _, goal := range project.Goals {
		if goal.Status == StatusCompleted {
			completed++
		}
	}
	e.dialog.ProjectProgress(project.Name, completed, len(project.Goals))
	return nil
}

// DependencyReport renders cycle and unresolved-reference problems in the
// stored dependency graph.
func (e *Engine) DependencyReport(projectID string) error {
	project, err := e.store.Load(projectID)
	if err != nil {
		return err
	}
	e.dialog.DependencyIssues(e.dependencyIssues(project))
	return nil
}

// Milestone announces a reached milestone.
func (e *Engine) Milestone(title, description string) {
	e.dialog.Milestones([]string{title + ": " + description})
}

// Health reports storage diagnostics.
func (e *Engine) Health() map[string]interface{} {
	return e.store.Health()
}

// List returns stored project summaries, newest first.
func (e *Engine) List() ([]Summary, error) {
	return e.store.List()
}

func (e *Engine) dependencyIssues(project *Project) []string {
	var issues []string
	for _, cycle := range DetectCycles(project.Dependencies) {
		issues = append(issues, fmt.Sprintf("cycle: %v", cycle))
	}
	for _, missing := range FindUnresolved(project.Dependencies) {
		issues = append(issues, "unresolved dependency: "+missing)
	}
	return issues
}

func (e *Engine) emit(event journal.Event) {
	if e.run != nil {
		e.run.AddEvent(event)
	}
}

func sortedGoalIDs(goals map[string]Goal) []string {
	ids := make([]string, 0, len(goals))
	for id := range goals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
