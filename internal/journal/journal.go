// Package journal records the forensic event stream of a run: planning
// decisions, policy verdicts, simulation predictions, node executions, and
// autonomy cycles. All analysis and replay tooling reads from here.
package journal

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Run status constants.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event types for the run journal.
const (
	// Planning events
	EventPlanStart    = "plan_start"
	EventPlanComplete = "plan_complete"
	EventPlanRefined  = "plan_refined"
	EventToolGap      = "tool_gap"

	// Policy events
	EventPolicyCheck     = "policy_check"
	EventPolicyRewrite   = "policy_rewrite"
	EventPolicyViolation = "policy_violation"

	// Simulation events
	EventSimulationNode  = "simulation_node"
	EventSimulationGraph = "simulation_graph"

	// Execution events
	EventNodeStart    = "node_start"
	EventNodeEnd      = "node_end"
	EventNodeSkipped  = "node_skipped"
	EventApproval     = "approval"
	EventCheckin      = "checkin"
	EventTraceSummary = "trace_summary"

	// Autonomy events
	EventCycleStart = "cycle_start"
	EventCycleEnd   = "cycle_end"
	EventReflection = "reflection"

	// Project governance events
	EventGoalAdded      = "goal_added"
	EventPlanRegistered = "plan_registered"
	EventStepCompleted  = "step_completed"
)

// Run represents one orchestration run: a goal worked by the autonomy
// loop, or a single plan/simulate/execute invocation.
type Run struct {
	ID        string                 `json:"id"`
	Goal      string                 `json:"goal"`
	Mode      string                 `json:"mode"`
	State     map[string]interface{} `json:"state"`
	Artifacts map[string]interface{} `json:"artifacts"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Events    []Event                `json:"events"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`

	// Internal state (not persisted)
	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the run journal.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Correlation - links related events (plan -> policy -> execution)
	CorrelationID string `json:"corr_id,omitempty"`
	ParentSeqID   uint64 `json:"parent,omitempty"`

	// Context - where in the run this happened
	Component string `json:"component,omitempty"`
	PlanID    string `json:"plan_id,omitempty"`
	Version   int    `json:"version,omitempty"`
	Cycle     int    `json:"cycle,omitempty"`
	Node      string `json:"node,omitempty"`
	Tool      string `json:"tool,omitempty"`

	// Content
	Content string                 `json:"content,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`

	// Outcome
	Success    *bool  `json:"success,omitempty"` // nil = in progress
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta carries structured detail for specific event families.
type EventMeta struct {
	// Policy
	Check    string   `json:"check,omitempty"`
	Allowed  bool     `json:"allowed,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
	Rewrites []string `json:"rewrites,omitempty"`

	// Simulation
	FailureLikelihood float64  `json:"failure_likelihood,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	Complexity        string   `json:"complexity,omitempty"`
	RelativeSpeed     float64  `json:"relative_speed,omitempty"`

	// Execution
	AttemptedRecovery bool     `json:"attempted_recovery,omitempty"`
	Produced          []string `json:"produced,omitempty"`

	// Reflection
	Issues     []string `json:"issues,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Adjustment string   `json:"adjustment,omitempty"`

	// Governance
	Project string `json:"project,omitempty"`
	Goal    string `json:"goal,omitempty"`
}

// nextSeqID returns the next sequence ID for this run.
func (r *Run) nextSeqID() uint64 {
	return atomic.AddUint64(&r.seqCounter, 1)
}

// CurrentSeqID returns the last used sequence ID without incrementing.
func (r *Run) CurrentSeqID() uint64 {
	return atomic.LoadUint64(&r.seqCounter)
}

// AddEvent appends an event with automatic sequencing. Returns the
// assigned sequence ID.
func (r *Run) AddEvent(event Event) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.SeqID = r.nextSeqID()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.Events = append(r.Events, event)
	r.UpdatedAt = time.Now()
	return event.SeqID
}

// StartCorrelation generates a new correlation ID for linking related events.
func (r *Run) StartCorrelation() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Store is the interface for run persistence.
type Store interface {
	Save(run *Run) error
	Load(id string) (*Run, error)
}

// Manager manages run lifecycles against a store.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a new run manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create opens a new run for the given goal.
func (m *Manager) Create(goal, mode string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	run := &Run{
		ID:        generateID(),
		Goal:      goal,
		Mode:      mode,
		State:     make(map[string]interface{}),
		Artifacts: make(map[string]interface{}),
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Get retrieves a run by ID.
func (m *Manager) Get(id string) (*Run, error) {
	return m.store.Load(id)
}

// Update saves changes to a run.
func (m *Manager) Update(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run.UpdatedAt = time.Now()
	return m.store.Save(run)
}

// generateID creates a unique run ID.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
