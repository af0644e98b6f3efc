package dialog

import "sync"

// Prompter obtains a yes/no decision for a described action.
type Prompter interface {
	Confirm(description string) bool
}

// ApprovalGate tracks whether real execution has been approved. Approval is
// sticky: once granted it covers subsequent requests until denied.
type ApprovalGate struct {
	mu       sync.Mutex
	pending  string
	approved bool
	prompter Prompter
	manager  *Manager
}

// NewApprovalGate creates a gate. prompter may be nil, in which case
// approval must be granted programmatically via Approve. manager may be nil.
func NewApprovalGate(prompter Prompter, manager *Manager) *ApprovalGate {
	return &ApprovalGate{prompter: prompter, manager: manager}
}

// AutoApproved returns a gate that has already been granted approval. Used
// for unattended runs where the operator opted in up front.
func AutoApproved() *ApprovalGate {
	return &ApprovalGate{approved: true}
}

// RequestApproval records a pending request and, when a prompter is wired,
// asks for a decision immediately.
func (g *ApprovalGate) RequestApproval(description string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = description
	if g.manager != nil {
		g.manager.PromptApproval(description)
	}
	if !g.approved && g.prompter != nil {
		g.approved = g.prompter.Confirm(description)
		if g.approved {
			g.pending = ""
		}
	}
}

// Approve grants the pending request.
func (g *ApprovalGate) Approve() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved = true
	g.pending = ""
}

// Deny clears approval and the pending request.
func (g *ApprovalGate) Deny() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved = false
	g.pending = ""
}

// IsApproved reports whether the latest request was approved.
func (g *ApprovalGate) IsApproved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approved
}

// Pending returns the description awaiting a decision, if any.
func (g *ApprovalGate) Pending() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
