package dialog

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

type yesPrompter struct{ asked []string }

func (p *yesPrompter) Confirm(description string) bool {
	p.asked = append(p.asked, description)
	return true
}

func TestApprovalGateLifecycle(t *testing.T) {
	gate := NewApprovalGate(nil, nil)

	gate.RequestApproval("run task_1")
	if gate.IsApproved() {
		t.Fatal("gate approved without a decision")
	}
	if gate.Pending() != "run task_1" {
		t.Errorf("pending = %q, want run task_1", gate.Pending())
	}

	gate.Approve()
	if !gate.IsApproved() {
		t.Fatal("Approve did not take effect")
	}

	// Approval is sticky across requests until denied.
	gate.RequestApproval("run task_2")
	if !gate.IsApproved() {
		t.Error("approval should persist across requests")
	}

	gate.Deny()
	if gate.IsApproved() {
		t.Error("Deny did not clear approval")
	}
}

func TestApprovalGatePrompter(t *testing.T) {
	prompter := &yesPrompter{}
	gate := NewApprovalGate(prompter, nil)

	gate.RequestApproval("run task_1")
	if !gate.IsApproved() {
		t.Fatal("prompter said yes, gate should be approved")
	}
	if len(prompter.asked) != 1 {
		t.Errorf("prompter asked %d times, want 1", len(prompter.asked))
	}

	// Once granted, the prompter is not consulted again.
	gate.RequestApproval("run task_2")
	if len(prompter.asked) != 1 {
		t.Errorf("prompter asked %d times after approval, want 1", len(prompter.asked))
	}
}

func TestAutoApproved(t *testing.T) {
	if !AutoApproved().IsApproved() {
		t.Fatal("AutoApproved gate must start approved")
	}
}

func TestExecutionStatusRendersAndRecords(t *testing.T) {
	var buf bytes.Buffer
	store := memory.NewInMemoryStore()
	manager := NewManager(&buf, store, nil, quietLogger())

	manager.ExecutionStatus(map[string]interface{}{"task": "task_1", "success": true})

	out := buf.String()
	if !strings.Contains(out, "task=task_1") {
		t.Errorf("output = %q, want task field", out)
	}
	facts, err := store.Query("execution_notifications", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("recorded facts = %d, want 1", len(facts))
	}
}

func TestPromptApprovalRecords(t *testing.T) {
	var buf bytes.Buffer
	store := memory.NewInMemoryStore()
	manager := NewManager(&buf, store, nil, quietLogger())

	manager.PromptApproval("execute task_1: analyze inputs")

	if !strings.Contains(buf.String(), "Approval requested") {
		t.Errorf("output = %q, want approval text", buf.String())
	}
	facts, err := store.Query("approvals", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("recorded approvals = %d, want 1", len(facts))
	}
}

type staticWorld struct{}

func (staticWorld) DomainFor(string) string          { return "software_services" }
func (staticWorld) Capabilities(string) []string     { return []string{"deploy", "monitor"} }
func (staticWorld) RequiredResources(string) []string { return []string{"compute"} }

func TestBuildContextUsesWorldModel(t *testing.T) {
	store := memory.NewInMemoryStore()
	manager := NewManager(io.Discard, store, staticWorld{}, quietLogger())

	context := manager.BuildContext("deploy the billing service")
	if context["domain"] != "software_services" {
		t.Errorf("domain = %v, want software_services", context["domain"])
	}
	facts, err := store.Query("dialog_context", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("recorded contexts = %d, want 1", len(facts))
	}
}
