// Package dialog renders run updates for a human operator and records every
// exchange so later cycles can recall what was communicated.
package dialog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
)

const renderWidth = 80

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	promptStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// ContextSource supplies world knowledge for conversational context.
type ContextSource interface {
	DomainFor(message string) string
	Capabilities(domain string) []string
	RequiredResources(message string) []string
}

// Manager writes operator-facing updates and persists them to memory.
type Manager struct {
	out   io.Writer
	store memory.Store
	world ContextSource
	log   *logging.Logger
}

// NewManager creates a dialog manager. world may be nil when no world model
// is attached.
func NewManager(out io.Writer, store memory.Store, world ContextSource, log *logging.Logger) *Manager {
	return &Manager{out: out, store: store, world: world, log: log.WithComponent("dialog")}
}

// BuildContext derives conversational context for a message from the world
// model and records it.
func (m *Manager) BuildContext(userMessage string) map[string]interface{} {
	context := map[string]interface{}{}
	if m.world != nil {
		domain := m.world.DomainFor(userMessage)
		context["domain"] = domain
		context["capabilities"] = m.world.Capabilities(domain)
		context["resources"] = m.world.RequiredResources(userMessage)
	}
	m.record("dialog_context", context)
	return context
}

// RecordTurn persists one user/agent exchange.
func (m *Manager) RecordTurn(userMessage, response string) {
	m.record("dialog_turns", map[string]interface{}{
		"user_message": userMessage,
		"response":     response,
		"context":      m.BuildContext(userMessage),
	})
}

// ExecutionStatus renders a one-line execution update and records it.
func (m *Manager) ExecutionStatus(status map[string]interface{}) {
	var parts []string
	for _, key := range sortedKeys(status) {
		parts = append(parts, fmt.Sprintf("%s=%v", key, status[key]))
	}
	line := labelStyle.Render("status") + " " + strings.Join(parts, " ")
	if success, ok := status["success"].(bool); ok {
		if success {
			line = okStyle.Render("ok") + " " + strings.Join(parts, " ")
		} else {
			line = failStyle.Render("fail") + " " + strings.Join(parts, " ")
		}
	}
	fmt.Fprintln(m.out, line)
	m.record("execution_notifications", map[string]interface{}{"status": status})
}

// PromptApproval renders an approval request and records that it was asked.
func (m *Manager) PromptApproval(description string) {
	body := wordwrap.String("Approval requested: "+description, renderWidth-4)
	fmt.Fprintln(m.out, promptStyle.Render(body))
	m.record("approvals", map[string]interface{}{
		"type":        "execution_approval",
		"description": description,
	})
}

// ProjectOverview renders a project headline with its goal and health
// summary.
func (m *Manager) ProjectOverview(name string, goals []string, health string) {
	fmt.Fprintln(m.out, titleStyle.Render(name))
	for _, goal := range goals {
		fmt.Fprintln(m.out, sectionStyle.Render("- "+wordwrap.String(goal, renderWidth-4)))
	}
	fmt.Fprintln(m.out, labelStyle.Render("health")+" "+health)
	m.record("project_reports", map[string]interface{}{
		"project": name,
		"goals":   goals,
		"health":  health,
	})
}

// ProjectProgress renders completed versus total steps.
func (m *Manager) ProjectProgress(name string, completed, total int) {
	fmt.Fprintf(m.out, "%s %d/%d steps complete\n", titleStyle.Render(name), completed, total)
	m.record("project_reports", map[string]interface{}{
		"project":   name,
		"completed": completed,
		"total":     total,
	})
}

// DependencyIssues renders blocking dependency problems.
func (m *Manager) DependencyIssues(issues []string) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(m.out, warnStyle.Render("dependency issues"))
	for _, issue := range issues {
		fmt.Fprintln(m.out, sectionStyle.Render("- "+wordwrap.String(issue, renderWidth-4)))
	}
	m.record("project_reports", map[string]interface{}{"dependency_issues": issues})
}

// Milestones renders reached milestones.
func (m *Manager) Milestones(milestones []string) {
	if len(milestones) == 0 {
		return
	}
	fmt.Fprintln(m.out, titleStyle.Render("milestones"))
	for _, milestone := range milestones {
		fmt.Fprintln(m.out, sectionStyle.Render("- "+milestone))
	}
	m.record("project_reports", map[string]interface{}{"milestones": milestones})
}

func (m *Manager) record(namespace string, value map[string]interface{}) {
	if m.store == nil {
		return
	}
	if _, err := m.store.StoreFact(namespace, "", value, map[string]interface{}{"source": "dialog_manager"}); err != nil {
		m.log.Warn("failed to record dialog event", map[string]interface{}{"namespace": namespace, "error": err.Error()})
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
