package dialog

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// TerminalPrompter asks for approval interactively in the terminal.
type TerminalPrompter struct{}

// Confirm blocks until the operator answers. Any error from the terminal is
// treated as a denial.
func (TerminalPrompter) Confirm(description string) bool {
	model, err := tea.NewProgram(newConfirmModel(description)).Run()
	if err != nil {
		return false
	}
	confirm, ok := model.(confirmModel)
	return ok && confirm.approved
}

type confirmKeys struct {
	Yes  key.Binding
	No   key.Binding
	Quit key.Binding
}

type confirmModel struct {
	description string
	keys        confirmKeys
	approved    bool
	done        bool
}

func newConfirmModel(description string) confirmModel {
	return confirmModel{
		description: description,
		keys: confirmKeys{
			Yes:  key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "approve")),
			No:   key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "deny")),
			Quit: key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "deny and quit")),
		},
	}
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.approved = true
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.No), key.Matches(keyMsg, m.keys.Quit):
		m.approved = false
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	body := wordwrap.String("Approval requested: "+m.description, renderWidth-4)
	hint := lipgloss.NewStyle().Faint(true).Render("y approve / n deny")
	return promptStyle.Render(body+"\n\n"+hint) + "\n"
}
