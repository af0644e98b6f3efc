package replay

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	pagerFooterStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8")).
				Padding(0, 1)
)

// Pager presents rendered content in a scrollable fullscreen viewport.
type Pager struct {
	title string
}

// NewPager creates a pager with a title bar.
func NewPager(title, _ string) *Pager {
	return &Pager{title: title}
}

// Run shows static content until the user quits.
func (p *Pager) Run(content string) error {
	model := newPagerModel(p.title, content)
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// RunLive shows content that is re-rendered whenever the watched file
// changes. Used to follow a run that is still writing its journal.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch run file: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch run file: %w", err)
	}

	model := newPagerModel(p.title, content)
	model.live = true
	program := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if updated, err := render(); err == nil {
					program.Send(contentMsg(updated))
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	_, err = program.Run()
	return err
}

// contentMsg replaces the viewport content.
type contentMsg string

type pagerKeys struct {
	Quit key.Binding
}

type pagerModel struct {
	title    string
	content  string
	keys     pagerKeys
	viewport viewport.Model
	ready    bool
	live     bool
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{
		title:   title,
		content: content,
		keys: pagerKeys{
			Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		},
	}
}

func (m *pagerModel) Init() tea.Cmd { return nil }

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}

	case contentMsg:
		atBottom := m.viewport.AtBottom()
		m.content = string(msg)
		m.viewport.SetContent(m.content)
		if atBottom {
			m.viewport.GotoBottom()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "loading..."
	}
	header := pagerTitleStyle.Render(m.title)
	footer := pagerFooterStyle.Render(fmt.Sprintf("%3.0f%%  q to quit", m.viewport.ScrollPercent()*100))
	return strings.Join([]string{header, "", m.viewport.View(), footer}, "\n")
}
