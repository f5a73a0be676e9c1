package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/collabkit/engine/internal/collab"
)

func NewApp(engine *collab.Engine, api *APIClient, env string) *Model {
	return &Model{
		state:   StateWelcome,
		env:     env,
		engine:  engine,
		api:     api,
		welcome: NewWelcome(engine, api, env),
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// only quit from welcome screen, not from the monitor
		if msg.String() == "ctrl+c" && m.state == StateWelcome {
			return m, tea.Quit
		}

		// in the monitor, ctrl+c detaches and returns to welcome
		if msg.String() == "ctrl+c" && m.state == StateMonitor {
			m.closeMonitor("")
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if m.state == StateMonitor {
			m.monitor, _ = m.monitor.Update(msg)
		}

	case ErrorMsg:
		m.err = msg.err
		return m, nil

	case EnterMonitorMsg:
		m.closeMonitor("")
		m.monitor = NewMonitor(m.engine, msg.sessionID)
		m.state = StateMonitor

		cmd := m.monitor.Init()
		if m.width > 0 {
			m.monitor, _ = m.monitor.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
		}
		return m, cmd

	case MonitorClosedMsg:
		m.closeMonitor(msg.reason)
		return m, nil
	}

	switch m.state {
	case StateWelcome:
		return m.updateWelcome(msg)

	case StateMonitor:
		return m.updateMonitor(msg)

	default:
		return m, nil
	}
}

func (m *Model) View() string {
	if m.err != nil {
		return errorView(m.err)
	}

	switch m.state {
	case StateWelcome:
		return m.welcome.View()

	case StateMonitor:
		return m.monitor.View()

	default:
		return "Unknown state"
	}
}

// tears down the monitor's event subscription and returns to the welcome
// screen, surfacing the reason in the prompt status line
func (m *Model) closeMonitor(reason string) {
	if m.monitor != nil {
		m.monitor.Close()
		m.monitor = nil
	}

	m.state = StateWelcome

	if reason != "" {
		m.welcome.status = reason
	}
}

func (m *Model) updateWelcome(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.welcome, cmd = m.welcome.Update(msg)

	return m, cmd
}

func (m *Model) updateMonitor(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.monitor, cmd = m.monitor.Update(msg)

	return m, cmd
}

func errorView(err error) string {
	return fmt.Sprintf("\n  Error: %v\n\n  Press Ctrl+C to exit\n", err)
}
