package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/collabkit/engine/internal/collab"
)

// welcome screen model
type Welcome struct {
	env      string
	engine   *collab.Engine
	api      *APIClient
	input    string
	status   string
	commands []Command
}

// returns a new welcome screen
func NewWelcome(engine *collab.Engine, api *APIClient, env string) *Welcome {
	commands := []Command{
		{Name: "create <name> <resource...>", Description: "start a new collaboration session", Available: true},
		{Name: "join <session-id>", Description: "join an existing session", Available: true},
		{Name: "monitor", Description: "watch the current session", Available: true},
		{Name: "stats", Description: "show coordinator occupancy", Available: true},
		{Name: "quit", Description: "exit collabkit", Available: true},
	}

	return &Welcome{
		env:      env,
		engine:   engine,
		api:      api,
		commands: commands,
	}
}

func (m *Welcome) Update(msg tea.Msg) (*Welcome, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			return m, m.executeCommand()
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		default:
			if len(msg.String()) == 1 {
				m.input += msg.String()
			}
		}

	case SessionStartedMsg:
		m.input = ""
		m.status = fmt.Sprintf("session %s created", msg.session.ID)
		return m, enterMonitor(msg.session.ID)

	case SessionJoinedMsg:
		m.input = ""
		m.status = fmt.Sprintf("joined session %s", msg.sessionID)
		return m, enterMonitor(msg.sessionID)

	case StatsMsg:
		m.input = ""
		m.status = fmt.Sprintf("active sessions: %d", msg.activeSessions)
		return m, nil

	case statusMsg:
		m.input = ""
		m.status = string(msg)
		return m, nil
	}

	return m, nil
}

func (m *Welcome) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("collaborate on anything, live"))
	b.WriteString("\n\n")

	modeText := fmt.Sprintf("mode: %s | connection: %s", strings.ToUpper(m.env), m.engine.ConnectionState())
	b.WriteString(infoStyle.Render(modeText))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Render("commands:"))
	b.WriteString("\n\n")

	for _, cmd := range m.commands {
		if !cmd.Available {
			continue
		}
		line := fmt.Sprintf("  %s %s",
			commandStyle.Render(cmd.Name),
			commandDescStyle.Render("- "+cmd.Description),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")

	prompt := promptStyle.Render("> ")
	input := inputStyle.Render(m.input + "_")
	b.WriteString(prompt + input)
	b.WriteString("\n\n")

	if m.status != "" {
		b.WriteString(infoStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("type a command and press enter. press ctrl+c to quit."))

	return b.String()
}

func (m *Welcome) executeCommand() tea.Cmd {
	fields := strings.Fields(m.input)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "quit":
		return tea.Quit

	case "create":
		if len(fields) < 3 {
			m.input = ""
			m.status = "usage: create <name> <resource...>"
			return nil
		}
		return createSession(m.engine, fields[1], fields[2:])

	case "join":
		if len(fields) != 2 {
			m.input = ""
			m.status = "usage: join <session-id>"
			return nil
		}
		return joinSession(m.engine, m.api, fields[1])

	case "monitor":
		current := m.engine.CurrentSessionID()
		if current == "" {
			m.input = ""
			m.status = "no active session. create or join one first."
			return nil
		}
		m.input = ""
		return enterMonitor(current)

	case "stats":
		return fetchStats(m.api)

	default:
		return func() tea.Msg {
			return statusMsg(fmt.Sprintf("unknown command: %s", fields[0]))
		}
	}
}

// carries a one-line result for the welcome status area
type statusMsg string
