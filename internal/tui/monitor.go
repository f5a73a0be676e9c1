package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/collabkit/engine/internal/collab"
	"codeberg.org/collabkit/engine/internal/transport"
)

// live view over one collaboration session: the activity feed, the member
// roster with presence, and a small input for broadcasting notes
type MonitorModel struct {
	engine    *collab.Engine
	sessionID string

	input    textinput.Model
	spin     spinner.Model
	viewport viewport.Model

	events <-chan collab.Event
	cancel func()

	feed     []string
	members  []collab.Collaborator
	presence map[string]collab.Presence
	status   string

	width  int
	height int
	ready  bool
}

// returns a monitor attached to the given session. the event subscription is
// opened here, so no event between construction and Init is lost
func NewMonitor(engine *collab.Engine, sessionID string) *MonitorModel {
	ti := textinput.New()
	ti.Placeholder = "broadcast a note to the session..."
	ti.Focus()
	ti.CharLimit = 0
	ti.Width = 80
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorLightGray)
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorWhite)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorYellow)

	events, cancel := engine.Subscribe()

	m := &MonitorModel{
		engine:    engine,
		sessionID: sessionID,
		input:     ti,
		spin:      sp,
		events:    events,
		cancel:    cancel,
		presence:  map[string]collab.Presence{},
	}

	// seed the feed from the retained history so a late attach still shows
	// what already happened
	for _, item := range engine.GetSessionActivity(sessionID, feedCapacity) {
		m.feed = append(m.feed, formatActivity(item))
	}

	m.refreshRoster()

	return m
}

func (m *MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.events), presenceTick())
}

func (m *MonitorModel) Update(msg tea.Msg) (*MonitorModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			note := strings.TrimSpace(m.input.Value())
			if note == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.broadcastNote(note)
			return m, nil

		case "ctrl+l":
			m.feed = nil
			m.status = ""
			m.syncViewport()
			return m, nil
		}

	case EngineEventMsg:
		next := waitForEvent(m.events)

		if msg.event.SessionID != m.sessionID {
			return m, next
		}

		if msg.event.Type == collab.EventSessionEnded {
			reason := "session ended"
			if msg.event.Reason != "" {
				reason = "session ended: " + msg.event.Reason
			}
			return m, func() tea.Msg {
				return MonitorClosedMsg{reason: reason}
			}
		}

		if line := formatEvent(msg.event); line != "" {
			m.appendLine(line)
		}
		m.refreshRoster()
		return m, next

	case EventStreamClosedMsg:
		return m, func() tea.Msg {
			return MonitorClosedMsg{reason: "engine disposed"}
		}

	case presenceTickMsg:
		m.refreshRoster()
		return m, presenceTick()

	case spinner.TickMsg:
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 10

		feedWidth := max(20, msg.Width-rosterWidth-8)
		feedHeight := max(5, msg.Height-10)

		if !m.ready {
			m.viewport = viewport.New(feedWidth, feedHeight)
			m.ready = true
		} else {
			m.viewport.Width = feedWidth
			m.viewport.Height = feedHeight
		}
		m.syncViewport()
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *MonitorModel) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorWhite).
		Render(m.headerText())

	help := lipgloss.NewStyle().
		Foreground(colorGray).
		Render("[Enter: Broadcast] [Ctrl+L: Clear] [Ctrl+C: Detach]")

	headerLine := lipgloss.JoinHorizontal(lipgloss.Left,
		header,
		strings.Repeat(" ", max(0, m.width-lipgloss.Width(header)-lipgloss.Width(help)-2)),
		help,
	)

	var b strings.Builder
	b.WriteString(headerLine)
	b.WriteString("\n\n")

	feedBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorGray).
		Padding(0, 1).
		Render(m.feedView())

	rosterBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorGray).
		Width(rosterWidth).
		Padding(0, 1).
		Render(m.rosterView())

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, feedBox, " ", rosterBox))
	b.WriteString("\n")

	inputBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorGray).
		Width(max(20, m.width-4)).
		Padding(0, 1).
		Render(m.input.View())

	b.WriteString(inputBox)
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(infoStyle.Render(m.status))
	}

	return b.String()
}

// releases the event subscription. safe to call more than once
func (m *MonitorModel) Close() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *MonitorModel) headerText() string {
	name := m.sessionID
	if s, ok := m.engine.GetSession(m.sessionID); ok {
		name = fmt.Sprintf("%s (%s)", s.Name, shortID(s.ID))
	}

	state := m.engine.ConnectionState()
	var conn string
	switch state {
	case transport.StateConnected:
		conn = connectedStyle.Render("connected")
	case transport.StateConnecting:
		conn = connectingStyle.Render(m.spin.View() + "connecting")
	default:
		conn = disconnectedStyle.Render("disconnected")
	}

	return fmt.Sprintf("MONITOR %s | %s", name, conn)
}

func (m *MonitorModel) feedView() string {
	if !m.ready {
		return infoStyle.Render("waiting for terminal size...")
	}

	if len(m.feed) == 0 {
		return infoStyle.Render("no activity yet. changes, joins and invites show up here.")
	}

	return m.viewport.View()
}

func (m *MonitorModel) rosterView() string {
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Render("collaborators"))
	b.WriteString("\n\n")

	if len(m.members) == 0 {
		b.WriteString(infoStyle.Render("nobody here"))
		return b.String()
	}

	for _, member := range m.members {
		marker := offlineStyle.Render("○")
		if member.IsOnline {
			marker = onlineStyle.Render("●")
		}

		name := member.DisplayName
		if name == "" {
			name = member.CollaboratorID
		}

		b.WriteString(fmt.Sprintf("%s %s", marker, truncate(name, rosterWidth-8)))
		b.WriteString(infoStyle.Render(" " + string(member.Role)))
		b.WriteString("\n")

		if p, ok := m.presence[member.CollaboratorID]; ok {
			if len(p.TypingIn) > 0 {
				b.WriteString(typingStyle.Render("  typing in " + truncate(p.TypingIn[0], rosterWidth-14)))
				b.WriteString("\n")
			}
			for _, cur := range p.Cursors {
				b.WriteString(infoStyle.Render(fmt.Sprintf("  %s:%d", truncate(cur.ResourceID, rosterWidth-12), cur.Position)))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// sends the typed note as a resource change against the session's first
// resource
func (m *MonitorModel) broadcastNote(note string) {
	s, ok := m.engine.GetSession(m.sessionID)
	if !ok || len(s.ResourceIDs) == 0 {
		m.status = "session has no resources to annotate"
		return
	}

	err := m.engine.EmitResourceChange(s.ResourceIDs[0], "note", map[string]string{"text": note})
	if err != nil {
		m.status = fmt.Sprintf("broadcast failed: %v", err)
		return
	}

	m.status = ""
}

func (m *MonitorModel) appendLine(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > feedCapacity {
		m.feed = m.feed[len(m.feed)-feedCapacity:]
	}
	m.syncViewport()
}

func (m *MonitorModel) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.feed, "\n"))
	m.viewport.GotoBottom()
}

func (m *MonitorModel) refreshRoster() {
	members := m.engine.GetCollaborators(m.sessionID)
	sort.Slice(members, func(i, j int) bool {
		return members[i].CollaboratorID < members[j].CollaboratorID
	})

	m.members = members
	m.presence = m.engine.GetPresence(m.sessionID)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
