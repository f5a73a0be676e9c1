package tui

import (
	"codeberg.org/collabkit/engine/internal/collab"
)

// represents the current state of the TUI
type AppState int

const (
	StateWelcome AppState = iota
	StateMonitor
)

// main TUI application model
type Model struct {
	state   AppState
	env     string
	width   int
	height  int
	err     error
	engine  *collab.Engine
	api     *APIClient
	welcome *Welcome
	monitor *MonitorModel
}

// sent when an unrecoverable error occurs
type ErrorMsg struct {
	err error
}

// sent to transition into the session monitor
type EnterMonitorMsg struct {
	sessionID string
}

// sent when the monitored session ends and the monitor should close
type MonitorClosedMsg struct {
	reason string
}

// sent when a session is created through the welcome prompt
type SessionStartedMsg struct {
	session *collab.CollaborationSession
}

// sent when a join request has been submitted
type SessionJoinedMsg struct {
	sessionID string
}

// sent when the coordinator stats endpoint responds
type StatsMsg struct {
	activeSessions int
}

// sent for every collaboration event the engine publishes
type EngineEventMsg struct {
	event collab.Event
}

// sent when the engine's event stream closes
type EventStreamClosedMsg struct{}

// drives periodic presence refreshes in the monitor
type presenceTickMsg struct{}

// represents an available welcome prompt command
type Command struct {
	Name        string
	Description string
	Available   bool
}
