package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/collabkit/engine/internal/collab"
)

// optimistically creates a session and reports the local copy. rejection by
// the coordinator surfaces later as a sessionEnded event
func createSession(engine *collab.Engine, name string, resourceIDs []string) tea.Cmd {
	return func() tea.Msg {
		session, err := engine.CreateSession(name, resourceIDs, collab.SessionDocumentEditing, "", nil)
		if err != nil {
			return statusMsg("create failed: " + err.Error())
		}

		return SessionStartedMsg{session: session}
	}
}

// joins a session, resolving ids this client has never seen through the
// coordinator's directory lookup
func joinSession(engine *collab.Engine, api *APIClient, sessionID string) tea.Cmd {
	return func() tea.Msg {
		err := engine.JoinSession(sessionID, "")
		if errors.Is(err, collab.ErrSessionNotFound) {
			ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
			defer cancel()

			view, lookupErr := api.GetSession(ctx, sessionID)
			if lookupErr != nil {
				return statusMsg("join failed: " + lookupErr.Error())
			}

			engine.TrackSession(view.Session)
			err = engine.JoinSession(sessionID, "")
		}

		if err != nil {
			return statusMsg("join failed: " + err.Error())
		}

		return SessionJoinedMsg{sessionID: sessionID}
	}
}

func enterMonitor(sessionID string) tea.Cmd {
	return func() tea.Msg {
		return EnterMonitorMsg{sessionID: sessionID}
	}
}

func fetchStats(api *APIClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()

		stats, err := api.GetStats(ctx)
		if err != nil {
			return statusMsg("stats failed: " + err.Error())
		}

		return StatsMsg{activeSessions: stats.ActiveSessions}
	}
}

// blocks on the engine's event stream and reports one event per invocation.
// the monitor re-arms this after every delivery
func waitForEvent(events <-chan collab.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return EventStreamClosedMsg{}
		}

		return EngineEventMsg{event: event}
	}
}

func presenceTick() tea.Cmd {
	return tea.Tick(presenceTickInterval, func(time.Time) tea.Msg {
		return presenceTickMsg{}
	})
}
