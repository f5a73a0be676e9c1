package collab

import (
	"sync"
	"time"
)

// Tracker derives online/offline and cursor/typing activity per collaborator
// per session from the event stream. Typing flags expire on their own after
// the configured timeout when no refresh arrives, guarding against missed
// typing_indicator(false) messages.
type Tracker struct {
	mu            sync.Mutex
	typingTimeout time.Duration
	sessions      map[string]map[string]*presenceState
	closed        bool
}

// holds the derived state for one collaborator in one session
type presenceState struct {
	online  bool
	cursors map[string]*CursorPosition
	typing  map[string]*time.Timer // resource id -> expiry timer
}

// describes the last known cursor of a collaborator in a resource
type CursorPosition struct {
	ResourceID string
	Position   int
	Selection  string
	UpdatedAt  time.Time
}

// read-only view served by snapshots
type Presence struct {
	CollaboratorID string
	Online         bool
	Cursors        []CursorPosition
	TypingIn       []string
}

func NewTracker(typingTimeout time.Duration) *Tracker {
	return &Tracker{
		typingTimeout: typingTimeout,
		sessions:      make(map[string]map[string]*presenceState),
	}
}

// marks a collaborator online or offline; going offline clears cursor and
// typing state
func (t *Tracker) SetOnline(sessionID, collaboratorID string, online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	state := t.state(sessionID, collaboratorID)
	state.online = online

	if !online {
		state.cursors = make(map[string]*CursorPosition)
		t.stopTypingLocked(state)
	}
}

// returns whether the collaborator is currently online in the session
func (t *Tracker) IsOnline(sessionID, collaboratorID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return false
	}

	state, ok := session[collaboratorID]

	return ok && state.online
}

// records the last known cursor position; any event from a collaborator also
// implies they are online
func (t *Tracker) UpdateCursor(sessionID, collaboratorID, resourceID string, position int, selection string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	state := t.state(sessionID, collaboratorID)
	state.online = true
	state.cursors[resourceID] = &CursorPosition{
		ResourceID: resourceID,
		Position:   position,
		Selection:  selection,
		UpdatedAt:  time.Now(),
	}
}

// sets or clears the typing flag; a set flag auto-expires after the typing
// timeout unless refreshed
func (t *Tracker) SetTyping(sessionID, collaboratorID, resourceID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	state := t.state(sessionID, collaboratorID)
	state.online = true

	if timer, ok := state.typing[resourceID]; ok {
		timer.Stop()
		delete(state.typing, resourceID)
	}

	if !isTyping {
		return
	}

	state.typing[resourceID] = time.AfterFunc(t.typingTimeout, func() {
		t.expireTyping(sessionID, collaboratorID, resourceID)
	})
}

// returns whether the collaborator is typing in the resource
func (t *Tracker) IsTyping(sessionID, collaboratorID, resourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return false
	}

	state, ok := session[collaboratorID]
	if !ok {
		return false
	}

	_, typing := state.typing[resourceID]

	return typing
}

// returns a read-only snapshot of all tracked collaborators in a session
func (t *Tracker) Snapshot(sessionID string) map[string]Presence {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]Presence)

	session, ok := t.sessions[sessionID]
	if !ok {
		return snapshot
	}

	for collaboratorID, state := range session {
		p := Presence{
			CollaboratorID: collaboratorID,
			Online:         state.online,
		}

		for _, cursor := range state.cursors {
			p.Cursors = append(p.Cursors, *cursor)
		}

		for resourceID := range state.typing {
			p.TypingIn = append(p.TypingIn, resourceID)
		}

		snapshot[collaboratorID] = p
	}

	return snapshot
}

// discards all state for an ended session
func (t *Tracker) DropSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return
	}

	for _, state := range session {
		t.stopTypingLocked(state)
	}

	delete(t.sessions, sessionID)
}

// stops all timers; the tracker accepts no further updates
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	for _, session := range t.sessions {
		for _, state := range session {
			t.stopTypingLocked(state)
		}
	}
}

func (t *Tracker) expireTyping(sessionID, collaboratorID, resourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return
	}

	state, ok := session[collaboratorID]
	if !ok {
		return
	}

	delete(state.typing, resourceID)
}

// must be called with the lock held
func (t *Tracker) state(sessionID, collaboratorID string) *presenceState {
	session, ok := t.sessions[sessionID]
	if !ok {
		session = make(map[string]*presenceState)
		t.sessions[sessionID] = session
	}

	state, ok := session[collaboratorID]
	if !ok {
		state = &presenceState{
			cursors: make(map[string]*CursorPosition),
			typing:  make(map[string]*time.Timer),
		}
		session[collaboratorID] = state
	}

	return state
}

// must be called with the lock held
func (t *Tracker) stopTypingLocked(state *presenceState) {
	for resourceID, timer := range state.typing {
		timer.Stop()
		delete(state.typing, resourceID)
	}
}
