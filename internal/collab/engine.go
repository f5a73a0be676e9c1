package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
	"codeberg.org/collabkit/engine/internal/transport"
)

// Connector is the transport dependency of the engine. transport.Connector
// is the production implementation; tests substitute a fake.
type Connector interface {
	Connect(ctx context.Context) error
	Send(msg *protocol.Message) error
	Messages() <-chan *protocol.Message
	States() <-chan transport.State
	State() transport.State
	Disconnect() error
}

// rate budget for ephemeral cursor/typing emissions; events over budget are
// dropped, never queued
const (
	cursorEventsPerSecond = 20
	cursorEventBurst      = 10
	typingEventsPerSecond = 5
	typingEventBurst      = 5
)

// capacity of each subscriber's event channel
const subscriberBufferSize = 64

// Config holds engine settings.
type Config struct {
	CollaboratorID string
	DisplayName    string

	// how long a typing flag stays set without a refresh
	TypingTimeout time.Duration

	// maximum retained activity items per session
	ActivityLogCap int
}

// Engine multiplexes every session of this process over one connection and
// fans inbound events out to subscribers. All inbound handling runs on a
// single goroutine, so events for a session reach subscribers in the order
// the connection delivered them.
type Engine struct {
	cfg       Config
	connector Connector

	registry *Registry
	presence *Tracker
	activity *Log

	handlers map[string]func(*protocol.Message)

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int

	// serializes publishes from the run loop and local API calls
	pubMu sync.Mutex

	cursorLimiter *rate.Limiter
	typingLimiter *rate.Limiter

	closed   atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// constructs an engine around an explicit connector; nothing runs until
// Initialize
func New(cfg Config, connector Connector) *Engine {
	if cfg.TypingTimeout == 0 {
		cfg.TypingTimeout = 5 * time.Second
	}

	if cfg.ActivityLogCap == 0 {
		cfg.ActivityLogCap = 50
	}

	e := &Engine{
		cfg:           cfg,
		connector:     connector,
		registry:      NewRegistry(cfg.CollaboratorID, cfg.DisplayName),
		presence:      NewTracker(cfg.TypingTimeout),
		activity:      NewLog(cfg.ActivityLogCap),
		subscribers:   make(map[int]chan Event),
		cursorLimiter: rate.NewLimiter(cursorEventsPerSecond, cursorEventBurst),
		typingLimiter: rate.NewLimiter(typingEventsPerSecond, typingEventBurst),
	}

	// dispatch table keyed by wire type; unknown types are logged and
	// dropped so a newer server never crashes an older client
	e.handlers = map[string]func(*protocol.Message){
		protocol.TypeSessionCreated:  e.handleSessionCreated,
		protocol.TypeSessionRejected: e.handleSessionRejected,
		protocol.TypeUserJoined:      e.handleUserJoined,
		protocol.TypeUserLeft:        e.handleUserLeft,
		protocol.TypeFileChange:      e.handleFileChange,
		protocol.TypeCursorUpdate:    e.handleCursorUpdate,
		protocol.TypeTypingIndicator: e.handleTypingIndicator,
		protocol.TypeUserInvited:     e.handleUserInvited,
		protocol.TypeSessionEnded:    e.handleSessionEnded,
	}

	return e
}

// connects to the collaboration server and starts the inbound run loop and
// the connection-state watcher
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.connector.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect collaboration engine: %w", err)
	}

	e.wg.Add(2)
	go e.run()
	go e.watchStates()

	logger.Info("collaboration engine initialized",
		"collaborator_id", e.cfg.CollaboratorID,
	)

	return nil
}

// the single-threaded inbound handling path; the only goroutine that reacts
// to server messages
func (e *Engine) run() {
	defer e.wg.Done()

	for msg := range e.connector.Messages() {
		e.dispatch(msg)
	}
}

// routes one inbound message through the dispatch table
func (e *Engine) dispatch(msg *protocol.Message) {
	handler, ok := e.handlers[msg.Type]
	if !ok {
		logger.Warn("unknown message type, dropping",
			"message_type", msg.Type,
			"session_id", msg.SessionID,
		)

		return
	}

	// any server traffic for a pending session means it was accepted
	if msg.SessionID != "" {
		e.registry.Confirm(msg.SessionID)
	}

	handler(msg)
}

// watches the connection-state signal and reconciles session membership
// after a restore
func (e *Engine) watchStates() {
	defer e.wg.Done()

	dropped := false

	for state := range e.connector.States() {
		switch state {
		case transport.StateDisconnected:
			dropped = true

		case transport.StateConnected:
			if dropped {
				e.reconcile()
			}

			dropped = false

		case transport.StateConnecting:
			// transient, nothing to reconcile yet
		}
	}
}

// re-announces membership for every locally-active session after a
// reconnect so the server re-admits this connection. Local membership is
// never cleared just because the socket dropped.
func (e *Engine) reconcile() {
	sessionIDs := e.registry.MemberSessions()

	for _, sessionID := range sessionIDs {
		e.sendMessage(protocol.TypeUserJoined, sessionID, protocol.UserJoinedPayload{
			UserID:      e.cfg.CollaboratorID,
			DisplayName: e.cfg.DisplayName,
		})
	}

	if len(sessionIDs) > 0 {
		logger.Info("re-announced session membership after reconnect",
			"session_count", len(sessionIDs),
		)
	}
}

// --- public API ---

// creates a session with this collaborator as owner, announces it to the
// server, and makes it the current session
func (e *Engine) CreateSession(name string, resourceIDs []string, typ SessionType, description string, settings map[string]string) (*CollaborationSession, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	session, err := e.registry.Create(name, resourceIDs, typ, description, settings)
	if err != nil {
		return nil, err
	}

	e.sendMessage(protocol.TypeSessionCreated, session.ID, protocol.SessionCreatedPayload{
		Session: ToWire(session),
	})

	e.presence.SetOnline(session.ID, e.cfg.CollaboratorID, true)

	e.record(session.ID, e.cfg.CollaboratorID, ActionSessionCreated, map[string]string{
		"name": session.Name,
		"type": string(session.Type),
	})

	e.publish(Event{
		Type:      EventSessionCreated,
		SessionID: session.ID,
		ActorID:   e.cfg.CollaboratorID,
		Timestamp: time.Now(),
		Session:   session,
	})

	return session, nil
}

// TrackSession records session metadata obtained out of band, such as a
// directory lookup over REST, so JoinSession can target it.
func (e *Engine) TrackSession(ws protocol.WireSession) {
	e.registry.Upsert(ws)
}

// joins a locally-known active session. Sessions not known locally must
// first be obtained through a directory lookup, see TrackSession.
func (e *Engine) JoinSession(sessionID, accessCode string) error {
	_ = accessCode // reserved for directory-level access control

	if e.closed.Load() {
		return ErrEngineClosed
	}

	session, err := e.registry.Join(sessionID)
	if err != nil {
		return err
	}

	e.sendMessage(protocol.TypeUserJoined, sessionID, protocol.UserJoinedPayload{
		UserID:      e.cfg.CollaboratorID,
		DisplayName: e.cfg.DisplayName,
		Role:        string(session.Members[e.cfg.CollaboratorID].Role),
	})

	e.presence.SetOnline(sessionID, e.cfg.CollaboratorID, true)

	e.record(sessionID, e.cfg.CollaboratorID, ActionUserJoined, nil)

	e.publish(Event{
		Type:      EventUserJoined,
		SessionID: sessionID,
		ActorID:   e.cfg.CollaboratorID,
		Timestamp: time.Now(),
		Member: &MemberChange{
			CollaboratorID: e.cfg.CollaboratorID,
			DisplayName:    e.cfg.DisplayName,
			Role:           session.Members[e.cfg.CollaboratorID].Role,
		},
	})

	return nil
}

// leaves the current session. Idempotent: calling it without a current
// session does nothing and never errors.
func (e *Engine) LeaveSession() {
	sessionID, left := e.registry.Leave()
	if !left {
		return
	}

	e.sendMessage(protocol.TypeUserLeft, sessionID, protocol.UserLeftPayload{
		UserID:      e.cfg.CollaboratorID,
		DisplayName: e.cfg.DisplayName,
	})

	e.presence.SetOnline(sessionID, e.cfg.CollaboratorID, false)

	e.record(sessionID, e.cfg.CollaboratorID, ActionUserLeft, nil)

	e.publish(Event{
		Type:      EventUserLeft,
		SessionID: sessionID,
		ActorID:   e.cfg.CollaboratorID,
		Timestamp: time.Now(),
		Member: &MemberChange{
			CollaboratorID: e.cfg.CollaboratorID,
			DisplayName:    e.cfg.DisplayName,
		},
	})
}

// announces a resource change in the current session
func (e *Engine) EmitResourceChange(resourceID, changeType string, changeData any) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	sessionID := e.registry.Current()
	if sessionID == "" {
		logger.Debug("resource change dropped, no active session",
			"resource_id", resourceID,
		)

		return ErrNoActiveSession
	}

	var raw json.RawMessage

	if changeData != nil {
		bytes, err := json.Marshal(changeData)
		if err != nil {
			return fmt.Errorf("failed to marshal change data: %w", err)
		}

		raw = bytes
	}

	e.sendMessage(protocol.TypeFileChange, sessionID, protocol.FileChangePayload{
		FileID:     resourceID,
		ChangeType: changeType,
		ChangeData: raw,
	})

	e.record(sessionID, e.cfg.CollaboratorID, ActionResourceChanged, map[string]string{
		"resource_id": resourceID,
		"change_type": changeType,
	})

	e.publish(Event{
		Type:      EventResourceChanged,
		SessionID: sessionID,
		ActorID:   e.cfg.CollaboratorID,
		Timestamp: time.Now(),
		Resource: &ResourceChange{
			ResourceID: resourceID,
			ChangeType: changeType,
			ChangeData: raw,
		},
	})

	return nil
}

// announces this collaborator's cursor. Fire-and-forget: throttled, not
// persisted to the activity log, and never re-sent after a reconnect.
func (e *Engine) EmitCursorUpdate(resourceID string, position int, selection string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	sessionID := e.registry.Current()
	if sessionID == "" {
		logger.Debug("cursor update dropped, no active session",
			"resource_id", resourceID,
		)

		return ErrNoActiveSession
	}

	if !e.cursorLimiter.Allow() {
		logger.Debug("cursor update dropped, over rate budget",
			"session_id", sessionID,
		)

		return nil
	}

	e.sendMessage(protocol.TypeCursorUpdate, sessionID, protocol.CursorUpdatePayload{
		FileID:    resourceID,
		Position:  position,
		Selection: selection,
	})

	e.presence.UpdateCursor(sessionID, e.cfg.CollaboratorID, resourceID, position, selection)

	return nil
}

// announces this collaborator's typing state. Fire-and-forget like cursor
// updates.
func (e *Engine) EmitTypingIndicator(resourceID string, isTyping bool) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	sessionID := e.registry.Current()
	if sessionID == "" {
		logger.Debug("typing indicator dropped, no active session",
			"resource_id", resourceID,
		)

		return ErrNoActiveSession
	}

	if !e.typingLimiter.Allow() {
		return nil
	}

	e.sendMessage(protocol.TypeTypingIndicator, sessionID, protocol.TypingIndicatorPayload{
		FileID:   resourceID,
		IsTyping: isTyping,
	})

	e.presence.SetTyping(sessionID, e.cfg.CollaboratorID, resourceID, isTyping)

	return nil
}

// invites someone to a known active session by email
func (e *Engine) InviteCollaborator(sessionID, email, message string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	session, ok := e.registry.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	if !session.IsActive {
		return ErrSessionInactive
	}

	e.sendMessage(protocol.TypeUserInvited, sessionID, protocol.UserInvitedPayload{
		InviteeEmail: email,
		InviterID:    e.cfg.CollaboratorID,
		Message:      message,
	})

	e.record(sessionID, e.cfg.CollaboratorID, ActionUserInvited, map[string]string{
		"invitee_email": email,
	})

	e.publish(Event{
		Type:      EventUserInvited,
		SessionID: sessionID,
		ActorID:   e.cfg.CollaboratorID,
		Timestamp: time.Now(),
		Invite: &Invite{
			Email:     email,
			InviterID: e.cfg.CollaboratorID,
			Message:   message,
		},
	})

	return nil
}

// returns a membership snapshot of the current session with presence-derived
// online flags
func (e *Engine) GetCurrentCollaborators() []Collaborator {
	sessionID := e.registry.Current()
	if sessionID == "" {
		return nil
	}

	return e.GetCollaborators(sessionID)
}

// returns a membership snapshot of a session with presence-derived online
// flags
func (e *Engine) GetCollaborators(sessionID string) []Collaborator {
	session, ok := e.registry.Get(sessionID)
	if !ok {
		return nil
	}

	collaborators := make([]Collaborator, 0, len(session.Members))

	for _, member := range session.Members {
		m := *member
		m.IsOnline = e.presence.IsOnline(sessionID, m.CollaboratorID)
		collaborators = append(collaborators, m)
	}

	return collaborators
}

// returns a read-only snapshot of a session
func (e *Engine) GetSession(sessionID string) (*CollaborationSession, bool) {
	return e.registry.Get(sessionID)
}

// returns the current session id, or empty when not in a session
func (e *Engine) CurrentSessionID() string {
	return e.registry.Current()
}

// returns up to limit most recent non-ephemeral activity items for a session
func (e *Engine) GetSessionActivity(sessionID string, limit int) []ActivityItem {
	return e.activity.Recent(sessionID, limit)
}

// returns a read-only snapshot of derived presence for a session
func (e *Engine) GetPresence(sessionID string) map[string]Presence {
	return e.presence.Snapshot(sessionID)
}

// returns the connection state for UI surfaces ("reconnecting..." banners)
func (e *Engine) ConnectionState() transport.State {
	return e.connector.State()
}

// registers a subscriber; the returned cancel function must be called to
// release it. Events arrive in connection order per session. After Dispose
// the returned channel is already closed.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.closed.Load() {
		ch := make(chan Event)
		close(ch)

		return ch, func() {}
	}

	id := e.nextSubID
	e.nextSubID++

	ch := make(chan Event, subscriberBufferSize)
	e.subscribers[id] = ch

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()

		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

// shuts the engine down: leaves the current session, closes the connection
// with a bounded flush, and releases all subscribers
func (e *Engine) Dispose(ctx context.Context) error {
	var err error

	e.stopOnce.Do(func() {
		e.closed.Store(true)

		e.LeaveSession()

		err = e.connector.Disconnect()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		e.presence.Close()

		e.subMu.Lock()
		for id, ch := range e.subscribers {
			delete(e.subscribers, id)
			close(ch)
		}
		e.subMu.Unlock()

		logger.Info("collaboration engine disposed",
			"collaborator_id", e.cfg.CollaboratorID,
		)
	})

	return err
}

// --- inbound handlers (run-loop goroutine only) ---

func (e *Engine) handleSessionCreated(msg *protocol.Message) {
	var payload protocol.SessionCreatedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed session_created", "error", err)
		return
	}

	session := e.registry.Upsert(payload.Session)

	e.presence.SetOnline(session.ID, session.CreatorID, true)

	e.record(session.ID, session.CreatorID, ActionSessionCreated, map[string]string{
		"name": session.Name,
		"type": string(session.Type),
	})

	e.publish(Event{
		Type:      EventSessionCreated,
		SessionID: session.ID,
		ActorID:   session.CreatorID,
		Timestamp: time.Now(),
		Session:   session,
	})
}

func (e *Engine) handleSessionRejected(msg *protocol.Message) {
	var payload protocol.SessionRejectedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		payload.Reason = "rejected by server"
	}

	session, ok := e.registry.Reject(msg.SessionID)
	if !ok {
		return
	}

	logger.Warn("server rejected session, removing local copy",
		"session_id", msg.SessionID,
		"reason", payload.Reason,
	)

	e.presence.DropSession(msg.SessionID)

	e.publish(Event{
		Type:      EventSessionEnded,
		SessionID: msg.SessionID,
		ActorID:   session.CreatorID,
		Timestamp: time.Now(),
		Session:   session,
		Reason:    payload.Reason,
	})
}

func (e *Engine) handleUserJoined(msg *protocol.Message) {
	var payload protocol.UserJoinedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed user_joined", "error", err)
		return
	}

	added := e.registry.AddMember(msg.SessionID, payload.UserID, payload.DisplayName, Role(payload.Role))

	e.presence.SetOnline(msg.SessionID, payload.UserID, true)

	// a rejoin after a reconnect is presence-only, not a new membership
	if !added {
		return
	}

	e.record(msg.SessionID, payload.UserID, ActionUserJoined, nil)

	e.publish(Event{
		Type:      EventUserJoined,
		SessionID: msg.SessionID,
		ActorID:   payload.UserID,
		Timestamp: time.Now(),
		Member: &MemberChange{
			CollaboratorID: payload.UserID,
			DisplayName:    payload.DisplayName,
			Role:           Role(payload.Role),
		},
	})
}

func (e *Engine) handleUserLeft(msg *protocol.Message) {
	var payload protocol.UserLeftPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed user_left", "error", err)
		return
	}

	e.registry.RemoveMember(msg.SessionID, payload.UserID)
	e.presence.SetOnline(msg.SessionID, payload.UserID, false)

	e.record(msg.SessionID, payload.UserID, ActionUserLeft, nil)

	e.publish(Event{
		Type:      EventUserLeft,
		SessionID: msg.SessionID,
		ActorID:   payload.UserID,
		Timestamp: time.Now(),
		Member: &MemberChange{
			CollaboratorID: payload.UserID,
			DisplayName:    payload.DisplayName,
		},
	})
}

func (e *Engine) handleFileChange(msg *protocol.Message) {
	var payload protocol.FileChangePayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed file_change", "error", err)
		return
	}

	e.presence.SetOnline(msg.SessionID, msg.UserID, true)

	e.record(msg.SessionID, msg.UserID, ActionResourceChanged, map[string]string{
		"resource_id": payload.FileID,
		"change_type": payload.ChangeType,
	})

	e.publish(Event{
		Type:      EventResourceChanged,
		SessionID: msg.SessionID,
		ActorID:   msg.UserID,
		Timestamp: time.Now(),
		Resource: &ResourceChange{
			ResourceID: payload.FileID,
			ChangeType: payload.ChangeType,
			ChangeData: payload.ChangeData,
		},
	})
}

func (e *Engine) handleCursorUpdate(msg *protocol.Message) {
	var payload protocol.CursorUpdatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed cursor_update", "error", err)
		return
	}

	e.presence.UpdateCursor(msg.SessionID, msg.UserID, payload.FileID, payload.Position, payload.Selection)

	e.publish(Event{
		Type:      EventCursorMoved,
		SessionID: msg.SessionID,
		ActorID:   msg.UserID,
		Timestamp: time.Now(),
		Cursor: &CursorUpdate{
			ResourceID: payload.FileID,
			Position:   payload.Position,
			Selection:  payload.Selection,
		},
	})
}

func (e *Engine) handleTypingIndicator(msg *protocol.Message) {
	var payload protocol.TypingIndicatorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed typing_indicator", "error", err)
		return
	}

	e.presence.SetTyping(msg.SessionID, msg.UserID, payload.FileID, payload.IsTyping)

	e.publish(Event{
		Type:      EventTypingIndicator,
		SessionID: msg.SessionID,
		ActorID:   msg.UserID,
		Timestamp: time.Now(),
		Typing: &TypingUpdate{
			ResourceID: payload.FileID,
			IsTyping:   payload.IsTyping,
		},
	})
}

func (e *Engine) handleUserInvited(msg *protocol.Message) {
	var payload protocol.UserInvitedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("dropping malformed user_invited", "error", err)
		return
	}

	e.record(msg.SessionID, payload.InviterID, ActionUserInvited, map[string]string{
		"invitee_email": payload.InviteeEmail,
	})

	e.publish(Event{
		Type:      EventUserInvited,
		SessionID: msg.SessionID,
		ActorID:   payload.InviterID,
		Timestamp: time.Now(),
		Invite: &Invite{
			Email:     payload.InviteeEmail,
			InviterID: payload.InviterID,
			Message:   payload.Message,
		},
	})
}

func (e *Engine) handleSessionEnded(msg *protocol.Message) {
	// the reason is optional; an empty payload is fine
	var payload protocol.SessionEndedPayload
	_ = msg.DecodePayload(&payload)

	session, ended := e.registry.End(msg.SessionID)
	if !ended {
		return
	}

	e.presence.DropSession(msg.SessionID)

	e.record(msg.SessionID, msg.UserID, ActionSessionEnded, nil)

	e.publish(Event{
		Type:      EventSessionEnded,
		SessionID: msg.SessionID,
		ActorID:   msg.UserID,
		Timestamp: time.Now(),
		Session:   session,
		Reason:    payload.Reason,
	})
}

// --- internals ---

// builds and enqueues an outbound message; send failures are logged, not
// surfaced, because delivery is never guaranteed while disconnected
func (e *Engine) sendMessage(msgType, sessionID string, payload any) {
	msg, err := protocol.NewMessage(msgType, sessionID, e.cfg.CollaboratorID, payload)
	if err != nil {
		logger.ErrorErr(err, "failed to build outbound message",
			"message_type", msgType,
			"session_id", sessionID,
		)

		return
	}

	if err := e.connector.Send(msg); err != nil {
		logger.Debug("outbound message not delivered",
			"message_type", msgType,
			"session_id", sessionID,
			"error", err,
		)
	}
}

func (e *Engine) record(sessionID, collaboratorID, action string, metadata map[string]string) {
	e.activity.Append(ActivityItem{
		SessionID:      sessionID,
		CollaboratorID: collaboratorID,
		Action:         action,
		Timestamp:      time.Now(),
		Metadata:       metadata,
	})
}

// delivers an event to every subscriber in a single ordered pass. A full
// subscriber buffer drops the event for that subscriber rather than stall
// the run loop.
func (e *Engine) publish(event Event) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	// sends stay under subMu so a concurrent cancel cannot close a channel
	// mid-delivery; the sends never block, so holding the lock is cheap
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("subscriber buffer full, dropping event",
				"event_type", string(event.Type),
				"session_id", event.SessionID,
			)
		}
	}
}
