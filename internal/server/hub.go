package server

import (
	"sort"
	"time"

	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
)

func NewHub() *Hub {
	return &Hub{
		sessions:         make(map[string]*sessionState),
		clients:          make(map[string]*Client),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		Inbound:          make(chan *protocol.Message, 256),
		handlers:         make(map[string]MessageHandler),
		shutdown:         make(chan struct{}),
		userConnections:  make(map[string]int),
		ipConnections:    make(map[string]int),
		sessionSequences: make(map[string]uint64),
	}
}

// registers a handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// starts the hub's main loop
func (h *Hub) Run() {
	h.running = true
	defer func() {
		h.running = false
	}()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Inbound:
			h.handleMessage(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// adds a connection to the hub. Session attachment happens later, driven by
// session_created and user_joined messages.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.userConnections[client.CollaboratorID]++

	logger.Info("client registered",
		"client_id", client.ID,
		"collaborator_id", client.CollaboratorID,
		"display_name", client.DisplayName,
	)
}

// removes a connection from the hub and announces the drop to every session
// it was attached to. Membership records survive the drop so the
// collaborator can rejoin after a reconnect.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	if _, exists := h.clients[client.ID]; !exists {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client.ID)
	client.Close()

	h.userConnections[client.CollaboratorID]--
	if h.userConnections[client.CollaboratorID] <= 0 {
		delete(h.userConnections, client.CollaboratorID)
	}

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	for _, sessionID := range client.SessionIDs() {
		session, exists := h.sessions[sessionID]
		if !exists {
			continue
		}

		delete(session.clients, client.ID)

		userLeftMsg, err := protocol.NewMessage(protocol.TypeUserLeft, sessionID, client.CollaboratorID, protocol.UserLeftPayload{
			UserID:      client.CollaboratorID,
			DisplayName: client.DisplayName,
		})
		if err == nil {
			h.broadcastToSession(sessionID, userLeftMsg, client.ID)
		}
	}

	logger.Info("client unregistered",
		"client_id", client.ID,
		"collaborator_id", client.CollaboratorID,
	)

	h.mu.Unlock()
}

// processes an incoming message
func (h *Hub) handleMessage(msg *protocol.Message) {
	h.mu.RLock()
	sender, exists := h.clients[msg.ClientID]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("sender client not found for message",
			"client_id", msg.ClientID,
			"session_id", msg.SessionID,
			"message_type", msg.Type,
		)
		return
	}

	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if exists {
		// run handler asynchronously to avoid blocking the hub
		go func() {
			if err := handler(h, sender, msg); err != nil {
				logger.ErrorErr(err, "handler error",
					"message_type", msg.Type,
					"client_id", sender.ID,
					"session_id", msg.SessionID,
				)

				sender.SendError(msg.SessionID, "server_error", "failed to process message", err.Error())
			}
		}()
	} else {
		// reject unhandled message types
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
		)

		sender.SendError(msg.SessionID, "bad_request", "unsupported message type", protocol.ErrUnknownType.Error())
	}
}

// records a new session with the sender attached as its creator
func (h *Hub) CreateSession(client *Client, ws protocol.WireSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[ws.ID]; exists {
		return ErrDuplicateSession
	}

	session := &sessionState{
		WireSession: ws,
		members:     make(map[string]protocol.WireCollaborator),
		clients:     map[string]*Client{client.ID: client},
	}

	for _, collaborator := range ws.Collaborators {
		session.members[collaborator.UserID] = collaborator
	}

	if _, exists := session.members[client.CollaboratorID]; !exists {
		session.members[client.CollaboratorID] = protocol.WireCollaborator{
			UserID:      client.CollaboratorID,
			DisplayName: client.DisplayName,
			Role:        "owner",
			JoinedAt:    time.Now(),
		}
	}

	h.sessions[ws.ID] = session
	client.addSession(ws.ID)

	logger.Info("session created",
		"session_id", ws.ID,
		"creator_id", ws.CreatorID,
		"session_type", ws.Type,
	)

	return nil
}

// attaches a connection to an existing session and records its membership
func (h *Hub) AttachToSession(sessionID string, client *Client, role string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	if !session.IsActive {
		return ErrSessionEnded
	}

	session.clients[client.ID] = client

	if _, member := session.members[client.CollaboratorID]; !member {
		if role == "" {
			role = "editor"
		}

		session.members[client.CollaboratorID] = protocol.WireCollaborator{
			UserID:      client.CollaboratorID,
			DisplayName: client.DisplayName,
			Role:        role,
			JoinedAt:    time.Now(),
		}
	}

	client.addSession(sessionID)

	return nil
}

// detaches a connection from a session and drops its membership record
func (h *Hub) LeaveSession(sessionID string, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	delete(session.clients, client.ID)

	// the creator keeps their membership while the session lives
	if client.CollaboratorID != session.CreatorID {
		delete(session.members, client.CollaboratorID)
	}

	client.removeSession(sessionID)

	return nil
}

// sends a message to all attached clients in a session
func (h *Hub) BroadcastToSession(sessionID string, msg *protocol.Message, excludeClientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastToSession(sessionID, msg, excludeClientID)
}

// the internal broadcast function (must be called with lock held)
func (h *Hub) broadcastToSession(sessionID string, msg *protocol.Message, excludeClientID string) {
	session, exists := h.sessions[sessionID]
	if !exists {
		return
	}

	// assign sequence number to message
	h.sessionSequences[sessionID]++
	msg.Sequence = h.sessionSequences[sessionID]

	for clientID, client := range session.clients {
		if clientID == excludeClientID {
			continue
		}

		if err := client.Send(msg); err != nil {
			logger.ErrorErr(err, "failed to send message to client",
				"client_id", clientID,
				"session_id", sessionID,
			)
		}
	}
}

// returns all attached clients in a session
func (h *Hub) GetSessionClients(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return []*Client{}
	}

	clients := make([]*Client, 0, len(session.clients))

	for _, client := range session.clients {
		clients = append(clients, client)
	}

	return clients
}

// returns the membership roster of a session
func (h *Hub) GetSessionMembers(sessionID string) []protocol.WireCollaborator {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return nil
	}

	members := make([]protocol.WireCollaborator, 0, len(session.members))

	for _, member := range session.members {
		members = append(members, member)
	}

	return members
}

// returns a snapshot of a session's wire representation
func (h *Hub) GetSession(sessionID string) (protocol.WireSession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return protocol.WireSession{}, false
	}

	ws := session.WireSession
	ws.Collaborators = make([]protocol.WireCollaborator, 0, len(session.members))

	for _, member := range session.members {
		ws.Collaborators = append(ws.Collaborators, member)
	}

	return ws, true
}

// returns a snapshot of every live session ordered by creation time, newest
// first
func (h *Hub) ListSessions() []protocol.WireSession {
	h.mu.RLock()

	snapshots := make([]protocol.WireSession, 0, len(h.sessions))
	for _, session := range h.sessions {
		ws := session.WireSession
		ws.Collaborators = make([]protocol.WireCollaborator, 0, len(session.members))

		for _, member := range session.members {
			ws.Collaborators = append(ws.Collaborators, member)
		}

		snapshots = append(snapshots, ws)
	}

	h.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	return snapshots
}

// returns the number of attached clients in a session
func (h *Hub) GetClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		return 0
	}

	return len(session.clients)
}

func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// checks if a session exists and has not ended
func (h *Hub) IsSessionActive(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, exists := h.sessions[sessionID]
	return exists && session.IsActive
}

func (h *Hub) Shutdown() {
	if h.running {
		close(h.shutdown)
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown")

	// send session_ended to every session first
	for sessionID, session := range h.sessions {
		endedMsg, err := protocol.NewMessage(protocol.TypeSessionEnded, sessionID, "", protocol.SessionEndedPayload{
			Reason: "server is shutting down for maintenance",
		})
		if err != nil {
			logger.ErrorErr(err, "failed to create shutdown message")
			continue
		}

		for _, client := range session.clients {
			if err := client.Send(endedMsg); err != nil {
				logger.ErrorErr(err, "failed to send shutdown notification",
					"client_id", client.ID,
					"session_id", sessionID,
				)
			}
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(500 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for clientID, client := range h.clients {
		client.Close()
		logger.Debug("closed client", "client_id", clientID)
	}

	// clear all sessions and connection tracking
	h.sessions = make(map[string]*sessionState)
	h.clients = make(map[string]*Client)
	h.userConnections = make(map[string]int)
	h.ipConnections = make(map[string]int)
	h.sessionSequences = make(map[string]uint64)
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(collaboratorID, ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if collaboratorID != "" {
		count := h.userConnections[collaboratorID]
		if count >= maxConnectionsPerUser {
			return false, "Maximum connections per user exceeded"
		}
	}

	count := h.ipConnections[ipAddress]
	if count >= maxConnectionsPerIP {
		return false, "Maximum connections per IP address exceeded"
	}

	return true, ""
}

// increments the connection count for an IP address
func (h *Hub) TrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]++
}

// decrements the connection count for an IP address
func (h *Hub) UntrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]--

	if h.ipConnections[ipAddress] <= 0 {
		delete(h.ipConnections, ipAddress)
	}
}

// broadcasts session_ended to all attached clients and removes the session
func (h *Hub) EndSession(sessionID string, endedBy string, reason string) {
	h.mu.Lock()

	session, exists := h.sessions[sessionID]
	if !exists {
		h.mu.Unlock()
		return
	}

	logger.Info("ending session, notifying clients",
		"session_id", sessionID,
		"client_count", len(session.clients),
	)

	session.IsActive = false

	endedMsg, err := protocol.NewMessage(protocol.TypeSessionEnded, sessionID, endedBy, protocol.SessionEndedPayload{
		Reason: reason,
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create session_ended message",
			"session_id", sessionID,
		)
		h.mu.Unlock()
		return
	}

	h.broadcastToSession(sessionID, endedMsg, "")

	for _, client := range session.clients {
		client.removeSession(sessionID)
	}

	delete(h.sessions, sessionID)
	delete(h.sessionSequences, sessionID)

	h.mu.Unlock()

	logger.Info("session ended and removed",
		"session_id", sessionID,
	)
}
