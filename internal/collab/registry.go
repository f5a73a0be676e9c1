package collab

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/collabkit/engine/internal/protocol"
)

// Registry is the authoritative local cache of sessions this collaborator
// created or joined. Local state is eventually consistent with the server:
// mutations happen optimistically on local API calls and are reconciled
// through inbound protocol messages.
type Registry struct {
	mu       sync.RWMutex
	selfID   string
	selfName string
	sessions map[string]*CollaborationSession
	current  string
}

func NewRegistry(selfID, selfName string) *Registry {
	return &Registry{
		selfID:   selfID,
		selfName: selfName,
		sessions: make(map[string]*CollaborationSession),
	}
}

// inserts a new session with this collaborator as sole owner and makes it
// the current session. The insertion is optimistic: the server is expected
// to accept it, and a later session_rejected removes it.
func (r *Registry) Create(name string, resourceIDs []string, typ SessionType, description string, settings map[string]string) (*CollaborationSession, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if len(resourceIDs) == 0 {
		return nil, ErrNoResources
	}

	now := time.Now()

	session := &CollaborationSession{
		ID:           uuid.NewString(),
		Name:         name,
		CreatorID:    r.selfID,
		ResourceIDs:  append([]string(nil), resourceIDs...),
		Type:         typ,
		Description:  description,
		Settings:     cloneStringMap(settings),
		CreatedAt:    now,
		IsActive:     true,
		Confirmation: ConfirmationPending,
		Members: map[string]*Collaborator{
			r.selfID: {
				CollaboratorID: r.selfID,
				DisplayName:    r.selfName,
				Role:           RoleOwner,
				JoinedAt:       now,
			},
		},
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.current = session.ID
	r.mu.Unlock()

	return cloneSession(session), nil
}

// stores a session announced by another collaborator
func (r *Registry) Upsert(ws protocol.WireSession) *CollaborationSession {
	session := fromWire(ws)
	session.Confirmation = ConfirmationConfirmed

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	return cloneSession(session)
}

// adds this collaborator to a known, active session and makes it current
func (r *Registry) Join(sessionID string) (*CollaborationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if !session.IsActive {
		return nil, ErrSessionInactive
	}

	if _, member := session.Members[r.selfID]; !member {
		session.Members[r.selfID] = &Collaborator{
			CollaboratorID: r.selfID,
			DisplayName:    r.selfName,
			Role:           RoleEditor,
			JoinedAt:       time.Now(),
		}
	}

	r.current = sessionID

	return cloneSession(session), nil
}

// removes this collaborator from the current session. Idempotent: without a
// current session it reports nothing to do.
func (r *Registry) Leave() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == "" {
		return "", false
	}

	sessionID := r.current
	r.current = ""

	if session, ok := r.sessions[sessionID]; ok && session.IsActive {
		// the creator stays in the membership set while the session is
		// active; leaving only detaches this client's current pointer
		if session.CreatorID != r.selfID {
			delete(session.Members, r.selfID)
		}
	}

	return sessionID, true
}

// returns the current session id, or empty when not in a session
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// returns a read-only snapshot of a session
func (r *Registry) Get(sessionID string) (*CollaborationSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}

	return cloneSession(session), true
}

// records another collaborator's membership; returns false when nothing
// changed (unknown session, ended session, or already a member)
func (r *Registry) AddMember(sessionID, collaboratorID, displayName string, role Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok || !session.IsActive {
		return false
	}

	if _, member := session.Members[collaboratorID]; member {
		return false
	}

	if role == "" {
		role = RoleEditor
	}

	session.Members[collaboratorID] = &Collaborator{
		CollaboratorID: collaboratorID,
		DisplayName:    displayName,
		Role:           role,
		JoinedAt:       time.Now(),
	}

	return true
}

// removes a collaborator's membership; the creator is never removed while
// the session is active
func (r *Registry) RemoveMember(sessionID, collaboratorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok || !session.IsActive {
		return false
	}

	if collaboratorID == session.CreatorID {
		return false
	}

	if _, member := session.Members[collaboratorID]; !member {
		return false
	}

	delete(session.Members, collaboratorID)

	return true
}

// marks a locally pending session as accepted by the server
func (r *Registry) Confirm(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok && session.Confirmation == ConfirmationPending {
		session.Confirmation = ConfirmationConfirmed
	}
}

// removes a session the server refused; returns the removed snapshot
func (r *Registry) Reject(sessionID string) (*CollaborationSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}

	session.Confirmation = ConfirmationRejected
	delete(r.sessions, sessionID)

	if r.current == sessionID {
		r.current = ""
	}

	return cloneSession(session), true
}

// transitions a session to ended. The transition happens exactly once; the
// session is immutable afterwards.
func (r *Registry) End(sessionID string) (*CollaborationSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok || !session.IsActive {
		return nil, false
	}

	session.IsActive = false

	if r.current == sessionID {
		r.current = ""
	}

	return cloneSession(session), true
}

// returns the ids of active sessions this collaborator is a member of,
// used to re-announce membership after a reconnect
func (r *Registry) MemberSessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))

	for id, session := range r.sessions {
		if !session.IsActive {
			continue
		}

		if _, member := session.Members[r.selfID]; member {
			ids = append(ids, id)
		}
	}

	return ids
}

// converts a session snapshot to its wire representation
func ToWire(s *CollaborationSession) protocol.WireSession {
	collaborators := make([]protocol.WireCollaborator, 0, len(s.Members))

	for _, member := range s.Members {
		collaborators = append(collaborators, protocol.WireCollaborator{
			UserID:      member.CollaboratorID,
			DisplayName: member.DisplayName,
			Role:        string(member.Role),
			JoinedAt:    member.JoinedAt,
		})
	}

	return protocol.WireSession{
		ID:            s.ID,
		Name:          s.Name,
		CreatorID:     s.CreatorID,
		FileIDs:       append([]string(nil), s.ResourceIDs...),
		Type:          string(s.Type),
		Description:   s.Description,
		Settings:      cloneStringMap(s.Settings),
		CreatedAt:     s.CreatedAt,
		IsActive:      s.IsActive,
		Collaborators: collaborators,
	}
}

func fromWire(ws protocol.WireSession) *CollaborationSession {
	members := make(map[string]*Collaborator, len(ws.Collaborators))

	for _, wc := range ws.Collaborators {
		members[wc.UserID] = &Collaborator{
			CollaboratorID: wc.UserID,
			DisplayName:    wc.DisplayName,
			Role:           Role(wc.Role),
			JoinedAt:       wc.JoinedAt,
		}
	}

	return &CollaborationSession{
		ID:          ws.ID,
		Name:        ws.Name,
		CreatorID:   ws.CreatorID,
		ResourceIDs: append([]string(nil), ws.FileIDs...),
		Type:        SessionType(ws.Type),
		Description: ws.Description,
		Settings:    cloneStringMap(ws.Settings),
		CreatedAt:   ws.CreatedAt,
		IsActive:    ws.IsActive,
		Members:     members,
	}
}

func cloneSession(s *CollaborationSession) *CollaborationSession {
	clone := *s
	clone.ResourceIDs = append([]string(nil), s.ResourceIDs...)
	clone.Settings = cloneStringMap(s.Settings)
	clone.Members = make(map[string]*Collaborator, len(s.Members))

	for id, member := range s.Members {
		m := *member
		m.Metadata = cloneStringMap(member.Metadata)
		clone.Members[id] = &m
	}

	return &clone
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	clone := make(map[string]string, len(m))
	for k, v := range m {
		clone[k] = v
	}

	return clone
}
