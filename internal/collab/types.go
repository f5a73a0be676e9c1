package collab

import (
	"encoding/json"
	"errors"
	"time"
)

// represents a collaborator's role within a session
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// represents the kind of collaboration a session hosts
type SessionType string

const (
	SessionDocumentEditing SessionType = "document_editing"
	SessionResourceSharing SessionType = "resource_sharing"
	SessionReview          SessionType = "review"
	SessionBrainstorming   SessionType = "brainstorming"
	SessionPlanning        SessionType = "planning"
)

// tracks whether the server has accepted an optimistically created session
type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationRejected  ConfirmationState = "rejected"
)

// errors returned synchronously to callers; these are usage errors, not
// transient failures, and are never retried
var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session has ended")
	ErrEmptyName       = errors.New("session name must not be empty")
	ErrNoResources     = errors.New("session requires at least one resource")
	ErrEngineClosed    = errors.New("engine disposed")
)

// represents a bounded collaboration context scoping resources and
// participants
type CollaborationSession struct {
	ID           string
	Name         string
	CreatorID    string
	ResourceIDs  []string
	Type         SessionType
	Description  string
	Settings     map[string]string
	CreatedAt    time.Time
	IsActive     bool
	Confirmation ConfirmationState

	// membership keyed by collaborator id; the creator is always present
	// while the session is active
	Members map[string]*Collaborator
}

// represents a participant identity within a session
type Collaborator struct {
	CollaboratorID string
	DisplayName    string
	Role           Role
	JoinedAt       time.Time
	IsOnline       bool
	Metadata       map[string]string
}

// identifies the kind of a collaboration event
type EventType string

const (
	EventSessionCreated  EventType = "sessionCreated"
	EventSessionEnded    EventType = "sessionEnded"
	EventUserJoined      EventType = "userJoined"
	EventUserLeft        EventType = "userLeft"
	EventResourceChanged EventType = "resourceChanged"
	EventCursorMoved     EventType = "cursorMoved"
	EventTypingIndicator EventType = "typingIndicator"
	EventUserInvited     EventType = "userInvited"
)

// Event is the dispatcher's notification unit delivered to subscribers.
// Exactly one of the payload pointers is set, matching Type.
type Event struct {
	Type      EventType
	SessionID string
	ActorID   string
	Timestamp time.Time

	Session  *CollaborationSession
	Member   *MemberChange
	Resource *ResourceChange
	Cursor   *CursorUpdate
	Typing   *TypingUpdate
	Invite   *Invite
	Reason   string
}

// describes a membership change for userJoined/userLeft events
type MemberChange struct {
	CollaboratorID string
	DisplayName    string
	Role           Role
}

// describes a resource change notification
type ResourceChange struct {
	ResourceID string
	ChangeType string
	ChangeData json.RawMessage
}

// describes a cursor move within a resource
type CursorUpdate struct {
	ResourceID string
	Position   int
	Selection  string
}

// describes a typing state change within a resource
type TypingUpdate struct {
	ResourceID string
	IsTyping   bool
}

// describes an invitation sent to an email address
type Invite struct {
	Email     string
	InviterID string
	Message   string
}

// ActivityItem is one entry in the bounded per-session history. Ephemeral
// events (cursor, typing) are never recorded.
type ActivityItem struct {
	ID             string
	SessionID      string
	CollaboratorID string
	Action         string
	Timestamp      time.Time
	Metadata       map[string]string
}

// activity log action names
const (
	ActionSessionCreated  = "session_created"
	ActionSessionEnded    = "session_ended"
	ActionUserJoined      = "user_joined"
	ActionUserLeft        = "user_left"
	ActionResourceChanged = "resource_changed"
	ActionUserInvited     = "user_invited"
)
