package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// message type constants for the collaboration wire protocol
const (
	// is sent by a client immediately after the connection opens
	TypeAuthenticate = "authenticate"

	// is sent by the server to confirm a successful handshake
	TypeAck = "ack"

	// is sent when a collaborator creates a session
	TypeSessionCreated = "session_created"

	// is sent by the server when it refuses an optimistically created session
	TypeSessionRejected = "session_rejected"

	// is sent when a collaborator joins a session
	TypeUserJoined = "user_joined"

	// is sent when a collaborator leaves a session
	TypeUserLeft = "user_left"

	// is sent when a resource in the session scope changes
	TypeFileChange = "file_change"

	// is sent when a collaborator moves their cursor
	TypeCursorUpdate = "cursor_update"

	// is sent when a collaborator starts or stops typing
	TypeTypingIndicator = "typing_indicator"

	// is sent when a collaborator invites someone by email
	TypeUserInvited = "user_invited"

	// is sent by the server when the session owner ends the session
	TypeSessionEnded = "session_ended"

	// is sent by the host to end the session
	TypeEndSession = "end_session"

	// is sent when an error occurs
	TypeError = "error"
)

// errors
var (
	ErrInvalidMessage = errors.New("invalid message format")
	ErrUnknownType    = errors.New("unknown message type")
)

// represents a wire message with typed payload
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	ClientID  string          `json:"-"` // server-internal routing, never sent
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// contains the handshake sent as the first message on a connection
type AuthenticatePayload struct {
	CollaboratorID string `json:"collaborator_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Credential     string `json:"credential,omitempty"`
}

// confirms a successful handshake
type AckPayload struct {
	CollaboratorID string `json:"collaborator_id"`
	ServerVersion  string `json:"server_version,omitempty"`
}

// describes a session on the wire
type WireSession struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	CreatorID     string             `json:"creator_id"`
	FileIDs       []string           `json:"file_ids"`
	Type          string             `json:"type"`
	Description   string             `json:"description,omitempty"`
	Settings      map[string]string  `json:"settings,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	IsActive      bool               `json:"is_active"`
	Collaborators []WireCollaborator `json:"collaborators"`
}

// describes a session member on the wire
type WireCollaborator struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// carries the full session object for session_created
type SessionCreatedPayload struct {
	Session WireSession `json:"session"`
}

// explains why the server refused a session
type SessionRejectedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// contains information about a newly joined collaborator
type UserJoinedPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"` // "owner", "editor", "viewer"
}

// contains information about a collaborator who left
type UserLeftPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// contains a resource change notification
type FileChangePayload struct {
	FileID     string          `json:"file_id"`
	ChangeType string          `json:"change_type"`
	ChangeData json.RawMessage `json:"change_data,omitempty"`
}

// contains a cursor position update
type CursorUpdatePayload struct {
	FileID    string `json:"file_id"`
	Position  int    `json:"position"`
	Selection string `json:"selection,omitempty"`
}

// contains a typing state change
type TypingIndicatorPayload struct {
	FileID   string `json:"file_id"`
	IsTyping bool   `json:"is_typing"`
}

// contains an invitation to join a session
type UserInvitedPayload struct {
	InviteeEmail string `json:"invitee_email"`
	InviterID    string `json:"inviter_id"`
	Message      string `json:"message,omitempty"`
}

// contains session termination information
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// contains an error sent over the wire
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
