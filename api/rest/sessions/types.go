package sessions

import (
	"time"

	"codeberg.org/collabkit/engine/api/rest/pagination"
	"codeberg.org/collabkit/engine/internal/protocol"
)

// list page sizing
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SessionResponse is the read-only session view served over REST
type SessionResponse struct {
	Session     protocol.WireSession `json:"session"`
	ClientCount int                  `json:"client_count"`
}

// SessionSummary is one row of the session list
type SessionSummary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	CreatorID         string    `json:"creator_id"`
	CreatedAt         time.Time `json:"created_at"`
	IsActive          bool      `json:"is_active"`
	CollaboratorCount int       `json:"collaborator_count"`
	ClientCount       int       `json:"client_count"`
}

// ListResponse is the paginated session list
type ListResponse struct {
	Sessions   []SessionSummary `json:"sessions"`
	Pagination pagination.Meta  `json:"pagination"`
}

// StatsResponse summarizes hub occupancy
type StatsResponse struct {
	ActiveSessions int `json:"active_sessions"`
}
