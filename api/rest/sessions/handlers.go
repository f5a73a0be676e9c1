package sessions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/collabkit/engine/api/rest/pagination"
	"codeberg.org/collabkit/engine/internal/errors"
	"codeberg.org/collabkit/engine/internal/server"
)

// serves a read-only snapshot of a live session
func GetSessionHandler(hub *server.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")

		if !errors.IsValidUUID(sessionID) {
			errors.BadRequest(c, "invalid session id format", nil)
			return
		}

		session, ok := hub.GetSession(sessionID)
		if !ok {
			errors.SessionNotFound(c)
			return
		}

		c.JSON(http.StatusOK, SessionResponse{
			Session:     session,
			ClientCount: hub.GetClientCount(sessionID),
		})
	}
}

// serves a paginated list of live session summaries
func ListSessionsHandler(hub *server.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := pagination.ParseParams(c.Query("limit"), c.Query("offset"), defaultPageSize, maxPageSize)

		all := hub.ListSessions()
		start, end := params.Window(len(all))

		summaries := make([]SessionSummary, 0, end-start)
		for _, ws := range all[start:end] {
			summaries = append(summaries, SessionSummary{
				ID:                ws.ID,
				Name:              ws.Name,
				CreatorID:         ws.CreatorID,
				CreatedAt:         ws.CreatedAt,
				IsActive:          ws.IsActive,
				CollaboratorCount: len(ws.Collaborators),
				ClientCount:       hub.GetClientCount(ws.ID),
			})
		}

		c.JSON(http.StatusOK, ListResponse{
			Sessions:   summaries,
			Pagination: pagination.NewMeta(params, len(all)),
		})
	}
}

// serves hub occupancy counters
func StatsHandler(hub *server.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, StatsResponse{
			ActiveSessions: hub.GetSessionCount(),
		})
	}
}
