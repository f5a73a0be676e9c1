package sessions

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/collabkit/engine/internal/server"
)

func RegisterRoutes(router *gin.RouterGroup, hub *server.Hub) {
	router.GET("/sessions", ListSessionsHandler(hub))
	router.GET("/sessions/:id", GetSessionHandler(hub))
	router.GET("/stats", StatsHandler(hub))
}
