package websocket

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/collabkit/engine/internal/server"
)

func RegisterRoutes(router *gin.RouterGroup, hub *server.Hub) {
	router.GET("/ws", Handler(hub))
}
