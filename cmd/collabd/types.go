package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/collabkit/engine/internal/config"
	"codeberg.org/collabkit/engine/internal/server"
)

// holds all dependencies and state for the coordinator daemon
type Server struct {
	config *config.ServerConfig
	hub    *server.Hub
	router *gin.Engine
}
