package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/collabkit/engine/internal/config"
	"codeberg.org/collabkit/engine/internal/server"
)

// creates and configures a daemon instance with all dependencies
func NewServer(cfg *config.ServerConfig) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := server.NewHub()
	server.RegisterHandlers(hub)

	router := gin.Default()

	srv := &Server{
		config: cfg,
		hub:    hub,
		router: router,
	}

	RegisterRoutes(router, srv)

	return srv
}
