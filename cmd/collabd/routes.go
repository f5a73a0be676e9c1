package main

import (
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"codeberg.org/collabkit/engine/api/rest/auth"
	"codeberg.org/collabkit/engine/api/rest/health"
	"codeberg.org/collabkit/engine/api/rest/sessions"
	"codeberg.org/collabkit/engine/api/websocket"
)

// requests per minute per IP on the REST surface; websocket traffic has its
// own per-message limits
const restRateLimit = "120-M"

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, srv *Server) {
	router.Use(corsMiddleware(srv.config.Environment))
	router.GET("/health", health.Handler)

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware())

	{
		v1.GET("/ping", health.PingHandler)

		auth.RegisterRoutes(v1)
		sessions.RegisterRoutes(v1, srv.hub)
		websocket.RegisterRoutes(v1, srv.hub)
	}
}

func corsMiddleware(environment string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if environment == "production" {
		origins := strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}

		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}

	return cors.New(cfg)
}

func rateLimitMiddleware() gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(restRateLimit)
	if err != nil {
		panic(err)
	}

	return mgin.NewMiddleware(limiter.New(memory.NewStore(), rate))
}
