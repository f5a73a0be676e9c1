package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// defaults for engine settings not set in the environment
const (
	DefaultTypingTimeout   = 5 * time.Second
	DefaultActivityLogCap  = 50
	DefaultReconnectBase   = 1 * time.Second
	DefaultReconnectFactor = 2.0
	DefaultReconnectCap    = 30 * time.Second
	DefaultFlushTimeout    = 2 * time.Second
)

// loads engine configuration from environment variables
func LoadEngineConfig() (*EngineConfig, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	serverURL := os.Getenv("COLLAB_SERVER_URL")
	collaboratorID := os.Getenv("COLLAB_COLLABORATOR_ID")
	displayName := os.Getenv("COLLAB_DISPLAY_NAME")
	credential := os.Getenv("COLLAB_CREDENTIAL")
	environment := os.Getenv("COLLAB_ENV")

	if serverURL == "" {
		return nil, fmt.Errorf("COLLAB_SERVER_URL environment variable is required")
	}

	if collaboratorID == "" {
		return nil, fmt.Errorf("COLLAB_COLLABORATOR_ID environment variable is required")
	}

	if environment == "" {
		environment = "development"
	}

	return &EngineConfig{
		ServerURL:       serverURL,
		CollaboratorID:  collaboratorID,
		DisplayName:     displayName,
		Credential:      credential,
		Environment:     environment,
		TypingTimeout:   durationEnv("COLLAB_TYPING_TIMEOUT", DefaultTypingTimeout),
		ActivityLogCap:  intEnv("COLLAB_ACTIVITY_CAP", DefaultActivityLogCap),
		ReconnectBase:   durationEnv("COLLAB_RECONNECT_BASE", DefaultReconnectBase),
		ReconnectFactor: DefaultReconnectFactor,
		ReconnectCap:    durationEnv("COLLAB_RECONNECT_CAP", DefaultReconnectCap),
		FlushTimeout:    durationEnv("COLLAB_FLUSH_TIMEOUT", DefaultFlushTimeout),
	}, nil
}

// loads daemon configuration from environment variables
func LoadServerConfig() (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	environment := os.Getenv("COLLAB_ENV")
	port := os.Getenv("PORT")

	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if environment == "" {
		environment = "development"
	}

	if port == "" {
		port = "8080"
	}

	return &ServerConfig{
		Port:        port,
		JWTSecret:   jwtSecret,
		Environment: environment,
	}, nil
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}

	return n
}
