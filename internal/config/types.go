package config

import "time"

// holds settings for the client-side collaboration engine
type EngineConfig struct {
	ServerURL      string
	CollaboratorID string
	DisplayName    string
	Credential     string
	Environment    string

	// presence: how long a typing flag stays set without a refresh
	TypingTimeout time.Duration

	// activity log: maximum retained items per session
	ActivityLogCap int

	// reconnect backoff
	ReconnectBase   time.Duration
	ReconnectFactor float64
	ReconnectCap    time.Duration

	// bounded flush on disconnect
	FlushTimeout time.Duration
}

// holds settings for the coordinator daemon
type ServerConfig struct {
	Port        string
	JWTSecret   string
	Environment string
}
