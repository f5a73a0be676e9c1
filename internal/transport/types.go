package transport

import (
	"errors"
	"time"
)

// represents the observable state of the duplex connection
type State int32

const (
	// StateDisconnected indicates no usable connection
	StateDisconnected State = iota

	// StateConnecting indicates a dial or handshake is in progress
	StateConnecting

	// StateConnected indicates the connection is authenticated and usable
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512 KB

	// outbound and inbound channel capacity
	sendBufferSize = 256

	// state signal channel capacity
	stateBufferSize = 32
)

// errors
var (
	ErrUnreachable  = errors.New("collaboration server unreachable")
	ErrAuthRejected = errors.New("authentication rejected")
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connector closed")
	ErrSendBlocked  = errors.New("outbound buffer full")
)

// holds connector settings
type Config struct {
	// websocket endpoint, e.g. ws://localhost:8080/api/v1/ws
	ServerURL string

	// identity announced in the authenticate handshake
	CollaboratorID string
	DisplayName    string

	// opaque credential forwarded to the server
	Credential string

	// reconnect backoff policy
	Backoff Policy

	// bound on the dial plus handshake of a single attempt
	HandshakeTimeout time.Duration

	// bound on the best-effort outbound flush during Disconnect
	FlushTimeout time.Duration
}

// fills zero-valued settings with defaults
func (c *Config) withDefaults() Config {
	cfg := *c

	if cfg.Backoff == (Policy{}) {
		cfg.Backoff = DefaultPolicy()
	}

	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = 2 * time.Second
	}

	return cfg
}
