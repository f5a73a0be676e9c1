package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/collabkit/engine/internal/protocol"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512 KB

	// time allowed for the authenticate/ack exchange after upgrade
	handshakeWait = 10 * time.Second

	// rate limiting constants
	maxCursorUpdatesPerSecond = 20
	maxTypingUpdatesPerSecond = 5

	// content size limits
	maxChangeDataSize = 100 * 1024 // 100 KB maximum change payload
)

// hub connection limit constants
const (
	maxConnectionsPerUser = 5
	maxConnectionsPerIP   = 10
)

// errors
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionEnded      = errors.New("session has ended")
	ErrDuplicateSession  = errors.New("session id already in use")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotMember         = errors.New("not a member of this session")
	ErrNotCreator        = errors.New("only the session creator may do this")
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrPayloadTooLarge   = errors.New("payload too large")
)

// represents a websocket client connection. One connection serves one
// collaborator but may participate in many sessions at once.
type Client struct {
	// unique identifier for this connection
	ID string

	// collaborator this connection authenticated as
	CollaboratorID string

	// display name for this collaborator
	DisplayName string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message routing
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// mutex for thread-safe operations
	mu sync.RWMutex

	// session ids this connection has joined
	sessions map[string]bool

	// flag indicating if client is closed
	closed bool

	// rate limiting: cursor update timestamps (sliding window)
	cursorTimestamps []time.Time

	// rate limiting: typing update timestamps (sliding window)
	typingTimestamps []time.Time
}

// server-side record of a session and the connections attached to it
type sessionState struct {
	protocol.WireSession

	// members keyed by collaborator id
	members map[string]protocol.WireCollaborator

	// connections currently attached, keyed by client id
	clients map[string]*Client
}

// maintains the set of active connections and routes session traffic
type Hub struct {
	// sessions keyed by session id
	sessions map[string]*sessionState

	// all connections keyed by client id
	clients map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// inbound messages from clients
	Inbound chan *protocol.Message

	// mutex for thread-safe access to sessions and clients
	mu sync.RWMutex

	// message handlers for different message types
	handlers map[string]MessageHandler

	// flag indicating if hub is running
	running bool

	// channel to signal shutdown
	shutdown chan struct{}

	// connection tracking: collaborator id -> count of connections
	userConnections map[string]int

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// sequence numbers per session for message ordering
	sessionSequences map[string]uint64
}

// processes a specific message type
type MessageHandler func(hub *Hub, client *Client, msg *protocol.Message) error
