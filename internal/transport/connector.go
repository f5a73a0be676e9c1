package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
)

// Connector owns the single duplex connection to the collaboration server.
// It authenticates on connect, reconnects with exponential backoff on
// unexpected close, and exposes the inbound message stream plus a
// connection-state signal. All sessions of the process are multiplexed
// over this one connection.
type Connector struct {
	cfg Config

	conn   *websocket.Conn
	connMu sync.Mutex

	state atomic.Int32

	inbound  chan *protocol.Message
	outbound chan []byte
	states   chan State

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// creates a connector; no I/O happens until Connect
func New(cfg Config) *Connector {
	c := &Connector{
		cfg:      cfg.withDefaults(),
		inbound:  make(chan *protocol.Message, sendBufferSize),
		outbound: make(chan []byte, sendBufferSize),
		states:   make(chan State, stateBufferSize),
		stopCh:   make(chan struct{}),
	}

	c.state.Store(int32(StateDisconnected))

	return c
}

// returns the inbound message stream; it stays open across reconnects and
// is closed only by Disconnect
func (c *Connector) Messages() <-chan *protocol.Message {
	return c.inbound
}

// returns the connection-state signal; a StateConnected following a
// StateDisconnected is the connection-restored notification
func (c *Connector) States() <-chan State {
	return c.states
}

// returns the current connection state
func (c *Connector) State() State {
	return State(c.state.Load())
}

// opens the connection and performs the authentication handshake, blocking
// until the handshake completes or fails. On success the read/write pumps
// and the reconnect supervisor start in the background.
func (c *Connector) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}

	if c.State() != StateDisconnected {
		return fmt.Errorf("already connected")
	}

	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setConn(conn)
	c.setState(StateConnected)

	c.wg.Add(1)
	go c.supervise(conn)

	return nil
}

// dials the server and runs the authenticate/ack exchange on the new
// connection
func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	authMsg, err := protocol.NewMessage(protocol.TypeAuthenticate, "", c.cfg.CollaboratorID, protocol.AuthenticatePayload{
		CollaboratorID: c.cfg.CollaboratorID,
		DisplayName:    c.cfg.DisplayName,
		Credential:     c.cfg.Credential,
	})
	if err != nil {
		conn.Close() //nolint:errcheck,gosec // G104: cleanup on handshake failure
		return nil, err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: handshake timing
	if err := conn.WriteJSON(authMsg); err != nil {
		conn.Close() //nolint:errcheck,gosec // G104: cleanup on handshake failure
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)) //nolint:errcheck,gosec // G104: handshake timing

	var reply protocol.Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close() //nolint:errcheck,gosec // G104: cleanup on handshake failure
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if reply.Type != protocol.TypeAck {
		conn.Close() //nolint:errcheck,gosec // G104: cleanup on handshake failure

		if reply.Type == protocol.TypeError {
			var errPayload protocol.ErrorPayload
			if decodeErr := reply.DecodePayload(&errPayload); decodeErr == nil {
				return nil, fmt.Errorf("%w: %s", ErrAuthRejected, errPayload.Message)
			}
		}

		return nil, fmt.Errorf("%w: expected ack, got %s", ErrAuthRejected, reply.Type)
	}

	return conn, nil
}

// runs the pumps for the current connection and reconnects on unexpected
// close until Disconnect is called
func (c *Connector) supervise(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		connDone := make(chan struct{})

		c.wg.Add(1)
		go c.writePump(conn, connDone)

		c.readPump(conn)

		close(connDone)
		conn.Close() //nolint:errcheck,gosec // G104: cleanup after pump exit

		select {
		case <-c.stopCh:
			return
		default:
		}

		c.setState(StateDisconnected)

		logger.Warn("connection lost, reconnecting",
			"server_url", c.cfg.ServerURL,
			"collaborator_id", c.cfg.CollaboratorID,
		)

		newConn, ok := c.reconnect()
		if !ok {
			return
		}

		conn = newConn
		c.setConn(conn)
		c.setState(StateConnected)

		logger.Info("connection restored",
			"collaborator_id", c.cfg.CollaboratorID,
		)
	}
}

// retries the dial with exponential backoff until it succeeds or the
// connector is closed
func (c *Connector) reconnect() (*websocket.Conn, bool) {
	for attempt := 1; ; attempt++ {
		delay := c.cfg.Backoff.Delay(attempt)

		select {
		case <-c.stopCh:
			return nil, false
		case <-time.After(delay):
		}

		c.setState(StateConnecting)

		conn, err := c.dial(context.Background())
		if err == nil {
			return conn, true
		}

		c.setState(StateDisconnected)

		logger.Debug("reconnect attempt failed",
			"attempt", attempt,
			"next_delay", c.cfg.Backoff.Delay(attempt+1).String(),
			"error", err,
		)
	}
}

// reads messages from the connection into the inbound stream; returns when
// the connection errors or closes
func (c *Connector) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error",
					"collaborator_id", c.cfg.CollaboratorID,
					"error", err,
				)
			}

			return
		}

		msg, err := protocol.Decode(messageBytes)
		if err != nil {
			// malformed inbound message; the connection stays usable
			logger.Warn("dropping malformed message",
				"collaborator_id", c.cfg.CollaboratorID,
				"error", err,
			)
			continue
		}

		select {
		case c.inbound <- msg:
		case <-c.stopCh:
			return
		}
	}
}

// writes queued messages and keepalive pings to the connection until the
// connection is done or the write fails
func (c *Connector) writePump(conn *websocket.Conn, connDone chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// force the read pump to notice the dead connection
				conn.Close() //nolint:errcheck,gosec // G104: cleanup on write failure
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: ping timing

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close() //nolint:errcheck,gosec // G104: cleanup on ping failure
				return
			}

		case <-connDone:
			return

		case <-c.stopCh:
			return
		}
	}
}

// enqueues a message for transmission without blocking the caller. Messages
// are dropped (and logged) when the connection is down; they are never
// queued across reconnects.
func (c *Connector) Send(msg *protocol.Message) error {
	if c.State() != StateConnected {
		logger.Debug("dropping outbound message, not connected",
			"message_type", msg.Type,
			"session_id", msg.SessionID,
		)

		return ErrNotConnected
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}

	select {
	case c.outbound <- messageBytes:
		return nil
	default:
		logger.Warn("outbound buffer full, dropping message",
			"message_type", msg.Type,
			"session_id", msg.SessionID,
		)

		return ErrSendBlocked
	}
}

// closes the connection permanently: flushes pending sends best-effort
// within the flush timeout, stops the reconnect loop, and closes the
// inbound stream. Safe to call more than once.
func (c *Connector) Disconnect() error {
	c.stopOnce.Do(func() {
		c.flush()

		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck,gosec // G104: best effort close frame
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.conn.Close() //nolint:errcheck,gosec // G104: shutdown cleanup
			c.conn = nil
		}
		c.connMu.Unlock()

		c.wg.Wait()

		c.setState(StateDisconnected)

		close(c.inbound)
		close(c.states)
	})

	return nil
}

// waits until the outbound queue drains or the flush timeout expires
func (c *Connector) flush() {
	if c.State() != StateConnected {
		return
	}

	deadline := time.Now().Add(c.cfg.FlushTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for len(c.outbound) > 0 && time.Now().Before(deadline) {
		<-ticker.C
	}
}

func (c *Connector) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// records the new state and pushes it on the state signal channel. When the
// consumer falls behind, the oldest queued transition is evicted so the
// newest always lands.
func (c *Connector) setState(state State) {
	old := State(c.state.Swap(int32(state)))
	if old == state {
		return
	}

	for {
		select {
		case c.states <- state:
			return
		default:
		}

		select {
		case stale := <-c.states:
			logger.Warn("state signal consumer slow, evicting oldest transition",
				"evicted", stale.String(),
				"state", state.String(),
			)
		default:
		}
	}
}
