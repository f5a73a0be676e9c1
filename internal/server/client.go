package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
)

// creates a new websocket client connection
func NewClient(id, collaboratorID, displayName, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:               id,
		CollaboratorID:   collaboratorID,
		DisplayName:      displayName,
		IPAddress:        ipAddress,
		conn:             conn,
		hub:              hub,
		send:             make(chan []byte, 256),
		sessions:         make(map[string]bool),
		cursorTimestamps: make([]time.Time, 0, maxCursorUpdatesPerSecond),
		typingTimestamps: make([]time.Time, 0, maxTypingUpdatesPerSecond),
	}
}

// reads messages from the websocket connection to the hub for processing
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close() //nolint:errcheck,gosec // defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // pong handler
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					"client_id", c.ID,
					"collaborator_id", c.CollaboratorID,
					"error", err,
				)
			}

			break
		}

		msg, err := protocol.Decode(messageBytes)
		if err != nil {
			logger.ErrorErr(err, "failed to decode message",
				"client_id", c.ID,
				"collaborator_id", c.CollaboratorID,
			)

			c.SendError("", "bad_request", "invalid message format", err.Error())
			continue
		}

		// the sender identity comes from the handshake, never the wire
		msg.ClientID = c.ID
		msg.UserID = c.CollaboratorID
		msg.Timestamp = time.Now()

		c.hub.Inbound <- msg
	}
}

// writes messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // defer cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // websocket timing

			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // close message
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			w.Write(message) //nolint:errcheck,gosec // websocket write

			// add queued messages to the current websocket message
			n := len(c.send)

			for range n {
				w.Write([]byte{'\n'}) //nolint:errcheck,gosec // websocket write
				w.Write(<-c.send)     //nolint:errcheck,gosec // websocket write
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sends a message to the client
func (c *Client) Send(msg *protocol.Message) (err error) {
	// recover from panic if channel is closed
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnectionClosed
		}
	}()

	c.mu.RLock()

	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	c.mu.RUnlock()

	messageBytes, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		return marshalErr
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		// channel is full, send error directly to websocket before closing
		c.sendBufferOverflowError()
		c.Close()
		return ErrConnectionClosed
	}
}

// sends buffer overflow error directly to websocket (bypassing the full channel)
func (c *Client) sendBufferOverflowError() {
	errorMsg, err := protocol.NewMessage(protocol.TypeError, "", c.CollaboratorID, protocol.ErrorPayload{
		Error:   "buffer_overflow",
		Message: "message buffer full, connection will be closed",
		Details: "too many messages queued, please reconnect",
	})
	if err != nil {
		return
	}

	errorBytes, err := json.Marshal(errorMsg)
	if err != nil {
		return
	}

	// write directly to websocket with short deadline
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck,gosec
	c.conn.WriteMessage(websocket.TextMessage, errorBytes)   //nolint:errcheck,gosec
}

// sends an error message to the client
func (c *Client) SendError(sessionID, code, message, details string) {
	errorMsg, err := protocol.NewMessage(protocol.TypeError, sessionID, c.CollaboratorID, protocol.ErrorPayload{
		Error:   code,
		Message: message,
		Details: details,
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create error message",
			"client_id", c.ID,
			"error_code", code,
		)
		return
	}

	c.Send(errorMsg) //nolint:errcheck,gosec // best effort error notification
}

// closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// checks if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// records a session membership on this connection
func (c *Client) addSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = true
}

// removes a session membership from this connection
func (c *Client) removeSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// checks whether this connection has joined a session
func (c *Client) InSession(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[sessionID]
}

// returns the session ids this connection has joined
func (c *Client) SessionIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}

	return ids
}

// checks if the client can send a cursor update
func (c *Client) checkCursorRateLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursorTimestamps = trimWindow(c.cursorTimestamps, time.Second)

	if len(c.cursorTimestamps) >= maxCursorUpdatesPerSecond {
		return false
	}

	c.cursorTimestamps = append(c.cursorTimestamps, time.Now())
	return true
}

// checks if the client can send a typing update
func (c *Client) checkTypingRateLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.typingTimestamps = trimWindow(c.typingTimestamps, time.Second)

	if len(c.typingTimestamps) >= maxTypingUpdatesPerSecond {
		return false
	}

	c.typingTimestamps = append(c.typingTimestamps, time.Now())
	return true
}

// drops timestamps that fell out of the sliding window
func trimWindow(timestamps []time.Time, window time.Duration) []time.Time {
	cutoff := time.Now().Add(-window)
	valid := timestamps[:0]

	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	return valid
}
