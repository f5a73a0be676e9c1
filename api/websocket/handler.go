package websocket

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/collabkit/engine/internal/auth"
	"codeberg.org/collabkit/engine/internal/errors"
	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
	"codeberg.org/collabkit/engine/internal/server"
)

const handshakeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     server.CheckOrigin,
}

// handles websocket connections from collaboration engines. The first
// message on every connection must be an authenticate; the server replies
// with ack before any session traffic flows.
func Handler(hub *server.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ipAddress := c.ClientIP()

		// per-IP limit is checked before the upgrade; the per-user limit
		// needs the handshake first
		canAccept, reason := hub.CanAcceptConnection("", ipAddress)
		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection", "ip", ipAddress)
			return
		}

		hub.TrackIPConnection(ipAddress)

		collaboratorID, displayName, ok := handshake(conn)
		if !ok {
			hub.UntrackIPConnection(ipAddress)
			conn.Close() //nolint:errcheck,gosec // cleanup after failed handshake
			return
		}

		canAccept, reason = hub.CanAcceptConnection(collaboratorID, ipAddress)
		if !canAccept {
			rejectHandshake(conn, "too_many_requests", reason)
			hub.UntrackIPConnection(ipAddress)
			conn.Close() //nolint:errcheck,gosec // cleanup after rejected connection
			return
		}

		clientID, err := server.GenerateClientID()
		if err != nil {
			rejectHandshake(conn, "server_error", "failed to generate client id")
			hub.UntrackIPConnection(ipAddress)
			conn.Close() //nolint:errcheck,gosec // cleanup after failed setup
			return
		}

		ackMsg, err := protocol.NewMessage(protocol.TypeAck, "", collaboratorID, protocol.AckPayload{
			CollaboratorID: collaboratorID,
		})
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(handshakeWait)) //nolint:errcheck,gosec // handshake timing
			err = conn.WriteJSON(ackMsg)
		}

		if err != nil {
			logger.ErrorErr(err, "failed to send handshake ack",
				"collaborator_id", collaboratorID,
				"ip", ipAddress,
			)
			hub.UntrackIPConnection(ipAddress)
			conn.Close() //nolint:errcheck,gosec // cleanup after failed handshake
			return
		}

		client := server.NewClient(clientID, collaboratorID, displayName, ipAddress, conn, hub)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"collaborator_id", collaboratorID,
			"ip", ipAddress,
		)
	}
}

// runs the authenticate half of the handshake and returns the verified
// collaborator identity
func handshake(conn *websocket.Conn) (collaboratorID, displayName string, ok bool) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait)) //nolint:errcheck,gosec // handshake timing

	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		logger.Warn("handshake read failed", "error", err)
		return "", "", false
	}

	// restore the steady-state deadline for the read pump
	conn.SetReadDeadline(time.Time{}) //nolint:errcheck,gosec // handshake timing

	if msg.Type != protocol.TypeAuthenticate {
		rejectHandshake(conn, "unauthorized", "first message must be authenticate")
		return "", "", false
	}

	var payload protocol.AuthenticatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		rejectHandshake(conn, "bad_request", "invalid authenticate payload")
		return "", "", false
	}

	claims, err := auth.ValidateCredential(payload.Credential)
	if err != nil {
		logger.Warn("handshake credential rejected", "error", err)
		rejectHandshake(conn, "unauthorized", "invalid credential")
		return "", "", false
	}

	// the credential is authoritative for identity
	if payload.CollaboratorID != "" && payload.CollaboratorID != claims.CollaboratorID {
		rejectHandshake(conn, "unauthorized", "collaborator id does not match credential")
		return "", "", false
	}

	displayName = payload.DisplayName
	if displayName == "" {
		displayName = claims.DisplayName
	}

	return claims.CollaboratorID, displayName, true
}

// sends an error message to a connection that failed the handshake
func rejectHandshake(conn *websocket.Conn, code, message string) {
	errMsg, err := protocol.NewMessage(protocol.TypeError, "", "", protocol.ErrorPayload{
		Error:   code,
		Message: message,
	})
	if err != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck,gosec // best effort
	conn.WriteJSON(errMsg)                                 //nolint:errcheck,gosec // best effort
}
