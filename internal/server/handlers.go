package server

import (
	"strings"

	"codeberg.org/collabkit/engine/internal/logger"
	"codeberg.org/collabkit/engine/internal/protocol"
)

// handles session_created announcements from a creator
func SessionCreateHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		var payload protocol.SessionCreatedPayload
		if err := msg.DecodePayload(&payload); err != nil {
			client.SendError(msg.SessionID, "validation_error", "failed to parse session", err.Error())
			return err
		}

		ws := payload.Session

		if strings.TrimSpace(ws.Name) == "" || len(ws.FileIDs) == 0 {
			rejectSession(client, ws.ID, "session requires a name and at least one resource")
			return nil
		}

		if ws.CreatorID != client.CollaboratorID {
			rejectSession(client, ws.ID, "creator does not match authenticated collaborator")
			return nil
		}

		if err := hub.CreateSession(client, ws); err != nil {
			rejectSession(client, ws.ID, "session id already in use")
			return nil
		}

		// broadcast to other connections of the same collaborator, if any
		broadcastMsg, err := protocol.NewMessage(protocol.TypeSessionCreated, ws.ID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		hub.BroadcastToSession(ws.ID, broadcastMsg, client.ID)

		return nil
	}
}

// handles join announcements, both first joins and reconnect rejoins
func UserJoinedHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		var payload protocol.UserJoinedPayload
		if err := msg.DecodePayload(&payload); err != nil {
			client.SendError(msg.SessionID, "validation_error", "failed to parse join", err.Error())
			return err
		}

		if err := hub.AttachToSession(msg.SessionID, client, payload.Role); err != nil {
			rejectSession(client, msg.SessionID, err.Error())
			return nil
		}

		// send the joiner the full session snapshot so their local copy
		// matches the server's roster
		session, ok := hub.GetSession(msg.SessionID)
		if ok {
			snapshotMsg, err := protocol.NewMessage(protocol.TypeSessionCreated, msg.SessionID, session.CreatorID, protocol.SessionCreatedPayload{
				Session: session,
			})
			if err == nil {
				if sendErr := client.Send(snapshotMsg); sendErr != nil {
					logger.ErrorErr(sendErr, "failed to send session snapshot",
						"client_id", client.ID,
						"session_id", msg.SessionID,
					)
				}
			}
		}

		payload.UserID = client.CollaboratorID
		if payload.DisplayName == "" {
			payload.DisplayName = client.DisplayName
		}

		broadcastMsg, err := protocol.NewMessage(protocol.TypeUserJoined, msg.SessionID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		hub.BroadcastToSession(msg.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles explicit leave announcements
func UserLeftHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		if err := hub.LeaveSession(msg.SessionID, client); err != nil {
			// leaving an unknown session is a no-op, not an error
			logger.Debug("leave for unknown session",
				"client_id", client.ID,
				"session_id", msg.SessionID,
			)
			return nil
		}

		broadcastMsg, err := protocol.NewMessage(protocol.TypeUserLeft, msg.SessionID, client.CollaboratorID, protocol.UserLeftPayload{
			UserID:      client.CollaboratorID,
			DisplayName: client.DisplayName,
		})
		if err != nil {
			return err
		}

		hub.BroadcastToSession(msg.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles resource change notifications
func FileChangeHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		if !client.InSession(msg.SessionID) {
			client.SendError(msg.SessionID, "forbidden", "not a member of this session", "")
			return ErrNotMember
		}

		var payload protocol.FileChangePayload
		if err := msg.DecodePayload(&payload); err != nil {
			client.SendError(msg.SessionID, "validation_error", "failed to parse file change", err.Error())
			return err
		}

		if len(payload.ChangeData) > maxChangeDataSize {
			client.SendError(msg.SessionID, "bad_request", "change data exceeds maximum size. maximum 100 KB allowed.", "")
			return ErrPayloadTooLarge
		}

		broadcastMsg, err := protocol.NewMessage(protocol.TypeFileChange, msg.SessionID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		hub.BroadcastToSession(msg.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles cursor position updates
func CursorUpdateHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		// over-budget updates are dropped silently; cursor traffic is
		// best-effort
		if !client.checkCursorRateLimit() {
			return nil
		}

		if !client.InSession(msg.SessionID) {
			return ErrNotMember
		}

		var payload protocol.CursorUpdatePayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}

		broadcastMsg, err := protocol.NewMessage(protocol.TypeCursorUpdate, msg.SessionID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		hub.BroadcastToSession(msg.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles typing indicator updates
func TypingIndicatorHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		if !client.checkTypingRateLimit() {
			return nil
		}

		if !client.InSession(msg.SessionID) {
			return ErrNotMember
		}

		var payload protocol.TypingIndicatorPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}

		broadcastMsg, err := protocol.NewMessage(protocol.TypeTypingIndicator, msg.SessionID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		hub.BroadcastToSession(msg.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles invitation announcements
func UserInvitedHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		if !client.InSession(msg.SessionID) {
			client.SendError(msg.SessionID, "forbidden", "not a member of this session", "")
			return ErrNotMember
		}

		var payload protocol.UserInvitedPayload
		if err := msg.DecodePayload(&payload); err != nil {
			client.SendError(msg.SessionID, "validation_error", "failed to parse invitation", err.Error())
			return err
		}

		if strings.TrimSpace(payload.InviteeEmail) == "" {
			client.SendError(msg.SessionID, "bad_request", "invitee email cannot be empty", "")
			return ErrInvalidMessage
		}

		payload.InviterID = client.CollaboratorID

		broadcastMsg, err := protocol.NewMessage(protocol.TypeUserInvited, msg.SessionID, client.CollaboratorID, payload)
		if err != nil {
			return err
		}

		// include the sender so every local copy records the invitation
		hub.BroadcastToSession(msg.SessionID, broadcastMsg, "")

		logger.Info("collaborator invited",
			"session_id", msg.SessionID,
			"inviter_id", client.CollaboratorID,
		)

		return nil
	}
}

// handles session termination requests from the creator
func EndSessionHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *protocol.Message) error {
		session, ok := hub.GetSession(msg.SessionID)
		if !ok {
			client.SendError(msg.SessionID, "not_found", "session not found", "")
			return ErrSessionNotFound
		}

		if session.CreatorID != client.CollaboratorID {
			client.SendError(msg.SessionID, "forbidden", "only the session creator can end the session", "")
			return ErrNotCreator
		}

		var payload protocol.SessionEndedPayload
		_ = msg.DecodePayload(&payload)

		if payload.Reason == "" {
			payload.Reason = "ended by creator"
		}

		hub.EndSession(msg.SessionID, client.CollaboratorID, payload.Reason)

		return nil
	}
}

// sends a session_rejected message to a single client
func rejectSession(client *Client, sessionID, reason string) {
	msg, err := protocol.NewMessage(protocol.TypeSessionRejected, sessionID, "", protocol.SessionRejectedPayload{
		Reason: reason,
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create session_rejected message",
			"session_id", sessionID,
		)
		return
	}

	if sendErr := client.Send(msg); sendErr != nil {
		logger.ErrorErr(sendErr, "failed to send session_rejected",
			"client_id", client.ID,
			"session_id", sessionID,
		)
	}
}

// wires the full handler set onto a hub
func RegisterHandlers(hub *Hub) {
	hub.RegisterHandler(protocol.TypeSessionCreated, SessionCreateHandler())
	hub.RegisterHandler(protocol.TypeUserJoined, UserJoinedHandler())
	hub.RegisterHandler(protocol.TypeUserLeft, UserLeftHandler())
	hub.RegisterHandler(protocol.TypeFileChange, FileChangeHandler())
	hub.RegisterHandler(protocol.TypeCursorUpdate, CursorUpdateHandler())
	hub.RegisterHandler(protocol.TypeTypingIndicator, TypingIndicatorHandler())
	hub.RegisterHandler(protocol.TypeUserInvited, UserInvitedHandler())
	hub.RegisterHandler(protocol.TypeEndSession, EndSessionHandler())
}
