package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// builds a message with a marshaled payload and the current timestamp
func NewMessage(msgType, sessionID, userID string, payload any) (*Message, error) {
	var raw json.RawMessage

	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}

		raw = bytes
	}

	return &Message{
		Type:      msgType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// parses raw bytes into a message, validating the required type field
func Decode(data []byte) (*Message, error) {
	var msg Message

	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", ErrInvalidMessage)
	}

	return &msg, nil
}

// unmarshals the message payload into the given destination
func (m *Message) DecodePayload(dst any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidMessage, m.Type)
	}

	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return nil
}
