package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

type message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func send(c *websocket.Conn, msgType, sessionID, userID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Fatal("marshal:", err)
	}

	msg := message{
		Type:      msgType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   raw,
	}

	fmt.Printf("📤 Sending %s\n", msgType)
	if err := c.WriteJSON(msg); err != nil {
		log.Fatal("write:", err)
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./scripts/wsprobe <collaborator_id> <credential> [session_id]")
		fmt.Println("Without a session_id a fresh session is created.")
		os.Exit(1)
	}

	collaboratorID := os.Args[1]
	credential := os.Args[2]

	u := url.URL{
		Scheme: "ws",
		Host:   "localhost:8080",
		Path:   "/api/v1/ws",
	}

	fmt.Printf("Connecting to %s\n", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	// authenticate first; the server hangs up on anything else
	send(c, "authenticate", "", collaboratorID, map[string]any{
		"collaborator_id": collaboratorID,
		"display_name":    "wsprobe",
		"credential":      credential,
	})

	var ack message
	if err := c.ReadJSON(&ack); err != nil {
		log.Fatal("read ack:", err)
	}
	if ack.Type != "ack" {
		log.Fatalf("handshake rejected: %s %s", ack.Type, ack.Payload)
	}

	fmt.Println("✅ Authenticated!")

	if len(os.Args) > 3 {
		sessionID := os.Args[3]
		send(c, "user_joined", sessionID, collaboratorID, map[string]any{
			"user_id":      collaboratorID,
			"display_name": "wsprobe",
			"role":         "editor",
		})
	} else {
		sessionID := fmt.Sprintf("probe-%d", time.Now().Unix())
		send(c, "session_created", sessionID, collaboratorID, map[string]any{
			"session": map[string]any{
				"id":         sessionID,
				"name":       "wsprobe session",
				"creator_id": collaboratorID,
				"file_ids":   []string{"probe-doc"},
				"type":       "document_editing",
				"created_at": time.Now(),
				"is_active":  true,
			},
		})
		fmt.Printf("session id: %s\n", sessionID)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			fmt.Printf("📨 Received: %s\n", raw)
		}
	}()

	select {
	case <-done:
		return
	case <-interrupt:
		fmt.Println("\n🛑 Interrupt received, closing connection...")

		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
