package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/collabkit/engine/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// test double for the coordinating server: authenticates connections,
// records received messages, and can push messages or drop connections
type testServer struct {
	server     *httptest.Server
	rejectAuth bool

	mu          sync.Mutex
	conns       []*websocket.Conn
	received    chan *protocol.Message
	connCount   atomic.Int32
	authedCount atomic.Int32
}

func newTestServer(t *testing.T, rejectAuth bool) *testServer {
	t.Helper()

	ts := &testServer{
		rejectAuth: rejectAuth,
		received:   make(chan *protocol.Message, 64),
	}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		ts.connCount.Add(1)

		var authMsg protocol.Message
		if err := conn.ReadJSON(&authMsg); err != nil || authMsg.Type != protocol.TypeAuthenticate {
			conn.Close()
			return
		}

		if ts.rejectAuth {
			reply, _ := protocol.NewMessage(protocol.TypeError, "", "", protocol.ErrorPayload{
				Error:   "unauthorized",
				Message: "credential rejected",
			})
			conn.WriteJSON(reply) //nolint:errcheck // test server
			conn.Close()
			return
		}

		ack, _ := protocol.NewMessage(protocol.TypeAck, "", authMsg.UserID, protocol.AckPayload{
			CollaboratorID: authMsg.UserID,
		})
		if err := conn.WriteJSON(ack); err != nil {
			conn.Close()
			return
		}

		ts.authedCount.Add(1)

		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			ts.received <- &msg
		}
	}))

	t.Cleanup(ts.server.Close)

	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

// push sends a message to the most recent authenticated connection
func (ts *testServer) push(t *testing.T, msg *protocol.Message) {
	t.Helper()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	require.NotEmpty(t, ts.conns, "no authenticated connections")
	require.NoError(t, ts.conns[len(ts.conns)-1].WriteJSON(msg))
}

// dropConnections closes every live connection to simulate a network drop
func (ts *testServer) dropConnections() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, conn := range ts.conns {
		conn.Close()
	}

	ts.conns = nil
}

func testConfig(url string) Config {
	return Config{
		ServerURL:      url,
		CollaboratorID: "collab-1",
		DisplayName:    "Test Collaborator",
		Credential:     "test-credential",
		Backoff: Policy{
			Base:   20 * time.Millisecond,
			Factor: 2.0,
			Cap:    100 * time.Millisecond,
		},
		HandshakeTimeout: 2 * time.Second,
		FlushTimeout:     500 * time.Millisecond,
	}
}

func TestConnectorConnectAndSend(t *testing.T) {
	ts := newTestServer(t, false)

	c := New(testConfig(ts.url()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect() //nolint:errcheck // test cleanup

	assert.Equal(t, StateConnected, c.State())

	msg, err := protocol.NewMessage(protocol.TypeFileChange, "session-1", "collab-1", protocol.FileChangePayload{
		FileID:     "doc-1",
		ChangeType: "edit",
	})
	require.NoError(t, err)
	require.NoError(t, c.Send(msg))

	select {
	case got := <-ts.received:
		assert.Equal(t, protocol.TypeFileChange, got.Type)
		assert.Equal(t, "session-1", got.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("server should have received the message")
	}
}

func TestConnectorInboundStream(t *testing.T) {
	ts := newTestServer(t, false)

	c := New(testConfig(ts.url()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect() //nolint:errcheck // test cleanup

	joined, err := protocol.NewMessage(protocol.TypeUserJoined, "session-1", "collab-2", protocol.UserJoinedPayload{
		UserID: "collab-2",
		Role:   "editor",
	})
	require.NoError(t, err)
	ts.push(t, joined)

	select {
	case got := <-c.Messages():
		assert.Equal(t, protocol.TypeUserJoined, got.Type)
		assert.Equal(t, "collab-2", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("connector should deliver inbound messages")
	}
}

func TestConnectorAuthRejected(t *testing.T) {
	ts := newTestServer(t, true)

	c := New(testConfig(ts.url()))
	err := c.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectorUnreachable(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.HandshakeTimeout = 500 * time.Millisecond

	c := New(cfg)
	err := c.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestConnectorSendWhileDisconnected(t *testing.T) {
	ts := newTestServer(t, false)

	c := New(testConfig(ts.url()))

	msg, err := protocol.NewMessage(protocol.TypeFileChange, "session-1", "collab-1", protocol.FileChangePayload{
		FileID: "doc-1",
	})
	require.NoError(t, err)

	// never connected: the send is dropped, not queued
	assert.ErrorIs(t, c.Send(msg), ErrNotConnected)
}

func TestConnectorReconnectsWithBackoff(t *testing.T) {
	ts := newTestServer(t, false)

	c := New(testConfig(ts.url()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect() //nolint:errcheck // test cleanup

	// observe states in the background so the signal channel never stalls
	var sawDisconnect, sawRestore atomic.Bool
	go func() {
		for state := range c.States() {
			if state == StateDisconnected {
				sawDisconnect.Store(true)
			}

			if state == StateConnected && sawDisconnect.Load() {
				sawRestore.Store(true)
			}
		}
	}()

	ts.dropConnections()

	require.Eventually(t, func() bool {
		return sawRestore.Load()
	}, 5*time.Second, 20*time.Millisecond, "connector should reconnect after drop")

	assert.GreaterOrEqual(t, ts.authedCount.Load(), int32(2), "reconnect must re-authenticate")
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectorDisconnectClosesStream(t *testing.T) {
	ts := newTestServer(t, false)

	c := New(testConfig(ts.url()))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Disconnect())

	// stream must terminate rather than block forever
	select {
	case _, open := <-c.Messages():
		assert.False(t, open, "message stream should be closed after Disconnect")
	case <-time.After(time.Second):
		t.Fatal("message stream should be closed after Disconnect")
	}

	// idempotent
	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
}

// when the state signal buffer overflows, the oldest transition gives way so
// a slow consumer still observes the most recent state
func TestConnectorStateSignalKeepsNewest(t *testing.T) {
	c := New(testConfig("ws://127.0.0.1:1/ws"))

	for i := 0; i < stateBufferSize*2; i++ {
		if i%2 == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateConnected)
		}
	}

	c.setState(StateDisconnected)

	var (
		last    State
		drained int
	)

	for {
		select {
		case s := <-c.States():
			last = s
			drained++
		default:
			assert.Equal(t, stateBufferSize, drained)
			assert.Equal(t, StateDisconnected, last)
			return
		}
	}
}
