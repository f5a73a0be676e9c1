package collab

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/collabkit/engine/internal/protocol"
	"codeberg.org/collabkit/engine/internal/transport"
)

// in-memory stand-in for the websocket connector
type fakeConnector struct {
	mu      sync.Mutex
	sent    []*protocol.Message
	inbound chan *protocol.Message
	states  chan transport.State
	state   transport.State
	closed  bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		inbound: make(chan *protocol.Message, 64),
		states:  make(chan transport.State, 16),
		state:   transport.StateConnected,
	}
}

func (f *fakeConnector) Connect(_ context.Context) error { return nil }

func (f *fakeConnector) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return transport.ErrClosed
	}

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeConnector) Messages() <-chan *protocol.Message { return f.inbound }
func (f *fakeConnector) States() <-chan transport.State     { return f.states }
func (f *fakeConnector) State() transport.State             { return f.state }

func (f *fakeConnector) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.inbound)
		close(f.states)
	}

	return nil
}

// delivers a server-originated message to the engine
func (f *fakeConnector) push(t *testing.T, msgType, sessionID, userID string, payload any) {
	t.Helper()

	msg, err := protocol.NewMessage(msgType, sessionID, userID, payload)
	require.NoError(t, err)

	f.inbound <- msg
}

func (f *fakeConnector) sentMessages() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*protocol.Message, len(f.sent))
	copy(out, f.sent)

	return out
}

func (f *fakeConnector) sentOfType(msgType string) []*protocol.Message {
	var out []*protocol.Message

	for _, msg := range f.sentMessages() {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}

	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeConnector) {
	t.Helper()

	fake := newFakeConnector()
	engine := New(Config{
		CollaboratorID: "alice",
		DisplayName:    "Alice",
		TypingTimeout:  time.Second,
	}, fake)

	require.NoError(t, engine.Initialize(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Dispose(ctx)
	})

	return engine, fake
}

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEngineCreateSession(t *testing.T) {
	engine, fake := newTestEngine(t)

	events, cancel := engine.Subscribe()
	defer cancel()

	session, err := engine.CreateSession("sprint review", []string{"doc-1"}, SessionDocumentEditing, "notes", nil)
	require.NoError(t, err)

	event := receiveEvent(t, events)
	assert.Equal(t, EventSessionCreated, event.Type)
	assert.Equal(t, session.ID, event.SessionID)
	assert.Equal(t, "alice", event.ActorID)

	// announced on the wire
	created := fake.sentOfType(protocol.TypeSessionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, session.ID, created[0].SessionID)

	// recorded in the activity log
	items := engine.GetSessionActivity(session.ID, 10)
	require.Len(t, items, 1)
	assert.Equal(t, ActionSessionCreated, items[0].Action)

	// the creator shows as online
	collaborators := engine.GetCurrentCollaborators()
	require.Len(t, collaborators, 1)
	assert.True(t, collaborators[0].IsOnline)
}

func TestEngineInboundSessionCreated(t *testing.T) {
	engine, fake := newTestEngine(t)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, protocol.TypeSessionCreated, "sess-1", "bob", protocol.SessionCreatedPayload{
		Session: wireSessionFixture("sess-1", "bob", true),
	})

	event := receiveEvent(t, events)
	assert.Equal(t, EventSessionCreated, event.Type)
	assert.Equal(t, "bob", event.ActorID)

	session, ok := engine.GetSession("sess-1")
	require.True(t, ok)
	assert.True(t, session.IsActive)
	assert.Contains(t, session.Members, "bob")
}

func TestEngineSessionRejected(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, protocol.TypeSessionRejected, session.ID, "", protocol.SessionRejectedPayload{
		Reason: "quota exceeded",
	})

	event := receiveEvent(t, events)
	assert.Equal(t, EventSessionEnded, event.Type)
	assert.Equal(t, "quota exceeded", event.Reason)

	// the optimistic local copy is gone
	_, ok := engine.GetSession(session.ID)
	assert.False(t, ok)
	assert.Empty(t, engine.CurrentSessionID())
}

func TestEngineInboundTrafficConfirmsSession(t *testing.T) {
	engine, fake := newTestEngine(t)

	events, cancel := engine.Subscribe()
	defer cancel()

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationPending, session.Confirmation)

	receiveEvent(t, events) // sessionCreated

	fake.push(t, protocol.TypeUserJoined, session.ID, "bob", protocol.UserJoinedPayload{
		UserID: "bob", DisplayName: "Bob", Role: "editor",
	})
	receiveEvent(t, events) // userJoined

	snapshot, ok := engine.GetSession(session.ID)
	require.True(t, ok)
	assert.Equal(t, ConfirmationConfirmed, snapshot.Confirmation)
}

func TestEngineUserJoinedAndLeft(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, protocol.TypeUserJoined, session.ID, "bob", protocol.UserJoinedPayload{
		UserID: "bob", DisplayName: "Bob", Role: "editor",
	})

	event := receiveEvent(t, events)
	assert.Equal(t, EventUserJoined, event.Type)
	require.NotNil(t, event.Member)
	assert.Equal(t, "bob", event.Member.CollaboratorID)

	collaborators := engine.GetCollaborators(session.ID)
	assert.Len(t, collaborators, 2)

	// a duplicate join after a reconnect refreshes presence only
	fake.push(t, protocol.TypeUserJoined, session.ID, "bob", protocol.UserJoinedPayload{
		UserID: "bob", DisplayName: "Bob", Role: "editor",
	})

	fake.push(t, protocol.TypeUserLeft, session.ID, "bob", protocol.UserLeftPayload{
		UserID: "bob", DisplayName: "Bob",
	})

	event = receiveEvent(t, events)
	assert.Equal(t, EventUserLeft, event.Type)

	collaborators = engine.GetCollaborators(session.ID)
	assert.Len(t, collaborators, 1)
}

func TestEngineOrderedDelivery(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	const count = 20
	for i := 0; i < count; i++ {
		fake.push(t, protocol.TypeFileChange, session.ID, "bob", protocol.FileChangePayload{
			FileID:     "doc-1",
			ChangeType: "edit",
			ChangeData: []byte(`{"rev":` + strconv.Itoa(i) + `}`),
		})
	}

	// events arrive in the order the connection delivered them
	for i := 0; i < count; i++ {
		event := receiveEvent(t, events)
		require.Equal(t, EventResourceChanged, event.Type)
		require.NotNil(t, event.Resource)
		assert.JSONEq(t, `{"rev":`+strconv.Itoa(i)+`}`, string(event.Resource.ChangeData))
	}
}

func TestEngineEmitsRequireActiveSession(t *testing.T) {
	engine, fake := newTestEngine(t)

	assert.ErrorIs(t, engine.EmitResourceChange("doc-1", "edit", nil), ErrNoActiveSession)
	assert.ErrorIs(t, engine.EmitCursorUpdate("doc-1", 1, ""), ErrNoActiveSession)
	assert.ErrorIs(t, engine.EmitTypingIndicator("doc-1", true), ErrNoActiveSession)

	assert.Empty(t, fake.sentMessages())
}

func TestEngineEmitResourceChange(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	require.NoError(t, engine.EmitResourceChange("doc-1", "edit", map[string]int{"rev": 7}))

	event := receiveEvent(t, events)
	assert.Equal(t, EventResourceChanged, event.Type)

	sent := fake.sentOfType(protocol.TypeFileChange)
	require.Len(t, sent, 1)
	assert.Equal(t, session.ID, sent[0].SessionID)

	// durable action, so it lands in the activity log
	items := engine.GetSessionActivity(session.ID, 10)
	require.Len(t, items, 2)
	assert.Equal(t, ActionResourceChanged, items[1].Action)
}

func TestEngineEphemeralEventsSkipActivityLog(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	require.NoError(t, engine.EmitCursorUpdate("doc-1", 12, ""))
	require.NoError(t, engine.EmitTypingIndicator("doc-1", true))

	assert.NotEmpty(t, fake.sentOfType(protocol.TypeCursorUpdate))
	assert.NotEmpty(t, fake.sentOfType(protocol.TypeTypingIndicator))

	items := engine.GetSessionActivity(session.ID, 50)
	require.Len(t, items, 1)
	assert.Equal(t, ActionSessionCreated, items[0].Action)
}

func TestEngineCursorUpdatesAreThrottled(t *testing.T) {
	engine, fake := newTestEngine(t)

	_, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, engine.EmitCursorUpdate("doc-1", i, ""))
	}

	// over-budget updates are dropped, not queued
	sent := fake.sentOfType(protocol.TypeCursorUpdate)
	assert.Less(t, len(sent), 200)
	assert.NotEmpty(t, sent)
}

func TestEngineSessionEndedExactlyOnce(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, protocol.TypeSessionEnded, session.ID, "alice", protocol.SessionEndedPayload{Reason: "done"})
	fake.push(t, protocol.TypeSessionEnded, session.ID, "alice", protocol.SessionEndedPayload{Reason: "done"})

	event := receiveEvent(t, events)
	assert.Equal(t, EventSessionEnded, event.Type)
	assert.Equal(t, "done", event.Reason)

	// the duplicate produced no second event
	select {
	case extra := <-events:
		t.Fatalf("unexpected event after session ended: %v", extra.Type)
	case <-time.After(100 * time.Millisecond):
	}

	snapshot, ok := engine.GetSession(session.ID)
	require.True(t, ok)
	assert.False(t, snapshot.IsActive)
	assert.Empty(t, engine.CurrentSessionID())
}

func TestEngineActivitySurvivesSessionEnd(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, protocol.TypeSessionEnded, session.ID, "alice", protocol.SessionEndedPayload{})
	receiveEvent(t, events)

	// history stays readable for the process lifetime
	items := engine.GetSessionActivity(session.ID, 10)
	require.NotEmpty(t, items)
	assert.Equal(t, ActionSessionEnded, items[len(items)-1].Action)
}

func TestEngineReconnectReannouncesMembership(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	before := len(fake.sentOfType(protocol.TypeUserJoined))

	fake.states <- transport.StateDisconnected
	fake.states <- transport.StateConnecting
	fake.states <- transport.StateConnected

	require.Eventually(t, func() bool {
		return len(fake.sentOfType(protocol.TypeUserJoined)) == before+1
	}, time.Second, 10*time.Millisecond)

	rejoin := fake.sentOfType(protocol.TypeUserJoined)
	assert.Equal(t, session.ID, rejoin[len(rejoin)-1].SessionID)

	// local session state was untouched by the drop
	snapshot, ok := engine.GetSession(session.ID)
	require.True(t, ok)
	assert.True(t, snapshot.IsActive)
	assert.Contains(t, snapshot.Members, "alice")
}

func TestEngineUnknownMessageTypeIsDropped(t *testing.T) {
	engine, fake := newTestEngine(t)

	events, cancel := engine.Subscribe()
	defer cancel()

	fake.push(t, "telemetry_blob", "sess-1", "bob", map[string]string{"x": "y"})

	// a known message after it proves the loop kept running
	fake.push(t, protocol.TypeSessionCreated, "sess-2", "bob", protocol.SessionCreatedPayload{
		Session: wireSessionFixture("sess-2", "bob", true),
	})

	event := receiveEvent(t, events)
	assert.Equal(t, EventSessionCreated, event.Type)
	assert.Equal(t, "sess-2", event.SessionID)
}

func TestEngineDisposeClosesSubscribers(t *testing.T) {
	fake := newFakeConnector()
	engine := New(Config{CollaboratorID: "alice", DisplayName: "Alice"}, fake)
	require.NoError(t, engine.Initialize(context.Background()))

	events, cancel := engine.Subscribe()
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	require.NoError(t, engine.Dispose(ctx))

	// second dispose is a no-op
	require.NoError(t, engine.Dispose(ctx))

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}


// a subscriber cancelling mid-broadcast must never race the fan-out into a
// send on its closed channel
func TestEngineSubscriberChurnDuringDelivery(t *testing.T) {
	engine, fake := newTestEngine(t)

	session, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	const (
		churners  = 8
		cycles    = 200
		publishes = 400
	)

	var wg sync.WaitGroup

	for i := 0; i < churners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < cycles; j++ {
				_, cancel := engine.Subscribe()
				cancel()
			}
		}()
	}

	for i := 0; i < publishes; i++ {
		fake.push(t, protocol.TypeFileChange, session.ID, "bob", protocol.FileChangePayload{
			FileID:     "doc-1",
			ChangeType: "edit",
		})
	}

	wg.Wait()
}

func TestEngineDisposedRejectsCalls(t *testing.T) {
	fake := newFakeConnector()
	engine := New(Config{CollaboratorID: "alice", DisplayName: "Alice"}, fake)
	require.NoError(t, engine.Initialize(context.Background()))

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	require.NoError(t, engine.Dispose(ctx))

	_, err := engine.CreateSession("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.ErrorIs(t, err, ErrEngineClosed)

	require.ErrorIs(t, engine.JoinSession("session-1", ""), ErrEngineClosed)
	require.ErrorIs(t, engine.EmitResourceChange("doc-1", "edit", nil), ErrEngineClosed)
	require.ErrorIs(t, engine.EmitCursorUpdate("doc-1", 0, ""), ErrEngineClosed)
	require.ErrorIs(t, engine.EmitTypingIndicator("doc-1", true), ErrEngineClosed)
	require.ErrorIs(t, engine.InviteCollaborator("session-1", "bob@example.com", ""), ErrEngineClosed)

	// late subscribers get a closed channel, not a hang
	events, cancel := engine.Subscribe()
	defer cancel()

	_, ok := <-events
	assert.False(t, ok)
}

func TestEngineTrackSessionEnablesJoin(t *testing.T) {
	engine, fake := newTestEngine(t)

	require.ErrorIs(t, engine.JoinSession("session-1", ""), ErrSessionNotFound)

	// a directory lookup hands the client the session metadata
	engine.TrackSession(wireSessionFixture("session-1", "bob", true))

	require.NoError(t, engine.JoinSession("session-1", ""))
	assert.Equal(t, "session-1", engine.CurrentSessionID())

	joins := fake.sentOfType(protocol.TypeUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, "session-1", joins[0].SessionID)
}
