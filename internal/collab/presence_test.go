package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerOnlineOffline(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	assert.False(t, tracker.IsOnline("sess-1", "alice"))

	tracker.SetOnline("sess-1", "alice", true)
	assert.True(t, tracker.IsOnline("sess-1", "alice"))

	// presence is scoped per session
	assert.False(t, tracker.IsOnline("sess-2", "alice"))

	tracker.SetOnline("sess-1", "alice", false)
	assert.False(t, tracker.IsOnline("sess-1", "alice"))
}

func TestTrackerOfflineClearsCursorsAndTyping(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	tracker.UpdateCursor("sess-1", "alice", "doc-1", 42, "42:50")
	tracker.SetTyping("sess-1", "alice", "doc-1", true)

	require.True(t, tracker.IsOnline("sess-1", "alice"))
	require.True(t, tracker.IsTyping("sess-1", "alice", "doc-1"))

	tracker.SetOnline("sess-1", "alice", false)

	snapshot := tracker.Snapshot("sess-1")
	require.Contains(t, snapshot, "alice")
	assert.False(t, snapshot["alice"].Online)
	assert.Empty(t, snapshot["alice"].Cursors)
	assert.Empty(t, snapshot["alice"].TypingIn)
}

func TestTrackerCursorImpliesOnline(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	tracker.UpdateCursor("sess-1", "alice", "doc-1", 10, "")
	assert.True(t, tracker.IsOnline("sess-1", "alice"))

	snapshot := tracker.Snapshot("sess-1")
	require.Len(t, snapshot["alice"].Cursors, 1)
	assert.Equal(t, "doc-1", snapshot["alice"].Cursors[0].ResourceID)
	assert.Equal(t, 10, snapshot["alice"].Cursors[0].Position)
}

func TestTrackerCursorLastWritePerResource(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	tracker.UpdateCursor("sess-1", "alice", "doc-1", 10, "")
	tracker.UpdateCursor("sess-1", "alice", "doc-1", 99, "99:120")
	tracker.UpdateCursor("sess-1", "alice", "doc-2", 5, "")

	snapshot := tracker.Snapshot("sess-1")
	cursors := snapshot["alice"].Cursors
	require.Len(t, cursors, 2)

	positions := map[string]int{}
	for _, c := range cursors {
		positions[c.ResourceID] = c.Position
	}

	assert.Equal(t, 99, positions["doc-1"])
	assert.Equal(t, 5, positions["doc-2"])
}

func TestTrackerTypingExpires(t *testing.T) {
	tracker := NewTracker(50 * time.Millisecond)
	defer tracker.Close()

	tracker.SetTyping("sess-1", "alice", "doc-1", true)
	assert.True(t, tracker.IsTyping("sess-1", "alice", "doc-1"))

	// the flag clears on its own without an explicit stop
	assert.Eventually(t, func() bool {
		return !tracker.IsTyping("sess-1", "alice", "doc-1")
	}, time.Second, 10*time.Millisecond)

	// but the collaborator stays online
	assert.True(t, tracker.IsOnline("sess-1", "alice"))
}

func TestTrackerTypingRefreshResetsTimer(t *testing.T) {
	tracker := NewTracker(80 * time.Millisecond)
	defer tracker.Close()

	tracker.SetTyping("sess-1", "alice", "doc-1", true)
	time.Sleep(50 * time.Millisecond)
	tracker.SetTyping("sess-1", "alice", "doc-1", true)
	time.Sleep(50 * time.Millisecond)

	// the refresh pushed expiry out past the original deadline
	assert.True(t, tracker.IsTyping("sess-1", "alice", "doc-1"))
}

func TestTrackerExplicitTypingStop(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	tracker.SetTyping("sess-1", "alice", "doc-1", true)
	tracker.SetTyping("sess-1", "alice", "doc-1", false)

	assert.False(t, tracker.IsTyping("sess-1", "alice", "doc-1"))
}

func TestTrackerDropSession(t *testing.T) {
	tracker := NewTracker(time.Second)
	defer tracker.Close()

	tracker.SetOnline("sess-1", "alice", true)
	tracker.SetTyping("sess-1", "alice", "doc-1", true)
	tracker.SetOnline("sess-2", "bob", true)

	tracker.DropSession("sess-1")

	assert.Empty(t, tracker.Snapshot("sess-1"))
	assert.True(t, tracker.IsOnline("sess-2", "bob"))
}
