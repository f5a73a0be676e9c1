package collab

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogAppendAndRecent(t *testing.T) {
	log := NewLog(50)

	log.Append(ActivityItem{SessionID: "sess-1", CollaboratorID: "alice", Action: ActionSessionCreated, Timestamp: time.Now()})
	log.Append(ActivityItem{SessionID: "sess-1", CollaboratorID: "bob", Action: ActionUserJoined, Timestamp: time.Now()})

	items := log.Recent("sess-1", 10)
	require.Len(t, items, 2)

	// chronological order, oldest first
	assert.Equal(t, ActionSessionCreated, items[0].Action)
	assert.Equal(t, ActionUserJoined, items[1].Action)

	// every item gets an id
	assert.NotEmpty(t, items[0].ID)
	assert.NotEmpty(t, items[1].ID)
}

func TestActivityLogEvictsOldest(t *testing.T) {
	log := NewLog(50)

	for i := 0; i < 60; i++ {
		log.Append(ActivityItem{
			SessionID:      "sess-1",
			CollaboratorID: "alice",
			Action:         ActionResourceChanged,
			Timestamp:      time.Now(),
			Metadata:       map[string]string{"n": fmt.Sprintf("%d", i)},
		})
	}

	items := log.Recent("sess-1", 100)
	require.Len(t, items, 50)

	// the first ten entries were evicted
	assert.Equal(t, "10", items[0].Metadata["n"])
	assert.Equal(t, "59", items[49].Metadata["n"])
}

func TestActivityLogRecentLimit(t *testing.T) {
	log := NewLog(50)

	for i := 0; i < 10; i++ {
		log.Append(ActivityItem{
			SessionID: "sess-1",
			Action:    ActionResourceChanged,
			Timestamp: time.Now(),
			Metadata:  map[string]string{"n": fmt.Sprintf("%d", i)},
		})
	}

	items := log.Recent("sess-1", 3)
	require.Len(t, items, 3)

	// the newest three, still oldest first
	assert.Equal(t, "7", items[0].Metadata["n"])
	assert.Equal(t, "9", items[2].Metadata["n"])
}

func TestActivityLogSessionsAreIndependent(t *testing.T) {
	log := NewLog(50)

	log.Append(ActivityItem{SessionID: "sess-1", Action: ActionSessionCreated, Timestamp: time.Now()})
	log.Append(ActivityItem{SessionID: "sess-2", Action: ActionSessionCreated, Timestamp: time.Now()})

	assert.Len(t, log.Recent("sess-1", 10), 1)
	assert.Len(t, log.Recent("sess-2", 10), 1)
	assert.Empty(t, log.Recent("unknown", 10))
}

func TestActivityLogDropSession(t *testing.T) {
	log := NewLog(50)

	log.Append(ActivityItem{SessionID: "sess-1", Action: ActionSessionCreated, Timestamp: time.Now()})
	log.DropSession("sess-1")

	assert.Empty(t, log.Recent("sess-1", 10))
}
