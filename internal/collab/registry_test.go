package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/collabkit/engine/internal/protocol"
)

func TestRegistryCreateSession(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("sprint review", []string{"doc-1"}, SessionDocumentEditing, "review notes", nil)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "sprint review", session.Name)
	assert.Equal(t, "alice", session.CreatorID)
	assert.True(t, session.IsActive)
	assert.Equal(t, ConfirmationPending, session.Confirmation)

	// the creator is the sole owner at creation time
	require.Len(t, session.Members, 1)
	assert.Equal(t, RoleOwner, session.Members["alice"].Role)

	assert.Equal(t, session.ID, registry.Current())
}

func TestRegistryCreateValidation(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	_, err := registry.Create("", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = registry.Create("no resources", nil, SessionDocumentEditing, "", nil)
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestRegistryJoinUnknownSession(t *testing.T) {
	registry := NewRegistry("bob", "Bob")

	_, err := registry.Join("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryJoinEndedSession(t *testing.T) {
	registry := NewRegistry("bob", "Bob")

	registry.Upsert(wireSessionFixture("sess-1", "alice", true))
	_, ended := registry.End("sess-1")
	require.True(t, ended)

	_, err := registry.Join("sess-1")
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestRegistryJoinAddsSelfAsEditor(t *testing.T) {
	registry := NewRegistry("bob", "Bob")

	registry.Upsert(wireSessionFixture("sess-1", "alice", true))

	session, err := registry.Join("sess-1")
	require.NoError(t, err)

	require.Contains(t, session.Members, "bob")
	assert.Equal(t, RoleEditor, session.Members["bob"].Role)
	assert.Equal(t, "sess-1", registry.Current())
}

func TestRegistryLeaveIdempotent(t *testing.T) {
	registry := NewRegistry("bob", "Bob")

	_, left := registry.Leave()
	assert.False(t, left)

	registry.Upsert(wireSessionFixture("sess-1", "alice", true))
	_, err := registry.Join("sess-1")
	require.NoError(t, err)

	sessionID, left := registry.Leave()
	assert.True(t, left)
	assert.Equal(t, "sess-1", sessionID)
	assert.Empty(t, registry.Current())

	// non-creator membership is gone after leaving
	session, ok := registry.Get("sess-1")
	require.True(t, ok)
	assert.NotContains(t, session.Members, "bob")

	_, left = registry.Leave()
	assert.False(t, left)
}

func TestRegistryCreatorStaysMemberOnLeave(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionBrainstorming, "", nil)
	require.NoError(t, err)

	_, left := registry.Leave()
	require.True(t, left)

	snapshot, ok := registry.Get(session.ID)
	require.True(t, ok)
	assert.Contains(t, snapshot.Members, "alice")
	assert.Empty(t, registry.Current())
}

func TestRegistryAddMemberDedupes(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	assert.True(t, registry.AddMember(session.ID, "bob", "Bob", RoleEditor))
	assert.False(t, registry.AddMember(session.ID, "bob", "Bob", RoleEditor))
	assert.False(t, registry.AddMember("unknown", "bob", "Bob", RoleEditor))

	snapshot, _ := registry.Get(session.ID)
	assert.Len(t, snapshot.Members, 2)
}

func TestRegistryRemoveMemberNeverRemovesCreator(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)
	registry.AddMember(session.ID, "bob", "Bob", RoleEditor)

	assert.False(t, registry.RemoveMember(session.ID, "alice"))
	assert.True(t, registry.RemoveMember(session.ID, "bob"))
	assert.False(t, registry.RemoveMember(session.ID, "bob"))

	snapshot, _ := registry.Get(session.ID)
	assert.Contains(t, snapshot.Members, "alice")
}

func TestRegistryEndIsExactlyOnce(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	ended, ok := registry.End(session.ID)
	require.True(t, ok)
	assert.False(t, ended.IsActive)
	assert.Empty(t, registry.Current())

	_, ok = registry.End(session.ID)
	assert.False(t, ok)

	// an ended session rejects further membership changes
	assert.False(t, registry.AddMember(session.ID, "bob", "Bob", RoleEditor))
}

func TestRegistryConfirmAndReject(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionDocumentEditing, "", nil)
	require.NoError(t, err)

	registry.Confirm(session.ID)
	snapshot, _ := registry.Get(session.ID)
	assert.Equal(t, ConfirmationConfirmed, snapshot.Confirmation)

	removed, ok := registry.Reject(session.ID)
	require.True(t, ok)
	assert.Equal(t, ConfirmationRejected, removed.Confirmation)

	_, ok = registry.Get(session.ID)
	assert.False(t, ok)
	assert.Empty(t, registry.Current())
}

func TestRegistryMemberSessions(t *testing.T) {
	registry := NewRegistry("bob", "Bob")

	// member of sess-1, not a member of sess-2, sess-3 has ended
	registry.Upsert(wireSessionFixture("sess-1", "alice", true))
	_, err := registry.Join("sess-1")
	require.NoError(t, err)

	registry.Upsert(wireSessionFixture("sess-2", "alice", true))

	registry.Upsert(wireSessionFixture("sess-3", "alice", true))
	_, jerr := registry.Join("sess-3")
	require.NoError(t, jerr)
	_, ended := registry.End("sess-3")
	require.True(t, ended)

	ids := registry.MemberSessions()
	assert.Equal(t, []string{"sess-1"}, ids)
}

func TestRegistrySnapshotsAreIsolated(t *testing.T) {
	registry := NewRegistry("alice", "Alice")

	session, err := registry.Create("jam", []string{"doc-1"}, SessionDocumentEditing, "", map[string]string{"theme": "dark"})
	require.NoError(t, err)

	// mutating a snapshot must not leak into the registry
	session.Name = "hijacked"
	session.Settings["theme"] = "light"
	delete(session.Members, "alice")

	snapshot, _ := registry.Get(session.ID)
	assert.Equal(t, "jam", snapshot.Name)
	assert.Equal(t, "dark", snapshot.Settings["theme"])
	assert.Contains(t, snapshot.Members, "alice")
}

func wireSessionFixture(id, creatorID string, active bool) protocol.WireSession {
	return protocol.WireSession{
		ID:        id,
		Name:      "session " + id,
		CreatorID: creatorID,
		FileIDs:   []string{"doc-1"},
		Type:      string(SessionDocumentEditing),
		CreatedAt: time.Now(),
		IsActive:  active,
		Collaborators: []protocol.WireCollaborator{
			{UserID: creatorID, DisplayName: "Creator", Role: string(RoleOwner), JoinedAt: time.Now()},
		},
	}
}
