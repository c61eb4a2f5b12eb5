package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepilot/collab-relay/internal/domain"
)

func participant(id string) domain.Participant {
	return domain.Participant{ID: id, Name: "user-" + id, Avatar: "🧑‍💻", Active: true}
}

func TestCreateRoomRejectsDuplicate(t *testing.T) {
	reg := New()

	snap, err := reg.CreateRoom("AB12CD", participant("a"), "x=1", "python")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", snap.RoomID)
	assert.Equal(t, "a", snap.CreatorID)
	assert.Len(t, snap.Participants, 1)

	_, err = reg.CreateRoom("AB12CD", participant("b"), "", "")
	assert.ErrorIs(t, err, domain.ErrRoomExists)
}

func TestCreateRoomDefaultLanguage(t *testing.T) {
	reg := New()
	snap, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "javascript", snap.Language)
}

func TestJoinRoomNotFound(t *testing.T) {
	reg := New()
	_, err := reg.JoinRoom("NOPE", participant("a"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinReturnsFullSnapshot(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "v1", "python")
	require.NoError(t, err)

	// several whole-document updates before the join; joiner must see the last
	_, ok := reg.UpdateCode("R1", "a", "v2")
	require.True(t, ok)
	_, ok = reg.UpdateCode("R1", "a", "v3")
	require.True(t, ok)
	_, ok = reg.UpdateLanguage("R1", "a", "go")
	require.True(t, ok)

	snap, err := reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Code)
	assert.Equal(t, "go", snap.Language)
	assert.Len(t, snap.Participants, 2)
}

func TestLeaveLastParticipantDeletesRoom(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)

	remaining, deleted := reg.LeaveRoom("R1", "a")
	assert.True(t, deleted)
	assert.Empty(t, remaining)

	_, err = reg.JoinRoom("R1", participant("b"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	// the id is free again
	_, err = reg.CreateRoom("R1", participant("b"), "", "")
	assert.NoError(t, err)
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)

	remaining, deleted := reg.LeaveRoom("R1", "b")
	assert.False(t, deleted)
	require.Len(t, remaining, 1)
	assert.Equal(t, "a", remaining[0].ID)

	remaining, deleted = reg.LeaveRoom("R1", "b")
	assert.False(t, deleted)
	assert.Empty(t, remaining)

	remaining, deleted = reg.LeaveRoom("GONE", "zz")
	assert.False(t, deleted)
	assert.Empty(t, remaining)
}

func TestExistsIffNonEmptyInvariant(t *testing.T) {
	reg := New()

	check := func(roomID string, wantSize int) {
		t.Helper()
		snap, err := reg.Get(roomID)
		if wantSize == 0 {
			assert.ErrorIs(t, err, domain.ErrRoomNotFound)
			return
		}
		require.NoError(t, err)
		assert.Len(t, snap.Participants, wantSize)
	}

	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	check("R1", 1)

	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)
	check("R1", 2)

	reg.LeaveRoom("R1", "a")
	check("R1", 1)

	_, err = reg.JoinRoom("R1", participant("c"))
	require.NoError(t, err)
	check("R1", 2)

	reg.LeaveRoom("R1", "b")
	check("R1", 1)
	reg.LeaveRoom("R1", "c")
	check("R1", 0)
}

func TestUpdateCodeExcludesSender(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)

	recipients, ok := reg.UpdateCode("R1", "a", "x=2")
	assert.True(t, ok)
	assert.Empty(t, recipients, "sole participant broadcasts to nobody")

	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)
	_, err = reg.JoinRoom("R1", participant("c"))
	require.NoError(t, err)

	recipients, ok = reg.UpdateCode("R1", "a", "x=3")
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"b", "c"}, recipients)
}

func TestUpdateCodeAbsentRoomIsNoop(t *testing.T) {
	reg := New()
	_, ok := reg.UpdateCode("GONE", "a", "x=1")
	assert.False(t, ok)
	_, ok = reg.UpdateLanguage("GONE", "a", "go")
	assert.False(t, ok)
	_, ok = reg.UpdateCursor("GONE", "a", domain.Cursor{X: 1, Y: 2})
	assert.False(t, ok)
}

func TestUpdateCursor(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)

	recipients, ok := reg.UpdateCursor("R1", "a", domain.Cursor{X: 10, Y: 20})
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, recipients)

	snap, err := reg.Get("R1")
	require.NoError(t, err)
	for _, p := range snap.Participants {
		if p.ID == "a" {
			assert.Equal(t, domain.Cursor{X: 10, Y: 20}, p.Cursor)
		}
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)

	res, ok := reg.Disconnect("a")
	require.True(t, ok)
	assert.Equal(t, "R1", res.RoomID)
	assert.False(t, res.RoomDeleted)
	require.Len(t, res.Remaining, 1)
	assert.Equal(t, "b", res.Remaining[0].ID)

	_, ok = reg.Disconnect("a")
	assert.False(t, ok, "second disconnect must be a silent no-op")

	res, ok = reg.Disconnect("b")
	require.True(t, ok)
	assert.True(t, res.RoomDeleted)
	assert.Empty(t, res.Remaining)
}

func TestUnbindUnknownConnection(t *testing.T) {
	reg := New()
	_, _, err := reg.Unbind("ghost")
	assert.ErrorIs(t, err, domain.ErrNotBound)
}

func TestBindUnbind(t *testing.T) {
	reg := New()
	reg.Bind("c1", participant("c1"), "R9")

	p, roomID, err := reg.Unbind("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", p.ID)
	assert.Equal(t, "R9", roomID)

	_, _, err = reg.Unbind("c1")
	assert.ErrorIs(t, err, domain.ErrNotBound)
}

func TestStats(t *testing.T) {
	reg := New()
	rooms, parts := reg.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, parts)

	_, err := reg.CreateRoom("R1", participant("a"), "", "")
	require.NoError(t, err)
	_, err = reg.JoinRoom("R1", participant("b"))
	require.NoError(t, err)
	_, err = reg.CreateRoom("R2", participant("c"), "", "")
	require.NoError(t, err)

	rooms, parts = reg.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, parts)
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg := New()
	_, err := reg.CreateRoom("R1", participant("creator"), "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%02d", i)
			if _, err := reg.JoinRoom("R1", participant(id)); err != nil {
				return
			}
			reg.LeaveRoom("R1", id)
		}(i)
	}
	wg.Wait()

	snap, err := reg.Get("R1")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "creator", snap.Participants[0].ID)
}
