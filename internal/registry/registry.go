// Package registry holds the relay's in-memory room and connection state.
// Nothing here is persisted; state lives for the process lifetime only.
package registry

import (
	"sync"
	"time"

	"github.com/codepilot/collab-relay/internal/domain"
)

// Snapshot is a point-in-time copy of a room, safe to use after the lock is
// released. A new joiner receives the full snapshot, never a diff.
type Snapshot struct {
	RoomID       string
	CreatorID    string
	Participants []domain.Participant
	Code         string
	Language     string
	CreatedAt    time.Time
}

// DisconnectResult describes the cleanup performed for a dropped connection.
type DisconnectResult struct {
	Participant domain.Participant
	RoomID      string
	Remaining   []domain.Participant
	RoomDeleted bool
}

type binding struct {
	participant domain.Participant
	roomID      string
}

// Registry is the single logical owner of all room and connection state.
// One mutex serializes every mutation, so "remove last participant" and
// "create room with the same id" can never interleave: deletion-on-empty
// happens in the same critical section as the removal itself.
//
// Invariant: a room exists in the registry if and only if its participant
// count is greater than zero.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
	conns map[string]binding // connection id -> (participant, room)
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*domain.Room),
		conns: make(map[string]binding),
	}
}

// CreateRoom registers a new room with the creator as its sole participant
// and binds the creator's connection to it. Client-supplied ids are rejected
// on collision, never overwritten.
func (r *Registry) CreateRoom(roomID string, creator domain.Participant, code, language string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; ok {
		return Snapshot{}, domain.ErrRoomExists
	}

	room := domain.NewRoom(roomID, creator.ID, code, language)
	room.AddParticipant(creator)
	r.rooms[roomID] = room
	r.conns[creator.ID] = binding{participant: creator, roomID: roomID}

	return snapshotOf(room), nil
}

// JoinRoom adds the participant to an existing room, binds its connection,
// and returns the full current room state.
func (r *Registry) JoinRoom(roomID string, p domain.Participant) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{}, domain.ErrRoomNotFound
	}

	room.AddParticipant(p)
	r.conns[p.ID] = binding{participant: p, roomID: roomID}

	return snapshotOf(room), nil
}

// LeaveRoom removes the participant and deletes the room in the same atomic
// step if it became empty. Leaving an absent room or participant is a silent
// no-op. The returned remaining list is the broadcast audience for the
// user-left event; it is empty when the room was deleted.
func (r *Registry) LeaveRoom(roomID, participantID string) (remaining []domain.Participant, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(roomID, participantID)
}

func (r *Registry) removeLocked(roomID, participantID string) ([]domain.Participant, bool) {
	delete(r.conns, participantID)

	room, ok := r.rooms[roomID]
	if !ok || !room.HasParticipant(participantID) {
		return nil, false
	}

	room.RemoveParticipant(participantID)
	if room.Size() == 0 {
		delete(r.rooms, roomID)
		return nil, true
	}
	return room.Participants(), false
}

// UpdateCode replaces the room's document wholesale (last write wins) and
// returns the sender-excluded broadcast audience. No-op if the room is gone.
func (r *Registry) UpdateCode(roomID, senderID, code string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	room.UpdateCode(code)
	return room.ParticipantIDs(senderID), true
}

// UpdateLanguage replaces the room's language tag wholesale.
func (r *Registry) UpdateLanguage(roomID, senderID, language string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	room.UpdateLanguage(language)
	return room.ParticipantIDs(senderID), true
}

// UpdateCursor records the sender's cursor position, best-effort.
func (r *Registry) UpdateCursor(roomID, senderID string, c domain.Cursor) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	room.SetCursor(senderID, c)
	return room.ParticipantIDs(senderID), true
}

// Others returns the room audience excluding exceptID, for pure trigger
// events with no registry effect.
func (r *Registry) Others(roomID, exceptID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.ParticipantIDs(exceptID)
}

// Get returns a read-only snapshot for status queries.
func (r *Registry) Get(roomID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{}, domain.ErrRoomNotFound
	}
	return snapshotOf(room), nil
}

// Bind records the connection -> (participant, room) mapping. The disconnect
// path has no payload, so this table is the only way to find what to clean up.
func (r *Registry) Bind(connID string, p domain.Participant, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = binding{participant: p, roomID: roomID}
}

// Unbind removes and returns the connection binding.
func (r *Registry) Unbind(connID string) (domain.Participant, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[connID]
	if !ok {
		return domain.Participant{}, "", domain.ErrNotBound
	}
	delete(r.conns, connID)
	return b.participant, b.roomID, nil
}

// Disconnect unbinds the connection and removes its participant from its
// room in one atomic step. The second call for the same connection id is a
// silent no-op, so transport-level close and explicit teardown can both
// funnel through here.
func (r *Registry) Disconnect(connID string) (DisconnectResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[connID]
	if !ok {
		return DisconnectResult{}, false
	}
	delete(r.conns, connID)

	remaining, deleted := r.removeLocked(b.roomID, connID)
	return DisconnectResult{
		Participant: b.participant,
		RoomID:      b.roomID,
		Remaining:   remaining,
		RoomDeleted: deleted,
	}, true
}

// Stats reports current room and bound-participant counts.
func (r *Registry) Stats() (rooms, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.conns)
}

func snapshotOf(room *domain.Room) Snapshot {
	return Snapshot{
		RoomID:       room.ID,
		CreatorID:    room.CreatorID,
		Participants: room.Participants(),
		Code:         room.Code,
		Language:     room.Language,
		CreatedAt:    room.CreatedAt,
	}
}
