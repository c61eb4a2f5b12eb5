package domain

import "time"

// Room is a named collaboration session: one shared document/language state
// plus the set of joined participants. Not safe for concurrent use on its
// own; the registry serializes all access.
type Room struct {
	ID           string
	CreatorID    string
	Code         string
	Language     string
	CreatedAt    time.Time
	participants map[string]Participant
}

func NewRoom(id, creatorID, code, language string) *Room {
	if language == "" {
		language = "javascript"
	}
	return &Room{
		ID:           id,
		CreatorID:    creatorID,
		Code:         code,
		Language:     language,
		CreatedAt:    time.Now(),
		participants: make(map[string]Participant),
	}
}

func (r *Room) AddParticipant(p Participant) {
	r.participants[p.ID] = p
}

func (r *Room) RemoveParticipant(id string) {
	delete(r.participants, id)
}

func (r *Room) HasParticipant(id string) bool {
	_, ok := r.participants[id]
	return ok
}

func (r *Room) SetCursor(id string, c Cursor) bool {
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.Cursor = c
	r.participants[id] = p
	return true
}

// Participants returns a copy of the participant set. Order is unspecified
// and not part of the protocol contract.
func (r *Room) Participants() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// ParticipantIDs returns the ids of everyone in the room except exceptID,
// which is the usual broadcast audience.
func (r *Room) ParticipantIDs(exceptID string) []string {
	out := make([]string, 0, len(r.participants))
	for id := range r.participants {
		if id != exceptID {
			out = append(out, id)
		}
	}
	return out
}

func (r *Room) Size() int {
	return len(r.participants)
}

func (r *Room) UpdateCode(code string) {
	r.Code = code
}

func (r *Room) UpdateLanguage(language string) {
	r.Language = language
}
