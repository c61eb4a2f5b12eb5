// Package protocol defines the wire format spoken between the relay and
// editor clients. Every event is a Message envelope with a type tag and a
// JSON payload whose schema is fixed per tag.
package protocol

import (
	"encoding/json"
	"math/rand"
	"strings"
)

// Client -> relay events.
const (
	EventCreateRoom     = "create-room"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventExecuteCode    = "execute-code"
	EventCursorMove     = "cursor-move"
	EventPing           = "ping"
)

// Relay -> client events.
const (
	EventConnected       = "connected" // assigned connection id, sent once after upgrade
	EventRoomJoined      = "room-joined"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventCodeChanged     = "code-changed"
	EventLanguageChanged = "language-changed"
	EventCodeExecuted    = "code-executed"
	EventCursorMoved     = "cursor-moved"
	EventPong            = "pong"
	EventError           = "error"
)

// Error codes carried by EventError payloads. Creation/join failures must be
// distinguishable so clients can show an actionable message.
const (
	ErrCodeRoomExists   = "room_exists"
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeBadEvent     = "bad_event"
	ErrCodeInternal     = "internal"
)

// DefaultLanguage is assumed when a room is created without a language tag.
const DefaultLanguage = "javascript"

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with v marshaled as the payload. A nil v
// produces a payload-less message (pure trigger events).
func NewMessage(eventType string, v any) (Message, error) {
	msg := Message{Type: eventType}
	if v == nil {
		return msg, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = b
	return msg, nil
}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one connected client's identity and presence info. ID is the
// relay-assigned connection id.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Cursor Cursor `json:"cursor"`
	Active bool   `json:"isActive"`
}

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

type CreateRoomPayload struct {
	RoomID   string      `json:"roomId" validate:"required,max=64"`
	User     Participant `json:"user" validate:"required"`
	Code     string      `json:"code"`
	Language string      `json:"language"`
}

type JoinRoomPayload struct {
	RoomID string      `json:"roomId" validate:"required,max=64"`
	User   Participant `json:"user" validate:"required"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
	UserID string `json:"userId" validate:"required"`
}

// CodePayload carries a whole-document snapshot, both directions.
type CodePayload struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
	Code   string `json:"code"`
}

type LanguagePayload struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	Language string `json:"language" validate:"required,max=32"`
}

type ExecutePayload struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type CursorMovePayload struct {
	RoomID string  `json:"roomId" validate:"required,max=64"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type RoomJoinedPayload struct {
	RoomID string        `json:"roomId"`
	Users  []Participant `json:"users"`
}

type CursorMovedPayload struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateRoomID returns a 6-character uppercase alphanumeric room id.
// Collisions are possible and handled by the relay's duplicate rejection.
func GenerateRoomID() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

// NormalizeRoomID canonicalizes a human-typed room id before transmission.
// The relay stores ids case-sensitively; normalization is the client's job.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
