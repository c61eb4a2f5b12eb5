package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codepilot/collab-relay/internal/domain"
	"github.com/codepilot/collab-relay/internal/metrics"
	"github.com/codepilot/collab-relay/internal/registry"
	"github.com/codepilot/collab-relay/protocol"
)

// Router validates inbound events against registry state, applies the
// mutation, and decides the fan-out. It is stateless over the registry and
// hub: one instance serves every connection.
type Router struct {
	reg *registry.Registry
	hub *Hub
}

func NewRouter(reg *registry.Registry, hub *Hub) *Router {
	return &Router{reg: reg, hub: hub}
}

// Dispatch routes one inbound event. Any failure, including a handler panic,
// degrades to an error event on the sending connection; one participant's
// malformed traffic never affects the rest of the room.
func (rt *Router) Dispatch(connID string, msg protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panic", "conn", connID, "type", msg.Type, "panic", rec)
			rt.sendError(connID, protocol.ErrCodeInternal, "internal error")
		}
	}()

	metrics.EventsTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case protocol.EventCreateRoom:
		rt.handleCreateRoom(connID, msg.Payload)
	case protocol.EventJoinRoom:
		rt.handleJoinRoom(connID, msg.Payload)
	case protocol.EventLeaveRoom:
		rt.handleLeaveRoom(connID, msg.Payload)
	case protocol.EventCodeChange:
		rt.handleCodeChange(connID, msg.Payload)
	case protocol.EventLanguageChange:
		rt.handleLanguageChange(connID, msg.Payload)
	case protocol.EventExecuteCode:
		rt.handleExecuteCode(connID, msg.Payload)
	case protocol.EventCursorMove:
		rt.handleCursorMove(connID, msg.Payload)
	case protocol.EventPing:
		rt.send(connID, protocol.EventPong, nil)
	default:
		rt.sendError(connID, protocol.ErrCodeBadEvent, fmt.Sprintf("unknown event type %q", msg.Type))
	}
}

// Disconnect cleans up after a closed transport. The registry makes the
// second call for the same connection a no-op, so exactly one user-left
// broadcast goes out per connection.
func (rt *Router) Disconnect(connID string) {
	res, ok := rt.reg.Disconnect(connID)
	if !ok {
		return
	}
	slog.Info("participant disconnected", "conn", connID, "room", res.RoomID, "room_deleted", res.RoomDeleted)
	rt.sendToAll(idsOf(res.Remaining), protocol.EventUserLeft, protocol.UserLeftPayload{UserID: connID})
}

func (rt *Router) handleCreateRoom(connID string, raw json.RawMessage) {
	var p protocol.CreateRoomPayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	creator := toDomain(p.User)
	creator.ID = connID // connection id is authoritative

	snap, err := rt.reg.CreateRoom(p.RoomID, creator, p.Code, p.Language)
	if err != nil {
		rt.sendError(connID, protocol.ErrCodeRoomExists, "room id already exists, please try again")
		return
	}
	slog.Info("room created", "room", p.RoomID, "creator", creator.Name)

	rt.send(connID, protocol.EventRoomJoined, protocol.RoomJoinedPayload{
		RoomID: snap.RoomID,
		Users:  toWire(snap.Participants),
	})
}

func (rt *Router) handleJoinRoom(connID string, raw json.RawMessage) {
	var p protocol.JoinRoomPayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	joiner := toDomain(p.User)
	joiner.ID = connID

	snap, err := rt.reg.JoinRoom(p.RoomID, joiner)
	if err != nil {
		rt.sendError(connID, protocol.ErrCodeRoomNotFound, "room not found")
		return
	}
	slog.Info("participant joined", "room", p.RoomID, "user", joiner.Name)

	// the joiner has no state yet: full snapshot to the sender,
	// presence-only notification to everyone else
	rt.send(connID, protocol.EventRoomJoined, protocol.RoomJoinedPayload{
		RoomID: snap.RoomID,
		Users:  toWire(snap.Participants),
	})
	rt.send(connID, protocol.EventCodeChanged, protocol.CodePayload{RoomID: snap.RoomID, Code: snap.Code})
	rt.send(connID, protocol.EventLanguageChanged, protocol.LanguagePayload{RoomID: snap.RoomID, Language: snap.Language})

	others := make([]string, 0, len(snap.Participants))
	for _, sp := range snap.Participants {
		if sp.ID != connID {
			others = append(others, sp.ID)
		}
	}
	rt.sendToAll(others, protocol.EventUserJoined, toWireOne(joiner))
}

func (rt *Router) handleLeaveRoom(connID string, raw json.RawMessage) {
	var p protocol.LeaveRoomPayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	remaining, deleted := rt.reg.LeaveRoom(p.RoomID, p.UserID)
	if deleted {
		slog.Info("room deleted", "room", p.RoomID)
		return
	}
	rt.sendToAll(idsOf(remaining), protocol.EventUserLeft, protocol.UserLeftPayload{UserID: p.UserID})
}

func (rt *Router) handleCodeChange(connID string, raw json.RawMessage) {
	var p protocol.CodePayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	recipients, ok := rt.reg.UpdateCode(p.RoomID, connID, p.Code)
	if !ok {
		return
	}
	rt.sendToAll(recipients, protocol.EventCodeChanged, protocol.CodePayload{RoomID: p.RoomID, Code: p.Code})
}

func (rt *Router) handleLanguageChange(connID string, raw json.RawMessage) {
	var p protocol.LanguagePayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	recipients, ok := rt.reg.UpdateLanguage(p.RoomID, connID, p.Language)
	if !ok {
		return
	}
	rt.sendToAll(recipients, protocol.EventLanguageChanged, protocol.LanguagePayload{RoomID: p.RoomID, Language: p.Language})
}

func (rt *Router) handleExecuteCode(connID string, raw json.RawMessage) {
	var p protocol.ExecutePayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	// pure trigger: each receiving client runs the execution call itself,
	// results are deliberately not synchronized
	rt.sendToAll(rt.reg.Others(p.RoomID, connID), protocol.EventCodeExecuted, nil)
}

func (rt *Router) handleCursorMove(connID string, raw json.RawMessage) {
	var p protocol.CursorMovePayload
	if !rt.decode(connID, raw, &p) {
		return
	}

	recipients, ok := rt.reg.UpdateCursor(p.RoomID, connID, domain.Cursor{X: p.X, Y: p.Y})
	if !ok {
		return
	}
	rt.sendToAll(recipients, protocol.EventCursorMoved, protocol.CursorMovedPayload{UserID: connID, X: p.X, Y: p.Y})
}

// decode unmarshals and schema-validates a payload. On failure the sender is
// notified and the connection stays open.
func (rt *Router) decode(connID string, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		rt.sendError(connID, protocol.ErrCodeBadEvent, "malformed payload")
		return false
	}
	if err := protocol.Validate(dst); err != nil {
		slog.Debug("payload failed validation", "conn", connID, "err", err)
		rt.sendError(connID, protocol.ErrCodeBadEvent, "invalid payload")
		return false
	}
	return true
}

func (rt *Router) send(connID, eventType string, payload any) {
	msg, err := protocol.NewMessage(eventType, payload)
	if err != nil {
		slog.Error("marshal outbound event", "type", eventType, "err", err)
		return
	}
	rt.hub.Send(connID, msg)
}

func (rt *Router) sendToAll(ids []string, eventType string, payload any) {
	msg, err := protocol.NewMessage(eventType, payload)
	if err != nil {
		slog.Error("marshal outbound event", "type", eventType, "err", err)
		return
	}
	rt.hub.SendTo(ids, msg)
}

func (rt *Router) sendError(connID, code, message string) {
	metrics.EventErrorsTotal.WithLabelValues(code).Inc()
	rt.send(connID, protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}

func idsOf(parts []domain.Participant) []string {
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	return ids
}

func toDomain(p protocol.Participant) domain.Participant {
	return domain.Participant{
		ID:     p.ID,
		Name:   p.Name,
		Avatar: p.Avatar,
		Cursor: domain.Cursor{X: p.Cursor.X, Y: p.Cursor.Y},
		Active: p.Active,
	}
}

func toWireOne(p domain.Participant) protocol.Participant {
	return protocol.Participant{
		ID:     p.ID,
		Name:   p.Name,
		Avatar: p.Avatar,
		Cursor: protocol.Cursor{X: p.Cursor.X, Y: p.Cursor.Y},
		Active: p.Active,
	}
}

func toWire(parts []domain.Participant) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(parts))
	for _, p := range parts {
		out = append(out, toWireOne(p))
	}
	return out
}
