// Package client implements the editor-side session controller for the
// collaboration relay: one websocket connection, local mirrors of room
// state, and the outbound half of the event protocol. Inbound events are
// applied wholesale and never re-emitted, so broadcast loops are impossible
// by construction.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/codepilot/collab-relay/protocol"
)

var (
	ErrRoomExists   = errors.New("room id already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotConnected = errors.New("not connected to relay")
	ErrReplyTimeout = errors.New("timed out waiting for relay reply")
)

type Config struct {
	URL string // ws:// endpoint of the relay

	// Display identity; randomized when empty.
	Name   string
	Avatar string

	ConnectTimeout time.Duration // total budget for dial attempts (default 10s)
	ReplyTimeout   time.Duration // wait for a create/join reply (default 5s)

	Dialer *websocket.Dialer
}

// Handlers receive inbound room events. All callbacks are optional and run
// on the session's read goroutine; they must not block for long.
type Handlers struct {
	OnRoomJoined      func(roomID string, users []protocol.Participant)
	OnUserJoined      func(user protocol.Participant)
	OnUserLeft        func(userID string)
	OnCodeChanged     func(code string)
	OnLanguageChanged func(language string)
	OnExecuteRequested func()
	OnCursorMoved     func(userID string, x, y float64)
	OnError           func(code, message string)
	OnDisconnect      func(err error)
}

type reply struct {
	joined  *protocol.RoomJoinedPayload
	failure *protocol.ErrorPayload
}

// Session owns exactly one relay connection. Close it on teardown: the
// relay cannot tell a clean exit from a network drop and relies on the
// transport closing to clean up the participant entry.
type Session struct {
	cfg      Config
	handlers Handlers

	writeMu sync.Mutex // one writer on the wire at a time

	mu          sync.Mutex
	conn        *websocket.Conn
	self        protocol.Participant
	roomID      string
	users       []protocol.Participant
	lastCursor  protocol.Cursor
	cursorSent  bool
	connectedCh chan struct{}
	pendingCh   chan reply
	readerDone  chan struct{}
}

func New(cfg Config, handlers Handlers) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Name == "" || cfg.Avatar == "" {
		name, avatar := RandomProfile()
		if cfg.Name == "" {
			cfg.Name = name
		}
		if cfg.Avatar == "" {
			cfg.Avatar = avatar
		}
	}
	return &Session{cfg: cfg, handlers: handlers}
}

// Connect dials the relay with capped exponential backoff and waits for the
// relay-assigned connection id. It is called lazily by CreateRoom/JoinRoom;
// calling it twice is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = s.cfg.ConnectTimeout

	conn, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
		c, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
		return c, err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("connect to relay at %s: %w", s.cfg.URL, err)
	}

	connected := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.connectedCh = connected
	s.readerDone = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn)

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-time.After(s.cfg.ReplyTimeout):
		_ = conn.Close()
		return fmt.Errorf("%w: no connection handshake", ErrReplyTimeout)
	}
}

// CreateRoom generates a fresh room id, creates the room seeded with the
// current document, and returns the id to share with other participants.
func (s *Session) CreateRoom(ctx context.Context, code, language string) (string, error) {
	if err := s.Connect(ctx); err != nil {
		return "", err
	}

	roomID := protocol.GenerateRoomID()
	s.mu.Lock()
	self := s.self
	s.mu.Unlock()

	rep, err := s.emitAndWait(ctx, protocol.EventCreateRoom, protocol.CreateRoomPayload{
		RoomID:   roomID,
		User:     self,
		Code:     code,
		Language: language,
	})
	if err != nil {
		return "", err
	}
	if rep.failure != nil {
		return "", fmt.Errorf("%w: %s", ErrRoomExists, rep.failure.Message)
	}
	return rep.joined.RoomID, nil
}

// JoinRoom normalizes a human-typed room id and joins it. The relay follows
// up with the room's current document and language snapshots through the
// OnCodeChanged/OnLanguageChanged handlers.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	roomID = protocol.NormalizeRoomID(roomID)
	s.mu.Lock()
	self := s.self
	s.mu.Unlock()

	rep, err := s.emitAndWait(ctx, protocol.EventJoinRoom, protocol.JoinRoomPayload{
		RoomID: roomID,
		User:   self,
	})
	if err != nil {
		return err
	}
	if rep.failure != nil {
		if rep.failure.Code == protocol.ErrCodeRoomNotFound {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		return fmt.Errorf("join room %s: %s", roomID, rep.failure.Message)
	}
	return nil
}

// Leave exits the current room without closing the connection.
func (s *Session) Leave() error {
	s.mu.Lock()
	roomID, selfID := s.roomID, s.self.ID
	s.roomID = ""
	s.users = nil
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}
	return s.emit(protocol.EventLeaveRoom, protocol.LeaveRoomPayload{RoomID: roomID, UserID: selfID})
}

// SetCode publishes a whole-document snapshot. Local state is already
// authoritative for the sender, so nothing comes back.
func (s *Session) SetCode(code string) error {
	roomID := s.RoomID()
	if roomID == "" {
		return nil
	}
	return s.emit(protocol.EventCodeChange, protocol.CodePayload{RoomID: roomID, Code: code})
}

func (s *Session) SetLanguage(language string) error {
	roomID := s.RoomID()
	if roomID == "" {
		return nil
	}
	return s.emit(protocol.EventLanguageChange, protocol.LanguagePayload{RoomID: roomID, Language: language})
}

// RunCode asks every other participant to trigger their own execution call.
// Results are not synchronized; each client shows its own output.
func (s *Session) RunCode() error {
	roomID := s.RoomID()
	if roomID == "" {
		return nil
	}
	return s.emit(protocol.EventExecuteCode, protocol.ExecutePayload{RoomID: roomID})
}

// MoveCursor publishes the local cursor position, skipping duplicates.
func (s *Session) MoveCursor(x, y float64) error {
	s.mu.Lock()
	roomID := s.roomID
	cur := protocol.Cursor{X: x, Y: y}
	if roomID == "" || (s.cursorSent && cur == s.lastCursor) {
		s.mu.Unlock()
		return nil
	}
	s.lastCursor = cur
	s.cursorSent = true
	s.mu.Unlock()

	return s.emit(protocol.EventCursorMove, protocol.CursorMovePayload{RoomID: roomID, X: x, Y: y})
}

// Ping sends an application-level ping; the relay answers with pong.
func (s *Session) Ping() error {
	return s.emit(protocol.EventPing, nil)
}

// Self returns the local participant record, valid after Connect.
func (s *Session) Self() protocol.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Users returns the mirrored participant list of the current room.
func (s *Session) Users() []protocol.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Participant, len(s.users))
	copy(out, s.users)
	return out
}

// Close releases the transport. The relay treats this exactly like a
// network drop and removes the participant from its room.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	done := s.readerDone
	s.conn = nil
	s.roomID = ""
	s.users = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := conn.Close()

	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return err
}

func (s *Session) emit(eventType string, payload any) error {
	msg, err := protocol.NewMessage(eventType, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

func (s *Session) emitAndWait(ctx context.Context, eventType string, payload any) (reply, error) {
	ch := make(chan reply, 1)
	s.mu.Lock()
	s.pendingCh = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pendingCh = nil
		s.mu.Unlock()
	}()

	if err := s.emit(eventType, payload); err != nil {
		return reply{}, err
	}

	select {
	case rep := <-ch:
		return rep, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-time.After(s.cfg.ReplyTimeout):
		return reply{}, ErrReplyTimeout
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("drop unparseable relay event", "err", err)
			continue
		}
		s.apply(msg)
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.roomID = ""
		s.users = nil
	}
	done := s.readerDone
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(readErr)
	}
}

// apply updates local mirrors from one inbound event. State is overwritten
// wholesale and nothing is echoed back.
func (s *Session) apply(msg protocol.Message) {
	switch msg.Type {
	case protocol.EventConnected:
		var p protocol.ConnectedPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		s.self = protocol.Participant{ID: p.UserID, Name: s.cfg.Name, Avatar: s.cfg.Avatar, Active: true}
		ch := s.connectedCh
		s.connectedCh = nil
		s.mu.Unlock()
		if ch != nil {
			close(ch)
		}

	case protocol.EventRoomJoined:
		var p protocol.RoomJoinedPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		s.roomID = p.RoomID
		s.users = p.Users
		pending := s.pendingCh
		s.mu.Unlock()
		if pending != nil {
			pending <- reply{joined: &p}
		}
		if s.handlers.OnRoomJoined != nil {
			s.handlers.OnRoomJoined(p.RoomID, p.Users)
		}

	case protocol.EventUserJoined:
		var p protocol.Participant
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		s.users = append(s.users, p)
		s.mu.Unlock()
		if s.handlers.OnUserJoined != nil {
			s.handlers.OnUserJoined(p)
		}

	case protocol.EventUserLeft:
		var p protocol.UserLeftPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		kept := s.users[:0]
		for _, u := range s.users {
			if u.ID != p.UserID {
				kept = append(kept, u)
			}
		}
		s.users = kept
		s.mu.Unlock()
		if s.handlers.OnUserLeft != nil {
			s.handlers.OnUserLeft(p.UserID)
		}

	case protocol.EventCodeChanged:
		var p protocol.CodePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		if s.handlers.OnCodeChanged != nil {
			s.handlers.OnCodeChanged(p.Code)
		}

	case protocol.EventLanguageChanged:
		var p protocol.LanguagePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		if s.handlers.OnLanguageChanged != nil {
			s.handlers.OnLanguageChanged(p.Language)
		}

	case protocol.EventCodeExecuted:
		if s.handlers.OnExecuteRequested != nil {
			s.handlers.OnExecuteRequested()
		}

	case protocol.EventCursorMoved:
		var p protocol.CursorMovedPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		for i := range s.users {
			if s.users[i].ID == p.UserID {
				s.users[i].Cursor = protocol.Cursor{X: p.X, Y: p.Y}
			}
		}
		s.mu.Unlock()
		if s.handlers.OnCursorMoved != nil {
			s.handlers.OnCursorMoved(p.UserID, p.X, p.Y)
		}

	case protocol.EventError:
		var p protocol.ErrorPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		pending := s.pendingCh
		s.mu.Unlock()
		if pending != nil {
			pending <- reply{failure: &p}
			return
		}
		if s.handlers.OnError != nil {
			s.handlers.OnError(p.Code, p.Message)
		}

	case protocol.EventPong:
		// connection check only
	}
}
