package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codepilot/collab-relay/protocol"
)

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	router   *Router

	pingEvery time.Duration
}

func NewServer(hub *Hub, router *Router) *Server {
	return &Server{
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, uuid.NewString())
	s.hub.Add(c)
	slog.Info("connection established", "conn", c.id)

	// the client needs its relay-assigned id before it can build a
	// participant record
	if err := c.Send(mustMessage(protocol.EventConnected, protocol.ConnectedPayload{UserID: c.id})); err != nil {
		slog.Warn("ws send connected failed", "conn", c.id, "err", err)
	}

	go s.writeLoop(c)
	s.readLoop(c)

	// transport closed: clean or dirty, both funnel through the same path
	s.hub.Remove(c.id)
	s.router.Disconnect(c.id)
	_ = c.Close()
	slog.Info("connection closed", "conn", c.id)
}

func (s *Server) readLoop(c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.router.sendError(c.id, protocol.ErrCodeBadEvent, "malformed event")
			continue
		}
		s.router.Dispatch(c.id, msg)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}

func mustMessage(eventType string, payload any) protocol.Message {
	msg, err := protocol.NewMessage(eventType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

type wsConn struct {
	conn   *websocket.Conn
	id     string
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, id string) *wsConn {
	return &wsConn{
		conn:   c,
		id:     id,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg protocol.Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}
