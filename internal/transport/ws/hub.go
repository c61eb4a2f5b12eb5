package ws

import (
	"sync"

	"github.com/codepilot/collab-relay/internal/metrics"
	"github.com/codepilot/collab-relay/protocol"
)

type Conn interface {
	ID() string
	Send(msg protocol.Message) error
	Close() error
}

// Hub tracks live connections by id. Room membership lives in the registry;
// the hub only resolves participant ids to transports at fan-out time.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

// Send delivers to a single connection. Unknown ids are dropped: the
// connection may have gone away between registry lookup and delivery.
func (h *Hub) Send(id string, msg protocol.Message) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = c.Send(msg) // best-effort
	metrics.BroadcastsTotal.Inc()
}

// SendTo fans out to each listed connection.
func (h *Hub) SendTo(ids []string, msg protocol.Message) {
	for _, id := range ids {
		h.Send(id, msg)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
