package api

import (
	"net/http"
	"sync"

	"github.com/adtimokhin/handover/internal/log"
)

// broadcastHub fans incoming frames out to every connection attached to
// the broadcast endpoint.
type broadcastHub struct {
	mu      sync.Mutex
	clients map[*wsConn]struct{}
}

func newBroadcastHub() *broadcastHub {
	return &broadcastHub{clients: make(map[*wsConn]struct{})}
}

func (h *broadcastHub) add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *broadcastHub) remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *broadcastHub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast delivers the frame to every attached connection, the sender
// included. Failed writes are dropped; the failing client's own read
// loop will notice the dead connection and detach it.
func (h *broadcastHub) broadcast(data []byte) {
	h.mu.Lock()
	targets := make([]*wsConn, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		_ = c.WriteText(data)
	}
}

// handleEchoWS repeats every frame back to its sender.
func (s *Server) handleEchoWS(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := newWSConn(raw, s.cfg.ReadLimit)
	defer raw.Close()

	for {
		data, err := conn.ReadText()
		if err != nil {
			return
		}
		if err := conn.WriteText(data); err != nil {
			return
		}
	}
}

// handleBroadcastWS attaches the connection to the hub and fans its
// frames out to every hub member.
func (s *Server) handleBroadcastWS(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := newWSConn(raw, s.cfg.ReadLimit)
	s.hub.add(conn)
	defer func() {
		s.hub.remove(conn)
		_ = raw.Close()
	}()

	logger := log.WithComponentFromContext(r.Context(), "broadcast")
	logger.Debug().
		Str(log.FieldEvent, "broadcast.joined").
		Int("clients", s.hub.size()).
		Msg("connection joined broadcast hub")

	for {
		data, err := conn.ReadText()
		if err != nil {
			return
		}
		s.hub.broadcast(append([]byte("Broadcast: "), data...))
	}
}
