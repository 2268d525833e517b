package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/claude-refine/internal/loop"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub fans loop events out to connected websocket clients.
type WSHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewWSHub creates a new websocket hub
func NewWSHub() *WSHub {
	return &WSHub{conns: make(map[*websocket.Conn]bool)}
}

// Broadcast sends an event to all connected clients, dropping
// connections that fail to write.
func (h *WSHub) Broadcast(event loop.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *WSHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.wsHub.add(conn)

		// Drain reads so control frames are processed; exit on close.
		go func() {
			defer s.wsHub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
