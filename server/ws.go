package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/starforge-mobile/datasync/updater"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Companion UIs connect from app webviews with arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventHub fans pipeline events out to connected websocket clients.
type eventHub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{conns: map[*websocket.Conn]struct{}{}}
}

// Broadcast sends one event to every connected client. Write errors drop the
// connection; slow consumers never stall the pipeline.
func (h *eventHub) Broadcast(ev updater.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *eventHub) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// Reader loop exists only to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.conns, conn)
				h.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = map[*websocket.Conn]struct{}{}
}
