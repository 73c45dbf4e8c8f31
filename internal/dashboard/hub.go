package dashboard

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stratflow/logger"
	"stratflow/models"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard serves read-only run state, so any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsHub fans pipeline updates out to connected websocket clients. A client
// that fails a write is dropped immediately rather than backing up the
// broadcaster.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     *logger.Entry
}

func newWSHub(log *logger.Log) *wsHub {
	return &wsHub{
		clients: map[*websocket.Conn]struct{}{},
		log:     log.WithComponent("dashboard_ws"),
	}
}

func (h *wsHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logger.Fields{"clients": count}).Info("websocket client connected")

	// Drain incoming frames so close handshakes and pings are serviced; the
	// feed is one-way and client payloads are discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *wsHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (h *wsHub) broadcast(update models.DashboardUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(update); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
