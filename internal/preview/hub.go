package preview

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/ledsim/internal/store"
)

// writeTimeout bounds a single websocket write so one slow browser cannot
// stall the render loop.
const writeTimeout = 200 * time.Millisecond

// Message types sent to browsers.
const (
	TypePositions = "positions"
	TypeActivity  = "activity"
)

// Message is the JSON frame pushed to connected browsers.
type Message struct {
	Type      string           `json:"type"`
	Frame     uint64           `json:"frame,omitempty"`
	Positions []store.Position `json:"positions,omitempty"`
	Activity  []bool           `json:"activity,omitempty"`
}

// Hub is a render sink that mirrors the LED array to browsers over websockets.
//
// Hub remembers the last topology and frame so that a browser connecting
// mid-session is brought up to date immediately. Clients whose writes fail
// are dropped.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	positions []store.Position
	activity  []bool
	frame     uint64
	closed    bool
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewHub creates an empty [Hub].
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// SetPositions stores the topology and pushes it to every client.
func (h *Hub) SetPositions(positions []store.Position) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.positions = positions
	h.broadcast(Message{Type: TypePositions, Positions: positions})
	return nil
}

// SetActivity stores the frame and pushes it to every client.
func (h *Hub) SetActivity(activity []bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frame++
	h.activity = activity
	h.broadcast(Message{Type: TypeActivity, Frame: h.frame, Activity: activity})
	return nil
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
//
// The current topology and frame are sent right away. A read loop runs until
// the browser goes away, then the connection is unregistered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	if h.positions != nil {
		h.send(conn, Message{Type: TypePositions, Positions: h.positions})
	}
	if h.activity != nil {
		h.send(conn, Message{Type: TypeActivity, Frame: h.frame, Activity: h.activity})
	}
	h.mu.Unlock()

	h.logger.Debug("preview client connected", "remote", r.RemoteAddr)

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every client. Connections arriving afterwards are
// closed right after the upgrade.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// broadcast must be called with h.mu held.
func (h *Hub) broadcast(msg Message) {
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode preview message", "error", err)
		return
	}
	for conn := range h.clients {
		if err := h.write(conn, b); err != nil {
			h.logger.Debug("dropping preview client", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// send must be called with h.mu held.
func (h *Hub) send(conn *websocket.Conn, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.write(conn, b); err != nil {
		h.logger.Debug("initial preview write failed", "error", err)
	}
}

func (h *Hub) write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
