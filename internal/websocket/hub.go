package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pybot-backend/internal/middleware"
	"pybot-backend/internal/models"
)

const (
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// replier answers one chat payload with a status and user-facing text.
type replier interface {
	Reply(ctx context.Context, sessionID string, payload []byte) (int, string)
}

// Hub serves the chat over WebSocket: every text frame is one chat request
// and gets exactly one reply frame.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	chat        replier
	log         logrus.FieldLogger
	wg          sync.WaitGroup
	closed      bool
}

func NewHub(chat replier, log logrus.FieldLogger) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		chat:        chat,
		log:         log,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	if h.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	if !h.registerConnection(sessionID, conn) {
		closeGoingAway(conn)
		return
	}

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(r.Context())

	go func() {
		defer h.wg.Done()
		defer h.unregisterConnection(sessionID, conn)
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			status, text := h.chat.Reply(ctx, sessionID, payload)

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(models.SocketReply{Response: text, Status: status}); err != nil {
				h.log.WithFields(logrus.Fields{
					"session_id": sessionID,
					"error":      err,
				}).Warn("WebSocket write failed")
				break
			}
		}
	}()
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// registerConnection tracks conn and counts its read loop. It refuses once Close has started.
func (h *Hub) registerConnection(sessionID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.connections[sessionID] = append(h.connections[sessionID], conn)
	h.wg.Add(1)

	h.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"total":      len(h.connections[sessionID]),
	}).Info("WebSocket connected")
	return true
}

func (h *Hub) unregisterConnection(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[sessionID]
	for i, c := range conns {
		if c == conn {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
	}

	h.log.WithField("session_id", sessionID).Info("WebSocket disconnected")
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// Close refuses new connections, sends a close frame to every client and
// waits for their read loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var open []*websocket.Conn
	for _, conns := range h.connections {
		open = append(open, conns...)
	}
	h.mu.Unlock()

	for _, conn := range open {
		closeGoingAway(conn)
	}

	h.wg.Wait()
}

func closeGoingAway(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
