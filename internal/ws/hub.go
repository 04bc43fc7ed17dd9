package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub queues notifications durably and pushes them to connected
// clients per user. It is the notification emitter: fire-and-forget,
// failures are logged and never fail the calling operation.
type Hub struct {
	DB *db.DB

	mu      sync.RWMutex
	clients map[int64]map[*client]bool
}

// NewHub creates a notification hub.
func NewHub(database *db.DB) *Hub {
	return &Hub{DB: database, clients: make(map[int64]map[*client]bool)}
}

// Notify persists a notification row and pushes it to the user's open
// sockets. Implements the market Notifier contract.
func (h *Hub) Notify(ctx context.Context, userID int64, notifType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal payload: %v", err)
		return
	}
	n := &models.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    notifType,
		Payload: data,
	}
	if err := db.InsertNotification(ctx, h.DB.Pool, n); err != nil {
		log.Printf("notify: queue notification: %v", err)
		return
	}

	msg, err := json.Marshal(map[string]any{"id": n.ID, "type": notifType, "payload": payload})
	if err != nil {
		log.Printf("notify: marshal message: %v", err)
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range conns {
		if err := c.send(msg); err != nil {
			log.Printf("notify: send to user %d: %v", userID, err)
			h.remove(userID, c)
			continue
		}
		delivered = true
	}
	if delivered {
		if err := db.MarkNotificationDelivered(ctx, h.DB.Pool, n.ID); err != nil {
			log.Printf("notify: mark delivered: %v", err)
		}
	}
}

func (h *Hub) remove(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Handler upgrades an authenticated request to a websocket and streams
// the user's notifications until the peer disconnects.
func (h *Hub) Handler(userID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws: upgrade: %v", err)
			return
		}

		c := &client{conn: conn}
		h.mu.Lock()
		if h.clients[userID] == nil {
			h.clients[userID] = make(map[*client]bool)
		}
		h.clients[userID][c] = true
		h.mu.Unlock()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(userID, c)
				conn.Close()
				break
			}
		}
	}
}
