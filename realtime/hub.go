package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cinema_booking/logger"
	"cinema_booking/model"

	"github.com/gofiber/contrib/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SeatChange is the delta pushed to seat-map subscribers.
type SeatChange struct {
	SessionID uint             `json:"sessionId"`
	Seats     []string         `json:"seats"`
	Status    model.SeatStatus `json:"status"`
}

func Channel(sessionID uint) string {
	return fmt.Sprintf("session:%d:seats", sessionID)
}

// Hub fans seat changes out to websocket clients. With a redis client the
// changes travel over pub/sub so every instance sees them; without one
// they are broadcast to connections held by this process only.
type Hub struct {
	redis   *redis.Client
	mu      sync.Mutex
	clients map[uint]map[*websocket.Conn]bool
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{redis: client, clients: make(map[uint]map[*websocket.Conn]bool)}
}

// SeatsChanged is called after a committed transaction changed seat statuses.
func (h *Hub) SeatsChanged(ctx context.Context, sessionID uint, labels []string, status model.SeatStatus) {
	if len(labels) == 0 {
		return
	}
	payload, err := json.Marshal(SeatChange{SessionID: sessionID, Seats: labels, Status: status})
	if err != nil {
		return
	}
	if h.redis != nil {
		if err := h.redis.Publish(ctx, Channel(sessionID), payload).Err(); err != nil {
			logger.Warn("Publish seat change failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
		return
	}
	h.broadcast(sessionID, payload)
}

func (h *Hub) broadcast(sessionID uint, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients[sessionID] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(h.clients[sessionID], conn)
		}
	}
}

func (h *Hub) register(sessionID uint, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.clients[sessionID][c] = true
}

func (h *Hub) unregister(sessionID uint, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[sessionID], c)
	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
	}
}

// Connections reports how many sockets are watching a session.
func (h *Hub) Connections(sessionID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

// Serve sends the initial snapshot and then streams changes until the
// client disconnects. Once registered, only broadcast writes to the
// connection, under the hub lock.
func (h *Hub) Serve(c *websocket.Conn, sessionID uint, snapshot any) {
	if err := c.WriteJSON(snapshot); err != nil {
		_ = c.Close()
		return
	}

	h.register(sessionID, c)
	defer func() {
		h.unregister(sessionID, c)
		_ = c.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if h.redis == nil {
		<-done
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pubsub := h.redis.Subscribe(ctx, Channel(sessionID))
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
