package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"love-album-backend/internal/metrics"
	"love-album-backend/internal/models"
)

// WebSocket message types
const (
	WSTypeSubscribe    = "subscribe"
	WSTypeUnsubscribe  = "unsubscribe"
	WSTypeSnapshot     = "snapshot"
	WSTypeNotification = "notification"
	WSTypeError        = "error"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type       string            `json:"type"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Collection models.Collection `json:"collection,omitempty"`
	PhotoID    string            `json:"photo_id,omitempty"`
	Level      Level             `json:"level,omitempty"`
	Message    string            `json:"message,omitempty"`
	Data       interface{}       `json:"data,omitempty"`
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
	}
}

// Register registers a new WebSocket connection
func (h *WSHub) Register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[clientID]; exists {
		existing.conn.Close()
	}

	h.connections[clientID] = &wsClient{conn: conn}
	metrics.WebSocketClients.Set(float64(len(h.connections)))

	log.Info().Str("client_id", clientID).Msg("WebSocket connection registered")
}

// Unregister removes a WebSocket connection
func (h *WSHub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.connections[clientID]; exists {
		client.conn.Close()
		delete(h.connections, clientID)
		metrics.WebSocketClients.Set(float64(len(h.connections)))
		log.Info().Str("client_id", clientID).Msg("WebSocket connection unregistered")
	}
}

// SendToClient sends a message to one connection
func (h *WSHub) SendToClient(clientID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[clientID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("client %s is not connected", clientID)
	}

	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(clientID)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Broadcast sends a message to every connection
func (h *WSHub) Broadcast(message WSMessage) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if err := h.SendToClient(id, message); err != nil {
			log.Error().Err(err).Str("client_id", id).Msg("Failed to broadcast message")
		}
	}
}

// Notify implements Notifier by broadcasting a toast to every connection
func (h *WSHub) Notify(level Level, message string) {
	h.Broadcast(WSMessage{Type: WSTypeNotification, Level: level, Message: message})
}

// SendSnapshot forwards a coordinator change to one connection
func (h *WSHub) SendSnapshot(clientID string, change Change) error {
	return h.SendToClient(clientID, WSMessage{
		Type:       WSTypeSnapshot,
		Collection: change.Collection,
		PhotoID:    change.PhotoID,
		Data:       change,
	})
}

// IsOnline checks if a connection is registered
func (h *WSHub) IsOnline(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[clientID]
	return exists
}

// Count returns the number of registered connections
func (h *WSHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
