package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"love-album-backend/internal/models"
	"love-album-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams collection snapshots and notifications to UI clients
type WebSocketHandler struct {
	hub   *services.WSHub
	coord *services.Coordinator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, coord *services.Coordinator) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		coord: coord,
	}
}

// clientSubscriptions holds the coordinator listeners of one connection
type clientSubscriptions struct {
	mu      sync.Mutex
	cancels map[string]func()
}

func (s *clientSubscriptions) replace(key string, cancel func()) {
	s.mu.Lock()
	old := s.cancels[key]
	s.cancels[key] = cancel
	s.mu.Unlock()
	if old != nil {
		old()
	}
}

func (s *clientSubscriptions) cancel(key string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[key]
	delete(s.cancels, key)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *clientSubscriptions) cancelAll() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = make(map[string]func())
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	clientID := uuid.New().String()
	h.hub.Register(clientID, conn)

	subs := &clientSubscriptions{cancels: make(map[string]func())}
	defer func() {
		subs.cancelAll()
		h.hub.Unregister(clientID)
	}()

	log.Info().Str("client_id", clientID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", clientID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("Failed to parse WebSocket message")
			h.sendError(clientID, "Invalid message format")
			continue
		}

		if err := h.handleMessage(clientID, subs, msg); err != nil {
			log.Debug().Err(err).Str("client_id", clientID).Str("type", msg.Type).Msg("Rejected WebSocket message")
			h.sendError(clientID, err.Error())
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(clientID string, subs *clientSubscriptions, msg services.WSMessage) error {
	switch msg.Type {
	case services.WSTypeSubscribe:
		key, err := subscriptionKey(msg)
		if err != nil {
			return err
		}
		cancel := h.coord.Subscribe(msg.Collection, msg.PhotoID, func(change services.Change) {
			if err := h.hub.SendSnapshot(clientID, change); err != nil {
				log.Debug().Err(err).Str("client_id", clientID).Msg("Failed to push snapshot")
			}
		})
		subs.replace(key, cancel)
		return nil

	case services.WSTypeUnsubscribe:
		key, err := subscriptionKey(msg)
		if err != nil {
			return err
		}
		if !subs.cancel(key) {
			return fmt.Errorf("not subscribed to %s", key)
		}
		return nil
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

func subscriptionKey(msg services.WSMessage) (string, error) {
	switch msg.Collection {
	case models.CollectionMessages, models.CollectionPhotos, models.CollectionPlanner:
		return string(msg.Collection), nil
	case models.CollectionComments:
		if msg.PhotoID == "" {
			return "", fmt.Errorf("photo_id is required for %s", msg.Collection)
		}
		return string(msg.Collection) + "/" + msg.PhotoID, nil
	}
	return "", fmt.Errorf("unknown collection %q", msg.Collection)
}

// sendError sends an error message to one connection
func (h *WebSocketHandler) sendError(clientID, message string) {
	if err := h.hub.SendToClient(clientID, services.WSMessage{Type: services.WSTypeError, Message: message}); err != nil {
		log.Debug().Err(err).Str("client_id", clientID).Msg("Failed to send error message")
	}
}
