package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"love-album-backend/internal/services"
)

// MessageHandler handles message board HTTP requests
type MessageHandler struct {
	album *services.AlbumService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(album *services.AlbumService) *MessageHandler {
	return &MessageHandler{album: album}
}

// PostMessageRequest is the body of POST /api/v1/messages
type PostMessageRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// GetMessages handles GET /api/v1/messages
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages := h.album.Messages()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    len(messages),
	})
}

// PostMessage handles POST /api/v1/messages
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	msg, state, err := h.album.PostMessage(r.Context(), req.ID, req.Content)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    msg,
		"sync_state": state,
	})
}

// DeleteMessage handles DELETE /api/v1/messages/{id}
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	state, err := h.album.DeleteMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sync_state": state})
}
