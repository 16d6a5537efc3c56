package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"love-album-backend/internal/middleware"
	"love-album-backend/internal/models"
	"love-album-backend/internal/services"
)

// CommentHandler handles photo comment HTTP requests
type CommentHandler struct {
	album *services.AlbumService
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(album *services.AlbumService) *CommentHandler {
	return &CommentHandler{album: album}
}

// AddCommentRequest is the body of POST /api/v1/photos/{photo_id}/comments.
// Author falls back to the X-Person header.
type AddCommentRequest struct {
	Author models.Person `json:"author"`
	Text   string        `json:"text"`
}

// GetComments handles GET /api/v1/photos/{photo_id}/comments
func (h *CommentHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	comments := h.album.Comments(chi.URLParam(r, "photo_id"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"comments": comments,
		"total":    len(comments),
	})
}

// AddComment handles POST /api/v1/photos/{photo_id}/comments
func (h *CommentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req AddCommentRequest
	if err := decodeBody(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Author == "" {
		req.Author = middleware.GetPerson(r.Context())
	}

	comment, state, err := h.album.AddComment(r.Context(), chi.URLParam(r, "photo_id"), req.Author, req.Text)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"comment":    comment,
		"sync_state": state,
	})
}

// DeleteComment handles DELETE /api/v1/photos/{photo_id}/comments/{comment_id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	state, err := h.album.DeleteComment(r.Context(), chi.URLParam(r, "photo_id"), chi.URLParam(r, "comment_id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sync_state": state})
}

// ClearComments handles DELETE /api/v1/photos/{photo_id}/comments
func (h *CommentHandler) ClearComments(w http.ResponseWriter, r *http.Request) {
	state := h.album.ClearComments(r.Context(), chi.URLParam(r, "photo_id"))
	respondJSON(w, http.StatusOK, map[string]interface{}{"sync_state": state})
}
