package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"love-album-backend/internal/letter"
)

// LetterHandler serves the proposal letter
type LetterHandler struct {
	path string
}

// NewLetterHandler creates a new letter handler reading the letter from path
func NewLetterHandler(path string) *LetterHandler {
	return &LetterHandler{path: path}
}

// GetLetter handles GET /api/v1/letter. The file is read on every request so edits show up
// without a restart.
func (h *LetterHandler) GetLetter(w http.ResponseWriter, r *http.Request) {
	l, err := letter.Load(h.path)
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("Failed to load letter")
		respondError(w, "Failed to load letter", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, l)
}
