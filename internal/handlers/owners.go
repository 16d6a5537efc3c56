package handlers

import (
	"net/http"

	"love-album-backend/internal/config"
	"love-album-backend/internal/models"
)

// OwnersHandler exposes the display names of the two album owners
type OwnersHandler struct {
	owners config.OwnersConfig
}

// NewOwnersHandler creates a new owners handler
func NewOwnersHandler(owners config.OwnersConfig) *OwnersHandler {
	return &OwnersHandler{owners: owners}
}

// GetOwners handles GET /api/v1/owners
func (h *OwnersHandler) GetOwners(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[models.Person]string{
		models.PersonA: h.owners.PersonA,
		models.PersonB: h.owners.PersonB,
	})
}
