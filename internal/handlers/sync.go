package handlers

import (
	"net/http"

	"love-album-backend/internal/services"
)

// SyncHandler exposes the sync layer's status and maintenance operations
type SyncHandler struct {
	coord  *services.Coordinator
	runner *services.MigrationRunner
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(coord *services.Coordinator, runner *services.MigrationRunner) *SyncHandler {
	return &SyncHandler{coord: coord, runner: runner}
}

// GetStatus handles GET /api/v1/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.coord.Status())
}

// Migrate handles POST /api/v1/sync/migrate
func (h *SyncHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Refresh handles POST /api/v1/sync/refresh
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.coord.Refresh()
	respondJSON(w, http.StatusOK, h.coord.Status())
}
