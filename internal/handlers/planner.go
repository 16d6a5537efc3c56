package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"love-album-backend/internal/middleware"
	"love-album-backend/internal/models"
	"love-album-backend/internal/services"
)

// PlannerHandler handles planner HTTP requests
type PlannerHandler struct {
	planner *services.PlannerService
}

// NewPlannerHandler creates a new planner handler
func NewPlannerHandler(planner *services.PlannerService) *PlannerHandler {
	return &PlannerHandler{planner: planner}
}

// GetActivities handles GET /api/v1/planner/activities?owner=&category=&when=&week_of=
func (h *PlannerHandler) GetActivities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	activities, err := h.planner.List(services.ActivityFilter{
		Owner:    models.Person(query.Get("owner")),
		Category: models.Category(query.Get("category")),
		When:     query.Get("when"),
		WeekOf:   query.Get("week_of"),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activities": activities,
		"total":      len(activities),
	})
}

// AddActivity handles POST /api/v1/planner/activities
func (h *PlannerHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readInput(w, r)
	if !ok {
		return
	}

	activity, state, err := h.planner.Add(r.Context(), in)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"activity":   activity,
		"sync_state": state,
	})
}

// UpdateActivity handles PUT /api/v1/planner/activities/{id}
func (h *PlannerHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readInput(w, r)
	if !ok {
		return
	}

	activity, state, err := h.planner.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activity":   activity,
		"sync_state": state,
	})
}

// DeleteActivity handles DELETE /api/v1/planner/activities/{id}
func (h *PlannerHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	state, err := h.planner.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sync_state": state})
}

// GetStats handles GET /api/v1/planner/stats
func (h *PlannerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.planner.Stats())
}

// readInput decodes an activity body; owner falls back to the X-Person header
func (h *PlannerHandler) readInput(w http.ResponseWriter, r *http.Request) (services.ActivityInput, bool) {
	var in services.ActivityInput
	if err := decodeBody(r, &in); err != nil {
		respondAppError(w, err)
		return in, false
	}
	if in.Owner == "" {
		in.Owner = middleware.GetPerson(r.Context())
	}
	return in, true
}
