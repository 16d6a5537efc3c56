package handlers

import (
	"net/http"

	"love-album-backend/internal/pomodoro"
)

// PomodoroHandler controls the shared focus timer
type PomodoroHandler struct {
	timer *pomodoro.Timer
}

// NewPomodoroHandler creates a new pomodoro handler
func NewPomodoroHandler(timer *pomodoro.Timer) *PomodoroHandler {
	return &PomodoroHandler{timer: timer}
}

// GetState handles GET /api/v1/pomodoro
func (h *PomodoroHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.timer.Snapshot())
}

// Start handles POST /api/v1/pomodoro/start
func (h *PomodoroHandler) Start(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.timer.Start())
}

// Pause handles POST /api/v1/pomodoro/pause
func (h *PomodoroHandler) Pause(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.timer.Pause())
}

// Reset handles POST /api/v1/pomodoro/reset
func (h *PomodoroHandler) Reset(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.timer.Reset())
}
