package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"love-album-backend/internal/middleware"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Messages  *MessageHandler
	Photos    *PhotoHandler
	Comments  *CommentHandler
	Planner   *PlannerHandler
	Sync      *SyncHandler
	Pomodoro  *PomodoroHandler
	Owners    *OwnersHandler
	Letter    *LetterHandler
	WebSocket *WebSocketHandler
}

// NewRouter builds the API router
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PersonMiddleware)

		r.Get("/messages", h.Messages.GetMessages)
		r.Post("/messages", h.Messages.PostMessage)
		r.Delete("/messages/{id}", h.Messages.DeleteMessage)

		r.Get("/photos", h.Photos.GetPhotos)
		r.Post("/photos", h.Photos.UploadPhoto)
		r.Delete("/photos/{photo_id}", h.Photos.DeletePhoto)
		r.Get("/blobs/{photo_id}", h.Photos.GetBlob)

		r.Get("/photos/{photo_id}/comments", h.Comments.GetComments)
		r.Post("/photos/{photo_id}/comments", h.Comments.AddComment)
		r.Delete("/photos/{photo_id}/comments", h.Comments.ClearComments)
		r.Delete("/photos/{photo_id}/comments/{comment_id}", h.Comments.DeleteComment)

		r.Get("/planner/activities", h.Planner.GetActivities)
		r.Post("/planner/activities", h.Planner.AddActivity)
		r.Put("/planner/activities/{id}", h.Planner.UpdateActivity)
		r.Delete("/planner/activities/{id}", h.Planner.DeleteActivity)
		r.Get("/planner/stats", h.Planner.GetStats)

		r.Get("/sync/status", h.Sync.GetStatus)
		r.Post("/sync/migrate", h.Sync.Migrate)
		r.Post("/sync/refresh", h.Sync.Refresh)

		r.Get("/owners", h.Owners.GetOwners)
		r.Get("/letter", h.Letter.GetLetter)

		r.Get("/pomodoro", h.Pomodoro.GetState)
		r.Post("/pomodoro/start", h.Pomodoro.Start)
		r.Post("/pomodoro/pause", h.Pomodoro.Pause)
		r.Post("/pomodoro/reset", h.Pomodoro.Reset)
	})

	// WebSocket route
	r.Get("/ws", h.WebSocket.HandleWebSocket)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.PersonHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
