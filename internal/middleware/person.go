package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"love-album-backend/internal/models"
)

type contextKey string

const personKey contextKey = "person"

// PersonHeader optionally names which owner is using the client
const PersonHeader = "X-Person"

// PersonMiddleware attributes a request to one of the two owners. The header is optional
// but must name a known owner when present.
func PersonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := r.Header.Get(PersonHeader)
		if value == "" {
			next.ServeHTTP(w, r)
			return
		}

		person := models.Person(value)
		if !person.Valid() {
			respondError(w, "X-Person must be person_a or person_b", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), personKey, person)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPerson extracts the attributed owner from context
func GetPerson(ctx context.Context) models.Person {
	person, ok := ctx.Value(personKey).(models.Person)
	if !ok {
		return ""
	}
	return person
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
