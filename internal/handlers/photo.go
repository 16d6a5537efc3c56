package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"love-album-backend/internal/services"
)

// multipart overhead allowed on top of the photo size limit
const uploadSlack = 1 << 20

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	album   *services.AlbumService
	maxSize int64
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(album *services.AlbumService, maxSize int64) *PhotoHandler {
	return &PhotoHandler{
		album:   album,
		maxSize: maxSize,
	}
}

// GetPhotos handles GET /api/v1/photos
func (h *PhotoHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	photos := h.album.Photos()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"photos": photos,
		"total":  len(photos),
	})
}

// UploadPhoto handles POST /api/v1/photos with a multipart "file" field
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+uploadSlack)
	if err := r.ParseMultipartForm(h.maxSize + uploadSlack); err != nil {
		respondError(w, "Invalid or too large upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("Failed to read upload")
		respondError(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	photo, state, err := h.album.UploadPhoto(r.Context(), header.Filename, data)
	if err != nil {
		respondAppError(w, err)
		return
	}

	log.Info().
		Str("photo_id", photo.ID).
		Str("sync_state", string(state)).
		Int("bytes", len(data)).
		Msg("Photo uploaded")

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"photo":      photo,
		"sync_state": state,
	})
}

// DeletePhoto handles DELETE /api/v1/photos/{photo_id}
func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	state, err := h.album.DeletePhoto(r.Context(), chi.URLParam(r, "photo_id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sync_state": state})
}

// GetBlob handles GET /api/v1/blobs/{photo_id} for photos still held locally
func (h *PhotoHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	data, err := h.album.LocalBlob(chi.URLParam(r, "photo_id"))
	if err != nil {
		respondAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
