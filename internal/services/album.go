package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"love-album-backend/internal/config"
	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/models"
)

const maxMessageLength = 2000

// AlbumService validates message board, photo and comment input before it reaches the
// coordinator
type AlbumService struct {
	coord  *Coordinator
	photos config.PhotosConfig
}

// NewAlbumService creates a new album service
func NewAlbumService(coord *Coordinator, photos config.PhotosConfig) *AlbumService {
	return &AlbumService{coord: coord, photos: photos}
}

// PostMessage stores a message on the board
func (s *AlbumService) PostMessage(ctx context.Context, id, content string) (models.Message, models.SyncState, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, "", apperrors.New(apperrors.ErrValidation, "message content is required")
	}
	if len([]rune(content)) > maxMessageLength {
		return models.Message{}, "", apperrors.New(apperrors.ErrValidation, fmt.Sprintf("message is longer than %d characters", maxMessageLength))
	}

	msg, state := s.coord.SaveMessage(ctx, models.Message{ID: id, Content: content})
	return msg, state, nil
}

// DeleteMessage removes a message from the board
func (s *AlbumService) DeleteMessage(ctx context.Context, id string) (models.SyncState, error) {
	if _, ok := findByID(s.coord.Messages(), id); !ok {
		return "", apperrors.New(apperrors.ErrNotFound, "message not found")
	}
	return s.coord.DeleteMessage(ctx, id), nil
}

// Messages returns the board, newest first
func (s *AlbumService) Messages() []models.Message {
	return s.coord.Messages()
}

// UploadPhoto checks the upload policy and stores the photo
func (s *AlbumService) UploadPhoto(ctx context.Context, name string, data []byte) (models.Photo, models.SyncState, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return models.Photo{}, "", apperrors.New(apperrors.ErrValidation, "file name is required")
	}
	if len(data) == 0 {
		return models.Photo{}, "", apperrors.New(apperrors.ErrValidation, "file is empty")
	}
	if int64(len(data)) >= s.photos.MaxSize.Int64() {
		return models.Photo{}, "", apperrors.New(apperrors.ErrValidation, fmt.Sprintf("file must be smaller than %s", s.photos.MaxSize))
	}
	if !s.photos.AllowsExtension(filepath.Ext(name)) {
		return models.Photo{}, "", apperrors.New(apperrors.ErrValidation, "file type not allowed, use "+strings.Join(s.photos.AllowedExtensions, ", "))
	}

	photo, state := s.coord.UploadPhoto(ctx, name, data)
	return photo, state, nil
}

// DeletePhoto removes a photo
func (s *AlbumService) DeletePhoto(ctx context.Context, id string) (models.SyncState, error) {
	if _, ok := findByID(s.coord.Photos(), id); !ok {
		return "", apperrors.New(apperrors.ErrNotFound, "photo not found")
	}
	return s.coord.DeletePhoto(ctx, id), nil
}

// Photos returns the album, newest first
func (s *AlbumService) Photos() []models.Photo {
	return s.coord.Photos()
}

// LocalBlob returns bytes of a photo not yet uploaded
func (s *AlbumService) LocalBlob(photoID string) ([]byte, error) {
	data, ok := s.coord.LocalBlob(photoID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "photo bytes not held locally")
	}
	return data, nil
}

// AddComment appends a comment written by one of the two owners
func (s *AlbumService) AddComment(ctx context.Context, photoID string, author models.Person, text string) (models.Comment, models.SyncState, error) {
	text = strings.TrimSpace(text)
	if !author.Valid() {
		return models.Comment{}, "", apperrors.New(apperrors.ErrValidation, "author must be person_a or person_b")
	}
	if text == "" {
		return models.Comment{}, "", apperrors.New(apperrors.ErrValidation, "comment text is required")
	}
	if _, ok := findByID(s.coord.Photos(), photoID); !ok {
		return models.Comment{}, "", apperrors.New(apperrors.ErrNotFound, "photo not found")
	}

	comment, state := s.coord.SaveComment(ctx, models.Comment{PhotoID: photoID, Author: author, Text: text})
	return comment, state, nil
}

// DeleteComment removes one comment
func (s *AlbumService) DeleteComment(ctx context.Context, photoID, commentID string) (models.SyncState, error) {
	if _, ok := findByID(s.coord.Comments(photoID), commentID); !ok {
		return "", apperrors.New(apperrors.ErrNotFound, "comment not found")
	}
	return s.coord.DeleteComment(ctx, photoID, commentID), nil
}

// ClearComments removes a whole thread
func (s *AlbumService) ClearComments(ctx context.Context, photoID string) models.SyncState {
	return s.coord.ClearComments(ctx, photoID)
}

// Comments returns a photo's thread, oldest first
func (s *AlbumService) Comments(photoID string) []models.Comment {
	return s.coord.Comments(photoID)
}
