package remote

import (
	"context"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/models"
)

// Disabled is the adapter used when no remote backend is configured; the application
// then runs purely on the local store
type Disabled struct{}

// NewDisabled creates a disabled adapter
func NewDisabled() *Disabled {
	return &Disabled{}
}

func errDisabled() error {
	return apperrors.New(apperrors.ErrUnavailable, "remote store not configured")
}

// IsAvailable implements Store
func (d *Disabled) IsAvailable() bool { return false }

// Put implements Store
func (d *Disabled) Put(ctx context.Context, collection models.Collection, entity models.Entity) (string, error) {
	return "", errDisabled()
}

// PutWhole implements Store
func (d *Disabled) PutWhole(ctx context.Context, collection models.Collection, documentKey string, payload any) error {
	return errDisabled()
}

// Delete implements Store
func (d *Disabled) Delete(ctx context.Context, collection models.Collection, id string) error {
	return errDisabled()
}

// Subscribe implements Store
func (d *Disabled) Subscribe(ctx context.Context, collection models.Collection, filter *Filter) (*Subscription, error) {
	return nil, errDisabled()
}

// UploadBlob implements Store
func (d *Disabled) UploadBlob(ctx context.Context, data []byte, key string) (string, error) {
	return "", errDisabled()
}
