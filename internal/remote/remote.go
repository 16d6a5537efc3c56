// Package remote is the adapter between the sync coordinator and the remote document and
// blob stores. It keeps no cache of its own: every subscription event is an authoritative
// snapshot of the whole (filtered) collection.
package remote

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"love-album-backend/internal/models"
)

// Store is the capability set of a remote backend
type Store interface {
	// IsAvailable reports whether the backend is connected. It is the only availability check.
	IsAvailable() bool
	// Put creates or replaces entity by its id and returns the remote id
	Put(ctx context.Context, collection models.Collection, entity models.Entity) (string, error)
	// PutWhole overwrites a single document of collection with payload
	PutWhole(ctx context.Context, collection models.Collection, documentKey string, payload any) error
	// Delete removes a document by id
	Delete(ctx context.Context, collection models.Collection, id string) error
	// Subscribe opens a live stream of snapshots. The first event is the initial read.
	Subscribe(ctx context.Context, collection models.Collection, filter *Filter) (*Subscription, error)
	// UploadBlob stores data under key and returns its permanent URL
	UploadBlob(ctx context.Context, data []byte, key string) (string, error)
}

// Document is one remote document as delivered in a snapshot
type Document struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter restricts a subscription to documents whose top-level field equals value
type Filter struct {
	Field string
	Value string
}

// ByPhoto filters comment documents of one photo
func ByPhoto(photoID string) *Filter {
	return &Filter{Field: "photo_id", Value: photoID}
}

func (f *Filter) field() string {
	if f == nil {
		return ""
	}
	return f.Field
}

func (f *Filter) value() string {
	if f == nil {
		return ""
	}
	return f.Value
}

// Snapshot is the full content of a subscribed collection at one point in time
type Snapshot struct {
	Collection models.Collection
	Documents  []Document
}

// Subscription is a cancelable stream of snapshots. Only the latest undelivered snapshot
// is kept, since each one replaces the previous.
type Subscription struct {
	mu      sync.Mutex
	events  chan Snapshot
	closed  bool
	onClose func()
}

func newSubscription(onClose func()) *Subscription {
	return &Subscription{events: make(chan Snapshot, 1), onClose: onClose}
}

// Events returns the snapshot channel; it is closed when the subscription ends
func (s *Subscription) Events() <-chan Snapshot {
	return s.events
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// deliver queues snap, replacing any snapshot the consumer has not read yet
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.events:
	default:
	}
	s.events <- snap
}
