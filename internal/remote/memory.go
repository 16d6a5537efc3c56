package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/models"
)

type memoryDoc struct {
	Document
	seq int64
}

type memorySub struct {
	collection models.Collection
	filter     *Filter
}

// Memory is an in-process remote store with realtime snapshots. It backs the memory driver
// and the tests.
type Memory struct {
	mu        sync.Mutex
	available bool
	now       func() time.Time
	seq       int64
	docs      map[models.Collection]map[string]*memoryDoc
	blobs     map[string][]byte
	subs      map[*Subscription]memorySub
}

// NewMemory creates an available in-memory store
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-memory store stamping documents with now
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		available: true,
		now:       now,
		docs:      make(map[models.Collection]map[string]*memoryDoc),
		blobs:     make(map[string][]byte),
		subs:      make(map[*Subscription]memorySub),
	}
}

// SetAvailable switches the store on or off
func (m *Memory) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// IsAvailable implements Store
func (m *Memory) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func errOffline() error {
	return apperrors.New(apperrors.ErrUnavailable, "remote store is offline")
}

// Put implements Store
func (m *Memory) Put(ctx context.Context, collection models.Collection, entity models.Entity) (string, error) {
	if err := m.upsert(ctx, collection, entity.EntityID(), entity); err != nil {
		return "", err
	}
	return entity.EntityID(), nil
}

// PutWhole implements Store
func (m *Memory) PutWhole(ctx context.Context, collection models.Collection, documentKey string, payload any) error {
	return m.upsert(ctx, collection, documentKey, payload)
}

func (m *Memory) upsert(ctx context.Context, collection models.Collection, id string, v any) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFault, "request cancelled", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFault, "failed to marshal document", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return errOffline()
	}

	docs, ok := m.docs[collection]
	if !ok {
		docs = make(map[string]*memoryDoc)
		m.docs[collection] = docs
	}
	if existing, ok := docs[id]; ok {
		existing.Data = data
	} else {
		m.seq++
		docs[id] = &memoryDoc{
			Document: Document{ID: id, Data: data, CreatedAt: m.now()},
			seq:      m.seq,
		}
	}
	m.notifyLocked(collection)
	return nil
}

// Delete implements Store
func (m *Memory) Delete(ctx context.Context, collection models.Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return errOffline()
	}
	if _, ok := m.docs[collection][id]; !ok {
		return nil
	}
	delete(m.docs[collection], id)
	m.notifyLocked(collection)
	return nil
}

// Subscribe implements Store. The stream lives until the subscription is closed.
func (m *Memory) Subscribe(ctx context.Context, collection models.Collection, filter *Filter) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return nil, errOffline()
	}

	var sub *Subscription
	sub = newSubscription(func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	})
	m.subs[sub] = memorySub{collection: collection, filter: filter}
	sub.deliver(m.snapshotLocked(collection, filter))
	return sub, nil
}

// UploadBlob implements Store
func (m *Memory) UploadBlob(ctx context.Context, data []byte, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return "", errOffline()
	}
	m.blobs[key] = append([]byte(nil), data...)
	return "memory://blobs/" + key, nil
}

// Documents returns the current content of a collection in creation order
func (m *Memory) Documents(collection models.Collection) []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(collection, nil).Documents
}

// Blob returns the bytes uploaded under key
func (m *Memory) Blob(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	return data, ok
}

// Subscribers returns the number of open subscriptions
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) notifyLocked(collection models.Collection) {
	for sub, s := range m.subs {
		if s.collection == collection {
			sub.deliver(m.snapshotLocked(collection, s.filter))
		}
	}
}

func (m *Memory) snapshotLocked(collection models.Collection, filter *Filter) Snapshot {
	matched := make([]*memoryDoc, 0, len(m.docs[collection]))
	for _, doc := range m.docs[collection] {
		if matches(doc.Data, filter) {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	docs := make([]Document, len(matched))
	for i, doc := range matched {
		docs[i] = Document{
			ID:        doc.ID,
			Data:      append(json.RawMessage(nil), doc.Data...),
			CreatedAt: doc.CreatedAt,
		}
	}
	return Snapshot{Collection: collection, Documents: docs}
}

func matches(data []byte, filter *Filter) bool {
	if filter.field() == "" {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	v, ok := fields[filter.field()]
	return ok && fmt.Sprint(v) == filter.value()
}
