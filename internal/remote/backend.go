package remote

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"love-album-backend/internal/blob"
	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/metrics"
	"love-album-backend/internal/models"
	"love-album-backend/internal/repository"
)

const listenRetryDelay = 2 * time.Second

type backendSub struct {
	collection models.Collection
	filter     *Filter
	// serializes reads so a slow older snapshot never overtakes a newer one
	readMu *sync.Mutex
}

// Backend is the production adapter: documents in PostgreSQL, change notification over
// LISTEN/NOTIFY and blobs in S3
type Backend struct {
	docs  *repository.DocumentRepository
	blobs *blob.S3Store

	available atomic.Bool

	mu   sync.Mutex
	subs map[*Subscription]backendSub

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBackend creates a backend adapter. blobs may be nil when object storage is not
// configured; uploads then report the store unavailable.
func NewBackend(docs *repository.DocumentRepository, blobs *blob.S3Store) *Backend {
	return &Backend{
		docs:  docs,
		blobs: blobs,
		subs:  make(map[*Subscription]backendSub),
	}
}

// Start checks the connection once and starts the change listener
func (b *Backend) Start(ctx context.Context) {
	b.setAvailable(b.docs.Ping(ctx) == nil)

	listenCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.listen(listenCtx)
}

// Close stops the change listener and ends every open subscription
func (b *Backend) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// IsAvailable implements Store
func (b *Backend) IsAvailable() bool {
	return b.available.Load()
}

// setAvailable stores the flag and reports whether it went from false to true
func (b *Backend) setAvailable(available bool) bool {
	metrics.SetRemoteAvailable(available)
	previous := b.available.Swap(available)
	if previous != available {
		log.Info().Bool("available", available).Msg("Remote store availability changed")
	}
	return available && !previous
}

// WatchAvailability pings the database every interval until ctx is done. onAvailable runs
// on every transition from unavailable to available.
func (b *Backend) WatchAvailability(ctx context.Context, interval time.Duration, onAvailable func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := b.docs.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("Remote store ping failed")
			}
			if b.setAvailable(err == nil) && onAvailable != nil {
				onAvailable()
			}
		}
	}
}

// Put implements Store
func (b *Backend) Put(ctx context.Context, collection models.Collection, entity models.Entity) (string, error) {
	if err := b.write(ctx, collection, entity.EntityID(), entity); err != nil {
		return "", err
	}
	return entity.EntityID(), nil
}

// PutWhole implements Store
func (b *Backend) PutWhole(ctx context.Context, collection models.Collection, documentKey string, payload any) error {
	return b.write(ctx, collection, documentKey, payload)
}

func (b *Backend) write(ctx context.Context, collection models.Collection, id string, v any) error {
	if !b.IsAvailable() {
		return apperrors.New(apperrors.ErrUnavailable, "remote store is offline")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFault, "failed to marshal document", err)
	}
	if _, err := b.docs.Upsert(ctx, string(collection), id, data); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFault, "failed to write document", err)
	}
	return nil
}

// Delete implements Store
func (b *Backend) Delete(ctx context.Context, collection models.Collection, id string) error {
	if !b.IsAvailable() {
		return apperrors.New(apperrors.ErrUnavailable, "remote store is offline")
	}
	if err := b.docs.Delete(ctx, string(collection), id); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFault, "failed to delete document", err)
	}
	return nil
}

// Subscribe implements Store. ctx bounds the initial read; the stream lives until the
// subscription is closed.
func (b *Backend) Subscribe(ctx context.Context, collection models.Collection, filter *Filter) (*Subscription, error) {
	if !b.IsAvailable() {
		return nil, apperrors.New(apperrors.ErrUnavailable, "remote store is offline")
	}

	var sub *Subscription
	sub = newSubscription(func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	})
	entry := backendSub{collection: collection, filter: filter, readMu: &sync.Mutex{}}

	// register before the initial read so no change between the two is missed
	b.mu.Lock()
	b.subs[sub] = entry
	b.mu.Unlock()

	if err := b.refresh(ctx, sub, entry); err != nil {
		sub.Close()
		return nil, apperrors.Wrap(apperrors.ErrRemoteFault, "failed to read initial snapshot", err)
	}
	return sub, nil
}

// UploadBlob implements Store
func (b *Backend) UploadBlob(ctx context.Context, data []byte, key string) (string, error) {
	if b.blobs == nil {
		return "", apperrors.New(apperrors.ErrUnavailable, "blob storage not configured")
	}
	if !b.IsAvailable() {
		return "", apperrors.New(apperrors.ErrUnavailable, "remote store is offline")
	}
	url, err := b.blobs.Upload(ctx, key, data)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrRemoteFault, "failed to upload blob", err)
	}
	return url, nil
}

func (b *Backend) refresh(ctx context.Context, sub *Subscription, entry backendSub) error {
	entry.readMu.Lock()
	defer entry.readMu.Unlock()

	docs, err := b.docs.List(ctx, string(entry.collection), entry.filter.field(), entry.filter.value())
	if err != nil {
		return err
	}

	snap := Snapshot{Collection: entry.collection, Documents: make([]Document, len(docs))}
	for i, doc := range docs {
		snap.Documents[i] = Document{ID: doc.ID, Data: doc.Data, CreatedAt: doc.CreatedAt}
	}
	sub.deliver(snap)
	return nil
}

// refreshCollection re-reads every subscription of collection, or of every collection when
// collection is empty
func (b *Backend) refreshCollection(ctx context.Context, collection models.Collection) {
	b.mu.Lock()
	targets := make(map[*Subscription]backendSub)
	for sub, entry := range b.subs {
		if collection == "" || entry.collection == collection {
			targets[sub] = entry
		}
	}
	b.mu.Unlock()

	for sub, entry := range targets {
		if err := b.refresh(ctx, sub, entry); err != nil {
			log.Error().Err(err).Str("collection", string(entry.collection)).Msg("Failed to refresh subscription")
		}
	}
}

func (b *Backend) listen(ctx context.Context) {
	defer close(b.done)

	for ctx.Err() == nil {
		listener, err := b.docs.Listen(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Change listener not connected, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(listenRetryDelay):
			}
			continue
		}

		// catch up on anything written while the listener was down
		b.refreshCollection(ctx, "")

		for {
			collection, err := listener.Wait(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("Change listener interrupted")
				}
				break
			}
			b.refreshCollection(ctx, models.Collection(collection))
		}
		listener.Close()
	}
}
