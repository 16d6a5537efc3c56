package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/identity"
	"love-album-backend/internal/localstore"
	"love-album-backend/internal/metrics"
	"love-album-backend/internal/models"
	"love-album-backend/internal/remote"
)

// CoordinatorOptions bounds the coordinator's remote calls
type CoordinatorOptions struct {
	HandshakeTimeout time.Duration
	CallTimeout      time.Duration
	Now              func() time.Time
}

// CollectionStatus describes one synchronized collection
type CollectionStatus struct {
	Collection     models.Collection `json:"collection"`
	PhotoID        string            `json:"photo_id,omitempty"`
	State          BindState         `json:"state"`
	PendingRecords int               `json:"pending_records"`
	PendingDeletes int               `json:"pending_deletes"`
}

// SyncStatus is the state of the whole sync layer
type SyncStatus struct {
	RemoteAvailable bool               `json:"remote_available"`
	Collections     []CollectionStatus `json:"collections"`
}

// Coordinator routes every read and write between the remote store and the local store.
// Remote first; on failure or unavailability the write lands in the local store and is
// marked pending until the migration runner resubmits it.
type Coordinator struct {
	local    *localstore.Store
	remote   remote.Store
	resolver *identity.Resolver
	notifier Notifier
	opts     CoordinatorOptions

	// serializes local read-modify-write cycles and guards collection state
	mu       sync.Mutex
	messages *collection[models.Message]
	photos   *collection[models.Photo]
	planner  *collection[models.PlannerActivity]
	threads  map[string]*collection[models.Comment]

	// serializes planner writes so each whole-document write starts from the previous one
	plannerMu sync.Mutex

	listenersMu  sync.Mutex
	listeners    map[string]map[int]func(Change)
	nextListener int
}

// NewCoordinator creates a coordinator over the local and remote stores
func NewCoordinator(local *localstore.Store, rs remote.Store, resolver *identity.Resolver, notifier Notifier, opts CoordinatorOptions) *Coordinator {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}

	return &Coordinator{
		local:    local,
		remote:   rs,
		resolver: resolver,
		notifier: notifier,
		opts:     opts,
		messages: &collection[models.Message]{
			name:   models.CollectionMessages,
			key:    localstore.KeyMessages,
			less:   messagesNewestFirst,
			decode: decodeRecords(stampMessage),
			state:  StateUnbound,
		},
		photos: &collection[models.Photo]{
			name:   models.CollectionPhotos,
			key:    localstore.KeyPhotos,
			less:   photosNewestFirst,
			decode: decodeRecords(stampPhoto),
			keep:   keepRemoteLocation,
			state:  StateUnbound,
		},
		planner: &collection[models.PlannerActivity]{
			name:   models.CollectionPlanner,
			key:    localstore.KeyPlanner,
			less:   activitiesBySchedule,
			decode: decodePlanner,
			state:  StateUnbound,
		},
		threads:   make(map[string]*collection[models.Comment]),
		listeners: make(map[string]map[int]func(Change)),
	}
}

// Start binds the top-level collections
func (c *Coordinator) Start() {
	for _, col := range c.topLevel() {
		col.bind(c)
	}
}

// Close ends every subscription. The coordinator returns to the unbound state.
func (c *Coordinator) Close() {
	for _, sub := range c.unbindAll() {
		sub.Close()
	}
}

// Refresh re-issues the initial bind of every collection, as a page reload would
func (c *Coordinator) Refresh() {
	cols := c.allCollections()
	for _, sub := range c.unbindAll() {
		sub.Close()
	}

	for _, col := range cols {
		if !col.bind(c) {
			c.dispatch(col.change(c))
		}
	}
	log.Info().Int("collections", len(cols)).Msg("Sync layer refreshed")
}

// Status reports the bind state and pending work of every known collection
func (c *Coordinator) Status() SyncStatus {
	status := SyncStatus{RemoteAvailable: c.remote.IsAvailable()}
	for _, col := range c.allCollections() {
		status.Collections = append(status.Collections, col.status(c))
	}

	// threads that only exist in the local store
	c.mu.Lock()
	known := make(map[string]bool, len(c.threads))
	for id := range c.threads {
		known[id] = true
	}
	c.mu.Unlock()
	for _, key := range c.local.Keys(localstore.CommentsPrefix()) {
		photoID, _ := localstore.PhotoIDFromCommentsKey(key)
		if known[photoID] {
			continue
		}
		ledger := readLedger[models.Comment](c.local, key)
		status.Collections = append(status.Collections, CollectionStatus{
			Collection:     models.CollectionComments,
			PhotoID:        photoID,
			State:          StateUnbound,
			PendingRecords: len(ledger.Records),
			PendingDeletes: len(ledger.Deleted),
		})
	}
	return status
}

// State returns the bind state of a collection; photoID selects a comment thread
func (c *Coordinator) State(name models.Collection, photoID string) BindState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch name {
	case models.CollectionMessages:
		return c.messages.state
	case models.CollectionPhotos:
		return c.photos.state
	case models.CollectionPlanner:
		return c.planner.state
	case models.CollectionComments:
		if t, ok := c.threads[photoID]; ok {
			return t.state
		}
	}
	return StateUnbound
}

func (c *Coordinator) topLevel() []syncedCollection {
	return []syncedCollection{c.messages, c.photos, c.planner}
}

func (c *Coordinator) allCollections() []syncedCollection {
	cols := c.topLevel()
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.threads))
	for id := range c.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cols = append(cols, c.threads[id])
	}
	return cols
}

func (c *Coordinator) unbindAll() []*remote.Subscription {
	cols := c.allCollections()
	c.mu.Lock()
	defer c.mu.Unlock()
	var subs []*remote.Subscription
	for _, col := range cols {
		if sub := col.unbind(); sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs
}

// thread returns the comment thread of a photo, creating it unbound
func (c *Coordinator) thread(photoID string) *collection[models.Comment] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.threads[photoID]; ok {
		return t
	}
	t := &collection[models.Comment]{
		name:    models.CollectionComments,
		key:     localstore.CommentsKey(photoID),
		photoID: photoID,
		filter:  remote.ByPhoto(photoID),
		less:    commentsOldestFirst,
		decode:  decodeRecords(stampComment),
		state:   StateUnbound,
	}
	c.threads[photoID] = t
	return t
}

// Subscribe registers fn for changes of a collection (photoID selects a comment thread).
// fn is called once with the current content. Cancelling the last listener of a comment
// thread closes the thread's remote subscription.
func (c *Coordinator) Subscribe(name models.Collection, photoID string, fn func(Change)) (cancel func()) {
	var col syncedCollection
	switch name {
	case models.CollectionMessages:
		col = c.messages
	case models.CollectionPhotos:
		col = c.photos
	case models.CollectionPlanner:
		col = c.planner
	case models.CollectionComments:
		col = c.thread(photoID)
	default:
		return func() {}
	}

	key := col.listenerKey()
	c.listenersMu.Lock()
	c.nextListener++
	id := c.nextListener
	if c.listeners[key] == nil {
		c.listeners[key] = make(map[int]func(Change))
	}
	c.listeners[key][id] = fn
	c.listenersMu.Unlock()

	if !col.bind(c) {
		fn(col.change(c))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners[key], id)
			remaining := len(c.listeners[key])
			if remaining == 0 {
				delete(c.listeners, key)
			}
			c.listenersMu.Unlock()

			if remaining == 0 && name == models.CollectionComments {
				c.releaseThread(photoID)
			}
		})
	}
}

// releaseThread tears down a comment thread nobody listens to any more
func (c *Coordinator) releaseThread(photoID string) {
	c.mu.Lock()
	t, ok := c.threads[photoID]
	var sub *remote.Subscription
	if ok {
		sub = t.unbind()
		delete(c.threads, photoID)
	}
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
		log.Debug().Str("photo_id", photoID).Msg("Comment thread released")
	}
}

// dispatch delivers a change to the listeners of its collection
func (c *Coordinator) dispatch(change Change) {
	c.listenersMu.Lock()
	fns := make([]func(Change), 0, len(c.listeners[listenerKey(change.Collection, change.PhotoID)]))
	for _, fn := range c.listeners[listenerKey(change.Collection, change.PhotoID)] {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// callContext detaches a write from the caller's cancellation and bounds it
func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
}

// submit sends one record to the remote store
func (c *Coordinator) submit(ctx context.Context, name models.Collection, entity models.Entity) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	_, err := c.remote.Put(callCtx, name, entity)
	return err
}

// submitDelete removes one record from the remote store
func (c *Coordinator) submitDelete(ctx context.Context, name models.Collection, id string) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	return c.remote.Delete(callCtx, name, id)
}

// submitPlanner overwrites the planner document
func (c *Coordinator) submitPlanner(ctx context.Context, activities []models.PlannerActivity) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	if activities == nil {
		activities = []models.PlannerActivity{}
	}
	doc := models.PlannerDocument{Activities: activities, LastUpdated: c.opts.Now().UTC()}
	return c.remote.PutWhole(callCtx, models.CollectionPlanner, models.PlannerDocumentKey, doc)
}

func (c *Coordinator) fellBack(name models.Collection, err error) {
	log.Warn().Err(err).Str("collection", string(name)).Msg("Remote write failed, falling back to local store")
}

func (c *Coordinator) savedLocally() {
	c.notifier.Notify(LevelWarning, "Saved on this device, will sync when the connection is back")
}

func (c *Coordinator) collision(name models.Collection, id, detail string) {
	metrics.IdentityCollisions.Inc()
	err := apperrors.New(apperrors.ErrIdentityCollision, detail)
	log.Warn().Err(err).Str("collection", string(name)).Str("id", id).Msg("Identity collision")
	c.notifier.Notify(LevelWarning, fmt.Sprintf("Another item already uses the id %s", id))
}

// save is the shared write protocol of record collections
func save[T models.Entity](ctx context.Context, c *Coordinator, col *collection[T], item T) models.SyncState {
	col.bind(c)

	c.mu.Lock()
	state := col.state
	c.mu.Unlock()

	if state == StateRemoteBound {
		err := c.submit(ctx, col.name, item)
		if err == nil {
			metrics.Writes.WithLabelValues(string(col.name), string(models.SyncConfirmed)).Inc()
			return models.SyncConfirmed
		}
		c.fellBack(col.name, err)
	}

	return storeLocally(c, col, item)
}

// storeLocally records item in the local store as pending
func storeLocally[T models.Entity](c *Coordinator, col *collection[T], item T) models.SyncState {
	c.mu.Lock()
	change := col.storeLocked(c, item)
	c.mu.Unlock()

	metrics.Writes.WithLabelValues(string(col.name), string(models.SyncPending)).Inc()
	c.savedLocally()
	c.dispatch(change)
	return models.SyncPending
}

// remove is the shared delete protocol of record collections
func remove[T models.Entity](ctx context.Context, c *Coordinator, col *collection[T], id string) models.SyncState {
	col.bind(c)

	c.mu.Lock()
	state := col.state
	c.mu.Unlock()

	if state == StateRemoteBound {
		err := c.submitDelete(ctx, col.name, id)
		if err == nil {
			metrics.Writes.WithLabelValues(string(col.name), string(models.SyncConfirmed)).Inc()
			return models.SyncConfirmed
		}
		c.fellBack(col.name, err)
	}

	c.mu.Lock()
	change := col.removeLocked(c, id)
	c.mu.Unlock()

	metrics.Writes.WithLabelValues(string(col.name), string(models.SyncPending)).Inc()
	c.savedLocally()
	c.dispatch(change)
	return models.SyncPending
}

func load[T models.Entity](c *Coordinator, col *collection[T]) []T {
	col.bind(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	return col.itemsLocked(c)
}

// SaveMessage stores a message. A missing id or timestamp is filled in.
func (c *Coordinator) SaveMessage(ctx context.Context, msg models.Message) (models.Message, models.SyncState) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.opts.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return msg, save(ctx, c, c.messages, msg)
}

// DeleteMessage removes a message
func (c *Coordinator) DeleteMessage(ctx context.Context, id string) models.SyncState {
	return remove(ctx, c, c.messages, id)
}

// Messages returns every message, newest first
func (c *Coordinator) Messages() []models.Message {
	return load(c, c.messages)
}

// UploadPhoto stores the photo bytes and its record. When the blob cannot be uploaded the
// bytes stay in the local store and the whole photo is pending. A failed re-upload of a
// photo whose bytes are already remote keeps the remote location and stores no bytes.
func (c *Coordinator) UploadPhoto(ctx context.Context, name string, data []byte) (models.Photo, models.SyncState) {
	now := c.opts.Now().UTC()
	id, strategy := c.resolver.Resolve(identity.Source{Name: name, Content: data, CreatedAt: now})

	var held models.Photo
	for _, existing := range c.Photos() {
		if existing.ID != id {
			continue
		}
		held = existing
		if existing.DisplayName != name {
			c.collision(models.CollectionPhotos, id, fmt.Sprintf("%q and %q resolve to the same id", existing.DisplayName, name))
		}
		break
	}
	if !strategy.Stable() {
		log.Debug().Str("id", id).Str("strategy", string(strategy)).Msg("Photo id is not stable across reloads")
	}

	photo := models.Photo{ID: id, DisplayName: name, UploadedAt: now}

	callCtx, cancel := c.callContext(ctx)
	url, err := c.remote.UploadBlob(callCtx, data, BlobKey(id, name))
	cancel()
	if err == nil {
		photo.LocationRef = url
		return photo, save(ctx, c, c.photos, photo)
	}

	c.fellBack(models.CollectionPhotos, err)
	if IsRemoteLocation(held.LocationRef) {
		// the uploaded bytes stay authoritative; no local copy is kept for them
		log.Warn().Str("photo_id", id).Msg("Re-upload failed, keeping the existing remote photo")
		photo.LocationRef = held.LocationRef
		c.photos.bind(c)
		return photo, storeLocally(c, c.photos, photo)
	}
	if err := c.local.Put(localstore.BlobKey(id), data); err != nil {
		log.Error().Err(err).Str("photo_id", id).Msg("Failed to keep photo bytes locally")
	}
	photo.LocationRef = LocalBlobPrefix + id

	c.photos.bind(c)
	state := storeLocally(c, c.photos, photo)

	// a snapshot that arrived meanwhile may have made the remote location win
	for _, stored := range c.Photos() {
		if stored.ID == id && IsRemoteLocation(stored.LocationRef) {
			if err := c.local.Delete(localstore.BlobKey(id)); err != nil {
				log.Error().Err(err).Str("photo_id", id).Msg("Failed to drop superseded photo bytes")
			}
			photo.LocationRef = stored.LocationRef
			break
		}
	}
	return photo, state
}

// BlobKey is the object key of a photo's bytes
func BlobKey(id, name string) string {
	return fmt.Sprintf("photos/%s_%s", id, name)
}

// LocalBlob returns photo bytes held by the local store
func (c *Coordinator) LocalBlob(photoID string) ([]byte, bool) {
	return c.local.Get(localstore.BlobKey(photoID))
}

// DeletePhoto removes a photo record and any locally held bytes
func (c *Coordinator) DeletePhoto(ctx context.Context, id string) models.SyncState {
	state := remove(ctx, c, c.photos, id)
	if err := c.local.Delete(localstore.BlobKey(id)); err != nil {
		log.Error().Err(err).Str("photo_id", id).Msg("Failed to delete local photo bytes")
	}
	return state
}

// Photos returns every photo, newest first
func (c *Coordinator) Photos() []models.Photo {
	return load(c, c.photos)
}

// SaveComment appends a comment to a photo's thread
func (c *Coordinator) SaveComment(ctx context.Context, comment models.Comment) (models.Comment, models.SyncState) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = c.opts.Now().UTC()
	}
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}
	return comment, save(ctx, c, c.thread(comment.PhotoID), comment)
}

// DeleteComment removes one comment of a thread
func (c *Coordinator) DeleteComment(ctx context.Context, photoID, commentID string) models.SyncState {
	return remove(ctx, c, c.thread(photoID), commentID)
}

// ClearComments removes every comment of a thread. The result is pending if any
// deletion had to be kept locally.
func (c *Coordinator) ClearComments(ctx context.Context, photoID string) models.SyncState {
	state := models.SyncConfirmed
	for _, comment := range c.Comments(photoID) {
		if remove(ctx, c, c.thread(photoID), comment.ID) == models.SyncPending {
			state = models.SyncPending
		}
	}
	return state
}

// Comments returns a photo's thread, oldest first
func (c *Coordinator) Comments(photoID string) []models.Comment {
	return load(c, c.thread(photoID))
}

// Activities returns every planner activity ordered by date and start time
func (c *Coordinator) Activities() []models.PlannerActivity {
	return load(c, c.planner)
}

// SaveActivity adds or replaces an activity by rewriting the whole planner document
func (c *Coordinator) SaveActivity(ctx context.Context, activity models.PlannerActivity) models.SyncState {
	return c.writePlanner(ctx,
		func(list []models.PlannerActivity) []models.PlannerActivity { return upsertByID(list, activity) },
		func(col *collection[models.PlannerActivity]) Change { return col.storeLocked(c, activity) },
	)
}

// DeleteActivity removes an activity by rewriting the whole planner document
func (c *Coordinator) DeleteActivity(ctx context.Context, id string) models.SyncState {
	return c.writePlanner(ctx,
		func(list []models.PlannerActivity) []models.PlannerActivity { return removeByID(list, id) },
		func(col *collection[models.PlannerActivity]) Change { return col.removeLocked(c, id) },
	)
}

func (c *Coordinator) writePlanner(
	ctx context.Context,
	mutate func([]models.PlannerActivity) []models.PlannerActivity,
	fallback func(*collection[models.PlannerActivity]) Change,
) models.SyncState {
	c.plannerMu.Lock()
	defer c.plannerMu.Unlock()

	col := c.planner
	col.bind(c)

	c.mu.Lock()
	state := col.state
	next := mutate(col.itemsLocked(c))
	c.mu.Unlock()
	col.sort(next)

	if state == StateRemoteBound {
		err := c.submitPlanner(ctx, next)
		if err == nil {
			c.mu.Lock()
			// the snapshot confirming this write replaces the view again
			if col.state == StateRemoteBound {
				col.view = next
			}
			c.mu.Unlock()
			metrics.Writes.WithLabelValues(string(col.name), string(models.SyncConfirmed)).Inc()
			return models.SyncConfirmed
		}
		c.fellBack(col.name, err)
	}

	c.mu.Lock()
	change := fallback(col)
	c.mu.Unlock()

	metrics.Writes.WithLabelValues(string(col.name), string(models.SyncPending)).Inc()
	c.savedLocally()
	c.dispatch(change)
	return models.SyncPending
}
