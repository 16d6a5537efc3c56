package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"love-album-backend/internal/localstore"
	"love-album-backend/internal/metrics"
	"love-album-backend/internal/models"
	"love-album-backend/internal/remote"
)

// BindState is the lifecycle state of one synchronized collection
type BindState string

const (
	StateUnbound     BindState = "unbound"
	StateLocalOnly   BindState = "local_only"
	StateRemoteBound BindState = "remote_bound"
)

// Change is delivered to listeners whenever the visible content of a collection changes
type Change struct {
	Collection models.Collection `json:"collection"`
	PhotoID    string            `json:"photo_id,omitempty"`
	Items      any               `json:"items"`
	Source     string            `json:"source"`
}

// Change sources
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// pendingLedger records what a cache key holds that the remote store has not confirmed
type pendingLedger[T models.Entity] struct {
	Records []T      `json:"records"`
	Deleted []string `json:"deleted"`
}

func (l *pendingLedger[T]) empty() bool {
	return len(l.Records) == 0 && len(l.Deleted) == 0
}

func (l *pendingLedger[T]) upsert(item T) {
	l.Deleted = removeString(l.Deleted, item.EntityID())
	l.Records = upsertByID(l.Records, item)
}

func (l *pendingLedger[T]) tombstone(id string) {
	l.Records = removeByID(l.Records, id)
	if !containsString(l.Deleted, id) {
		l.Deleted = append(l.Deleted, id)
	}
}

func readLedger[T models.Entity](store *localstore.Store, key string) pendingLedger[T] {
	var l pendingLedger[T]
	localstore.ReadValue(store, localstore.PendingKey(key), &l)
	return l
}

func writeLedger[T models.Entity](store *localstore.Store, key string, l pendingLedger[T]) error {
	if l.empty() {
		return store.Delete(localstore.PendingKey(key))
	}
	return localstore.WriteValue(store, localstore.PendingKey(key), l)
}

// syncedCollection is the type-independent view of a collection used for bulk operations
type syncedCollection interface {
	bind(c *Coordinator) bool
	unbind() *remote.Subscription
	status(c *Coordinator) CollectionStatus
	change(c *Coordinator) Change
	listenerKey() string
}

// collection is one synchronized collection (or one comment thread)
type collection[T models.Entity] struct {
	name    models.Collection
	key     string
	photoID string
	filter  *remote.Filter

	// less orders the visible items
	less func(a, b T) bool
	// decode turns a snapshot into items
	decode func(snap remote.Snapshot) []T
	// keep reconciles an incoming copy of a record with the one already held
	keep func(held, incoming T) T

	// serializes binding, which waits on the network outside the coordinator lock
	bindMu sync.Mutex

	// guarded by Coordinator.mu
	state BindState
	view  []T
	sub   *remote.Subscription
}

func (col *collection[T]) listenerKey() string {
	return listenerKey(col.name, col.photoID)
}

// bind moves an unbound collection to RemoteBound or LocalOnly. It reports whether the
// initial remote snapshot was dispatched to the listeners.
func (col *collection[T]) bind(c *Coordinator) bool {
	change, bound := col.tryBind(c)
	if bound {
		c.dispatch(change)
	}
	return bound
}

// tryBind reports true with the initial snapshot's change when the collection became
// RemoteBound
func (col *collection[T]) tryBind(c *Coordinator) (Change, bool) {
	col.bindMu.Lock()
	defer col.bindMu.Unlock()

	c.mu.Lock()
	state := col.state
	c.mu.Unlock()
	if state != StateUnbound {
		return Change{}, false
	}

	if !c.remote.IsAvailable() {
		col.goLocal(c, "remote store unavailable")
		return Change{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	defer cancel()

	sub, err := c.remote.Subscribe(ctx, col.name, col.filter)
	if err != nil {
		log.Warn().Err(err).Str("collection", string(col.name)).Msg("Subscribe failed")
		col.goLocal(c, "subscribe failed")
		return Change{}, false
	}

	var first remote.Snapshot
	select {
	case snap, ok := <-sub.Events():
		if !ok {
			col.goLocal(c, "subscription closed during handshake")
			return Change{}, false
		}
		first = snap
	case <-ctx.Done():
		sub.Close()
		col.goLocal(c, "initial snapshot timed out")
		return Change{}, false
	}

	c.mu.Lock()
	col.state = StateRemoteBound
	col.sub = sub
	change := col.applySnapshotLocked(c, first)
	c.mu.Unlock()

	log.Info().Str("collection", string(col.name)).Str("photo_id", col.photoID).Int("items", len(first.Documents)).Msg("Collection bound to remote store")
	go col.follow(c, sub)
	return change, true
}

func (col *collection[T]) goLocal(c *Coordinator, reason string) {
	c.mu.Lock()
	col.state = StateLocalOnly
	c.mu.Unlock()
	log.Info().Str("collection", string(col.name)).Str("photo_id", col.photoID).Str("reason", reason).Msg("Collection using local store")
}

// follow applies every later snapshot of sub until it is closed
func (col *collection[T]) follow(c *Coordinator, sub *remote.Subscription) {
	for snap := range sub.Events() {
		c.mu.Lock()
		if col.sub != sub {
			c.mu.Unlock()
			continue
		}
		change := col.applySnapshotLocked(c, snap)
		c.mu.Unlock()
		c.dispatch(change)
	}
}

// applySnapshotLocked replaces the view and the local cache with the snapshot content
func (col *collection[T]) applySnapshotLocked(c *Coordinator, snap remote.Snapshot) Change {
	items := col.decode(snap)

	if col.keep != nil {
		held := make(map[string]T)
		for _, item := range localstore.Read[T](c.local, col.key) {
			held[item.EntityID()] = item
		}
		for _, item := range col.view {
			held[item.EntityID()] = item
		}
		for i, item := range items {
			if old, ok := held[item.EntityID()]; ok {
				items[i] = col.keep(old, item)
			}
		}
	}

	col.sort(items)
	col.view = items
	if err := localstore.Write(c.local, col.key, items); err != nil {
		log.Error().Err(err).Str("key", col.key).Msg("Failed to cache snapshot")
	}
	metrics.Snapshots.WithLabelValues(string(col.name)).Inc()
	return col.changeLocked(SourceRemote)
}

func (col *collection[T]) sort(items []T) {
	if col.less != nil {
		sort.SliceStable(items, func(i, j int) bool { return col.less(items[i], items[j]) })
	}
}

// itemsLocked returns a copy of what the collection currently shows
func (col *collection[T]) itemsLocked(c *Coordinator) []T {
	if col.state == StateRemoteBound {
		return append([]T{}, col.view...)
	}
	items := localstore.Read[T](c.local, col.key)
	col.sort(items)
	return items
}

func (col *collection[T]) changeLocked(source string) Change {
	return Change{Collection: col.name, PhotoID: col.photoID, Items: append([]T{}, col.view...), Source: source}
}

// change describes the current content; it is remote while the collection is bound
func (col *collection[T]) change(c *Coordinator) Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	source := SourceLocal
	if col.state == StateRemoteBound {
		source = SourceRemote
	}
	return Change{Collection: col.name, PhotoID: col.photoID, Items: col.itemsLocked(c), Source: source}
}

// storeLocked upserts item into the local cache and the pending ledger
func (col *collection[T]) storeLocked(c *Coordinator, item T) Change {
	items := localstore.Read[T](c.local, col.key)
	if col.keep != nil {
		if held, ok := findByID(items, item.EntityID()); ok {
			item = col.keep(held, item)
		}
		if held, ok := findByID(col.view, item.EntityID()); ok {
			item = col.keep(held, item)
		}
	}
	items = upsertByID(items, item)
	col.sort(items)
	if err := localstore.Write(c.local, col.key, items); err != nil {
		log.Error().Err(err).Str("key", col.key).Msg("Failed to write local store")
	}

	ledger := readLedger[T](c.local, col.key)
	ledger.upsert(item)
	if err := writeLedger(c.local, col.key, ledger); err != nil {
		log.Error().Err(err).Str("key", col.key).Msg("Failed to record pending write")
	}

	if col.state == StateRemoteBound {
		col.view = upsertByID(col.view, item)
		col.sort(col.view)
	} else {
		col.view = items
	}
	return Change{Collection: col.name, PhotoID: col.photoID, Items: append([]T{}, col.view...), Source: SourceLocal}
}

// removeLocked deletes id from the local cache and records a pending deletion
func (col *collection[T]) removeLocked(c *Coordinator, id string) Change {
	items := removeByID(localstore.Read[T](c.local, col.key), id)
	if err := localstore.Write(c.local, col.key, items); err != nil {
		log.Error().Err(err).Str("key", col.key).Msg("Failed to write local store")
	}

	ledger := readLedger[T](c.local, col.key)
	ledger.tombstone(id)
	if err := writeLedger(c.local, col.key, ledger); err != nil {
		log.Error().Err(err).Str("key", col.key).Msg("Failed to record pending delete")
	}

	if col.state == StateRemoteBound {
		col.view = removeByID(col.view, id)
	} else {
		col.view = items
	}
	return Change{Collection: col.name, PhotoID: col.photoID, Items: append([]T{}, col.view...), Source: SourceLocal}
}

// unbind returns the collection to Unbound and hands back its subscription for closing
func (col *collection[T]) unbind() *remote.Subscription {
	sub := col.sub
	col.sub = nil
	col.state = StateUnbound
	col.view = nil
	return sub
}

func (col *collection[T]) status(c *Coordinator) CollectionStatus {
	ledger := readLedger[T](c.local, col.key)
	c.mu.Lock()
	state := col.state
	c.mu.Unlock()
	return CollectionStatus{
		Collection:     col.name,
		PhotoID:        col.photoID,
		State:          state,
		PendingRecords: len(ledger.Records),
		PendingDeletes: len(ledger.Deleted),
	}
}

// decodeRecords builds one item per document. stamp fills fields the server owns.
func decodeRecords[T models.Entity](stamp func(*T, remote.Document)) func(remote.Snapshot) []T {
	return func(snap remote.Snapshot) []T {
		items := make([]T, 0, len(snap.Documents))
		for _, doc := range snap.Documents {
			var item T
			if err := json.Unmarshal(doc.Data, &item); err != nil {
				log.Warn().Err(err).Str("collection", string(snap.Collection)).Str("id", doc.ID).Msg("Skipping undecodable document")
				continue
			}
			stamp(&item, doc)
			items = append(items, item)
		}
		return items
	}
}

// decodePlanner reads the single planner document
func decodePlanner(snap remote.Snapshot) []models.PlannerActivity {
	for _, doc := range snap.Documents {
		if doc.ID != models.PlannerDocumentKey {
			continue
		}
		var payload models.PlannerDocument
		if err := json.Unmarshal(doc.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable planner document")
			return []models.PlannerActivity{}
		}
		if payload.Activities == nil {
			return []models.PlannerActivity{}
		}
		return payload.Activities
	}
	return []models.PlannerActivity{}
}

func stampMessage(m *models.Message, doc remote.Document) {
	if m.ID == "" {
		m.ID = doc.ID
	}
	created := doc.CreatedAt
	m.ServerCreatedAt = &created
}

func stampPhoto(p *models.Photo, doc remote.Document) {
	if p.ID == "" {
		p.ID = doc.ID
	}
	created := doc.CreatedAt
	p.ServerCreatedAt = &created
}

func stampComment(cm *models.Comment, doc remote.Document) {
	if cm.ID == "" {
		cm.ID = doc.ID
	}
	created := doc.CreatedAt
	cm.ServerCreatedAt = &created
}

// Ordering of the visible collections
func messagesNewestFirst(a, b models.Message) bool { return a.CreatedAt.After(b.CreatedAt) }

func photosNewestFirst(a, b models.Photo) bool { return a.UploadedAt.After(b.UploadedAt) }

func commentsOldestFirst(a, b models.Comment) bool { return a.CreatedAt.Before(b.CreatedAt) }

func activitiesBySchedule(a, b models.PlannerActivity) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return a.StartTime < b.StartTime
}

// LocalBlobPrefix marks a photo whose bytes are still held by the local store
const LocalBlobPrefix = "local:blob/"

// IsRemoteLocation reports whether ref is a permanent remote URL
func IsRemoteLocation(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, LocalBlobPrefix)
}

// keepRemoteLocation never lets a remote URL be replaced by a local or empty reference
func keepRemoteLocation(held, incoming models.Photo) models.Photo {
	if IsRemoteLocation(held.LocationRef) && !IsRemoteLocation(incoming.LocationRef) {
		incoming.LocationRef = held.LocationRef
	}
	return incoming
}

func listenerKey(name models.Collection, photoID string) string {
	if photoID == "" {
		return string(name)
	}
	return string(name) + "/" + photoID
}

func upsertByID[T models.Entity](items []T, item T) []T {
	for i := range items {
		if items[i].EntityID() == item.EntityID() {
			out := append([]T{}, items...)
			out[i] = item
			return out
		}
	}
	return append(append([]T{}, items...), item)
}

func removeByID[T models.Entity](items []T, id string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item.EntityID() != id {
			out = append(out, item)
		}
	}
	return out
}

func findByID[T models.Entity](items []T, id string) (T, bool) {
	for _, item := range items {
		if item.EntityID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
