package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/identity"
	"love-album-backend/internal/localstore"
	"love-album-backend/internal/models"
	"love-album-backend/internal/remote"
)

// spyStore counts calls reaching the wrapped store and can inject write failures
type spyStore struct {
	remote.Store

	mu      sync.Mutex
	puts    map[models.Collection]int
	wholes  []models.PlannerDocument
	failPut func(collection models.Collection, id string) bool
	noBlobs bool
}

func newSpy(inner remote.Store) *spyStore {
	return &spyStore{Store: inner, puts: make(map[models.Collection]int)}
}

func (s *spyStore) Put(ctx context.Context, collection models.Collection, entity models.Entity) (string, error) {
	s.mu.Lock()
	s.puts[collection]++
	fail := s.failPut != nil && s.failPut(collection, entity.EntityID())
	s.mu.Unlock()

	if fail {
		return "", apperrors.New(apperrors.ErrRemoteFault, "injected failure")
	}
	return s.Store.Put(ctx, collection, entity)
}

func (s *spyStore) UploadBlob(ctx context.Context, data []byte, key string) (string, error) {
	s.mu.Lock()
	fail := s.noBlobs
	s.mu.Unlock()

	if fail {
		return "", apperrors.New(apperrors.ErrRemoteFault, "injected blob failure")
	}
	return s.Store.UploadBlob(ctx, data, key)
}

func (s *spyStore) PutWhole(ctx context.Context, collection models.Collection, documentKey string, payload any) error {
	s.mu.Lock()
	if doc, ok := payload.(models.PlannerDocument); ok {
		s.wholes = append(s.wholes, doc)
	}
	s.mu.Unlock()
	return s.Store.PutWhole(ctx, collection, documentKey, payload)
}

func (s *spyStore) putCount(collection models.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[collection]
}

func (s *spyStore) lastWhole() (models.PlannerDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.wholes) == 0 {
		return models.PlannerDocument{}, false
	}
	return s.wholes[len(s.wholes)-1], true
}

// recordingNotifier keeps every notification as "level: message"
type recordingNotifier struct {
	mu      sync.Mutex
	entries []string
}

func (n *recordingNotifier) Notify(level Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, fmt.Sprintf("%s: %s", level, message))
}

func (n *recordingNotifier) contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

var testNow = time.Date(2024, 2, 14, 20, 0, 0, 0, time.UTC)

func newLocal(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newCoordinator(t *testing.T, local *localstore.Store, rs remote.Store, n Notifier) *Coordinator {
	t.Helper()
	c := NewCoordinator(local, rs, identity.NewResolverWithClock(func() time.Time { return testNow }), n, CoordinatorOptions{
		HandshakeTimeout: time.Second,
		CallTimeout:      time.Second,
		Now:              func() time.Time { return testNow },
	})
	t.Cleanup(c.Close)
	return c
}

func messageIDs(items []models.Message) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

func TestSaveWhileRemoteBoundIsConfirmed(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	local := newLocal(t)
	c := newCoordinator(t, local, mem, nil)

	msg, state := c.SaveMessage(ctx, models.Message{Content: "te quiero"})
	assert.Equal(t, models.SyncConfirmed, state)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionMessages, ""))

	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	stored := c.Messages()[0]
	assert.Equal(t, msg.ID, stored.ID)
	assert.NotNil(t, stored.ServerCreatedAt)

	// the confirmed write is not pending anywhere
	assert.Empty(t, readLedger[models.Message](local, localstore.KeyMessages).Records)
}

func TestSaveWhileUnavailableFallsBackToLocalStore(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	mem.SetAvailable(false)
	local := newLocal(t)
	notes := &recordingNotifier{}
	c := newCoordinator(t, local, mem, notes)

	msg, state := c.SaveMessage(ctx, models.Message{ID: "m1", Content: "hola"})

	assert.Equal(t, models.SyncPending, state)
	assert.Equal(t, StateLocalOnly, c.State(models.CollectionMessages, ""))
	assert.Equal(t, []models.Message{msg}, localstore.Read[models.Message](local, localstore.KeyMessages))
	assert.Equal(t, []string{"m1"}, messageIDs(readLedger[models.Message](local, localstore.KeyMessages).Records))
	assert.True(t, notes.contains("warning"))
	assert.Empty(t, mem.Documents(models.CollectionMessages))
}

func TestRemoteFailureFallsBackForThatWriteOnly(t *testing.T) {
	ctx := context.Background()
	spy := newSpy(remote.NewMemory())
	spy.failPut = func(_ models.Collection, id string) bool { return id == "flaky" }
	local := newLocal(t)
	c := newCoordinator(t, local, spy, nil)

	_, state := c.SaveMessage(ctx, models.Message{ID: "flaky", Content: "lost in transit"})
	assert.Equal(t, models.SyncPending, state)
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionMessages, ""))

	_, state = c.SaveMessage(ctx, models.Message{ID: "fine", Content: "delivered"})
	assert.Equal(t, models.SyncConfirmed, state)

	assert.Equal(t, []string{"flaky"}, messageIDs(readLedger[models.Message](local, localstore.KeyMessages).Records))
}

func TestLocalUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	c := newCoordinator(t, local, remote.NewDisabled(), nil)

	msg := models.Message{ID: "m1", Content: "same", CreatedAt: testNow}
	c.SaveMessage(ctx, msg)
	c.SaveMessage(ctx, msg)

	assert.Equal(t, []models.Message{msg}, c.Messages())
	assert.Len(t, readLedger[models.Message](local, localstore.KeyMessages).Records, 1)
}

func TestSnapshotReplacesLocalCache(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	require.NoError(t, localstore.Write(local, localstore.KeyMessages, []models.Message{{ID: "x"}, {ID: "y"}}))

	mem := remote.NewMemory()
	_, err := mem.Put(ctx, models.CollectionMessages, models.Message{ID: "z", Content: "from the server"})
	require.NoError(t, err)

	c := newCoordinator(t, local, mem, nil)
	assert.Equal(t, []string{"z"}, messageIDs(c.Messages()))
	assert.Equal(t, []string{"z"}, messageIDs(localstore.Read[models.Message](local, localstore.KeyMessages)))
}

func TestOrdering(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, newLocal(t), remote.NewDisabled(), nil)

	c.SaveMessage(ctx, models.Message{ID: "old", CreatedAt: testNow.Add(-time.Hour)})
	c.SaveMessage(ctx, models.Message{ID: "tie-1", CreatedAt: testNow})
	c.SaveMessage(ctx, models.Message{ID: "tie-2", CreatedAt: testNow})
	assert.Equal(t, []string{"tie-1", "tie-2", "old"}, messageIDs(c.Messages()))

	c.SaveComment(ctx, models.Comment{ID: "second", PhotoID: "p1", CreatedAt: testNow})
	c.SaveComment(ctx, models.Comment{ID: "first", PhotoID: "p1", CreatedAt: testNow.Add(-time.Minute)})
	comments := c.Comments("p1")
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].ID)
	assert.Equal(t, "second", comments[1].ID)

	c.SaveActivity(ctx, models.PlannerActivity{ID: "b", Date: "2024-02-15", StartTime: "09:00"})
	c.SaveActivity(ctx, models.PlannerActivity{ID: "c", Date: "2024-02-14", StartTime: "18:00"})
	c.SaveActivity(ctx, models.PlannerActivity{ID: "a", Date: "2024-02-14", StartTime: "08:30"})
	var order []string
	for _, a := range c.Activities() {
		order = append(order, a.ID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, order)
}

func TestRemoteLocationIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	require.NoError(t, localstore.Write(local, localstore.KeyPhotos, []models.Photo{
		{ID: "sunsetjpg", DisplayName: "sunset.jpg", LocationRef: "https://cdn.example.net/photos/sunsetjpg_sunset.jpg"},
	}))

	mem := remote.NewMemory()
	_, err := mem.Put(ctx, models.CollectionPhotos, models.Photo{ID: "sunsetjpg", DisplayName: "sunset.jpg"})
	require.NoError(t, err)

	c := newCoordinator(t, local, mem, nil)
	photos := c.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "https://cdn.example.net/photos/sunsetjpg_sunset.jpg", photos[0].LocationRef)

	assert.Equal(t, "https://cdn.example.net/photos/sunsetjpg_sunset.jpg",
		keepRemoteLocation(photos[0], models.Photo{ID: "sunsetjpg", LocationRef: LocalBlobPrefix + "sunsetjpg"}).LocationRef)
}

func TestPlannerWritesWholeDocument(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	existing := make([]models.PlannerActivity, 5)
	for i := range existing {
		existing[i] = models.PlannerActivity{ID: fmt.Sprintf("a%d", i), Date: "2024-02-1" + fmt.Sprint(i), StartTime: "10:00"}
	}
	require.NoError(t, mem.PutWhole(ctx, models.CollectionPlanner, models.PlannerDocumentKey,
		models.PlannerDocument{Activities: existing, LastUpdated: testNow}))

	spy := newSpy(mem)
	c := newCoordinator(t, newLocal(t), spy, nil)
	require.Len(t, c.Activities(), 5)

	state := c.SaveActivity(ctx, models.PlannerActivity{ID: "new", Date: "2024-02-20", StartTime: "12:00"})
	assert.Equal(t, models.SyncConfirmed, state)

	doc, ok := spy.lastWhole()
	require.True(t, ok)
	assert.Len(t, doc.Activities, 6)
	assert.Equal(t, testNow, doc.LastUpdated)
	assert.Len(t, c.Activities(), 6)

	state = c.DeleteActivity(ctx, "a0")
	assert.Equal(t, models.SyncConfirmed, state)
	doc, _ = spy.lastWhole()
	assert.Len(t, doc.Activities, 5)
}

func TestPhotoIdentityIsStableAcrossReloads(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)

	first := newCoordinator(t, local, remote.NewDisabled(), nil)
	photo, state := first.UploadPhoto(ctx, "sunset.jpg", []byte("jpeg bytes"))
	assert.Equal(t, models.SyncPending, state)
	assert.Equal(t, "sunsetjpg", photo.ID)
	assert.Equal(t, LocalBlobPrefix+"sunsetjpg", photo.LocationRef)
	first.SaveComment(ctx, models.Comment{PhotoID: photo.ID, Author: models.PersonA, Text: "preciosa"})

	reloaded := newCoordinator(t, local, remote.NewDisabled(), nil)
	photos := reloaded.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "sunsetjpg", photos[0].ID)
	assert.Len(t, reloaded.Comments(photos[0].ID), 1)

	data, ok := reloaded.LocalBlob("sunsetjpg")
	assert.True(t, ok)
	assert.Equal(t, []byte("jpeg bytes"), data)
}

func TestIdentityCollisionIsReportedNotRepaired(t *testing.T) {
	ctx := context.Background()
	notes := &recordingNotifier{}
	c := newCoordinator(t, newLocal(t), remote.NewDisabled(), notes)

	c.UploadPhoto(ctx, "sunset.jpg", []byte("one"))
	photo, _ := c.UploadPhoto(ctx, "Sunset.JPG", []byte("two"))

	assert.Equal(t, "sunsetjpg", photo.ID)
	assert.True(t, notes.contains("sunsetjpg"))
	assert.Len(t, c.Photos(), 1)
}

func TestUploadWhileBoundStoresRemoteURL(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	c := newCoordinator(t, newLocal(t), mem, nil)

	photo, state := c.UploadPhoto(ctx, "beach.png", []byte("png"))
	assert.Equal(t, models.SyncConfirmed, state)
	assert.Equal(t, "memory://blobs/photos/beachpng_beach.png", photo.LocationRef)

	_, ok := mem.Blob("photos/beachpng_beach.png")
	assert.True(t, ok)
	_, ok = c.LocalBlob("beachpng")
	assert.False(t, ok)
}

func TestFailedReuploadKeepsRemotePhoto(t *testing.T) {
	ctx := context.Background()
	spy := newSpy(remote.NewMemory())
	c := newCoordinator(t, newLocal(t), spy, nil)

	first, state := c.UploadPhoto(ctx, "beach.png", []byte("png"))
	require.Equal(t, models.SyncConfirmed, state)

	spy.mu.Lock()
	spy.noBlobs = true
	spy.mu.Unlock()

	again, state := c.UploadPhoto(ctx, "beach.png", []byte("new png"))
	assert.Equal(t, models.SyncPending, state)
	assert.Equal(t, first.LocationRef, again.LocationRef)

	_, ok := c.LocalBlob("beachpng")
	assert.False(t, ok)

	photos := c.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, first.LocationRef, photos[0].LocationRef)
}

func TestSubscribeAndReleaseCommentThread(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	c := newCoordinator(t, newLocal(t), mem, nil)

	var mu sync.Mutex
	var latest []models.Comment
	cancel := c.Subscribe(models.CollectionComments, "p1", func(ch Change) {
		mu.Lock()
		defer mu.Unlock()
		latest = ch.Items.([]models.Comment)
	})
	assert.Equal(t, 1, mem.Subscribers())
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionComments, "p1"))

	c.SaveComment(ctx, models.Comment{PhotoID: "p1", Author: models.PersonB, Text: "me encanta"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	cancel()
	assert.Equal(t, 0, mem.Subscribers())
	assert.Equal(t, StateUnbound, c.State(models.CollectionComments, "p1"))
}

func TestRefreshRebindsAfterOutage(t *testing.T) {
	mem := remote.NewMemory()
	mem.SetAvailable(false)
	c := newCoordinator(t, newLocal(t), mem, nil)

	c.Start()
	assert.Equal(t, StateLocalOnly, c.State(models.CollectionMessages, ""))

	mem.SetAvailable(true)
	c.Refresh()
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionMessages, ""))
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionPhotos, ""))
	assert.Equal(t, StateRemoteBound, c.State(models.CollectionPlanner, ""))
	assert.Equal(t, 3, mem.Subscribers())

	c.Refresh()
	assert.Equal(t, 3, mem.Subscribers())
}

func TestStatusReportsPendingWork(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, newLocal(t), remote.NewDisabled(), nil)

	c.SaveMessage(ctx, models.Message{ID: "m1"})
	c.SaveMessage(ctx, models.Message{ID: "m2"})
	c.DeleteMessage(ctx, "m2")

	status := c.Status()
	assert.False(t, status.RemoteAvailable)
	require.NotEmpty(t, status.Collections)
	messages := status.Collections[0]
	assert.Equal(t, models.CollectionMessages, messages.Collection)
	assert.Equal(t, StateLocalOnly, messages.State)
	assert.Equal(t, 1, messages.PendingRecords)
	assert.Equal(t, 1, messages.PendingDeletes)
}

// changeLog collects every change delivered to one listener
type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) add(ch Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, ch)
}

func (l *changeLog) all() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change{}, l.changes...)
}

func TestSubscribeDeliversInitialContentOnce(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	_, err := mem.Put(ctx, models.CollectionComments, models.Comment{ID: "c1", PhotoID: "p1", Author: models.PersonA, Text: "hola"})
	require.NoError(t, err)
	c := newCoordinator(t, newLocal(t), mem, nil)

	first := &changeLog{}
	cancel := c.Subscribe(models.CollectionComments, "p1", first.add)
	defer cancel()

	changes := first.all()
	require.Len(t, changes, 1)
	assert.Equal(t, SourceRemote, changes[0].Source)
	assert.Len(t, changes[0].Items, 1)

	// a second listener on the already bound thread gets the current content once too
	second := &changeLog{}
	cancelSecond := c.Subscribe(models.CollectionComments, "p1", second.add)
	defer cancelSecond()

	changes = second.all()
	require.Len(t, changes, 1)
	assert.Equal(t, SourceRemote, changes[0].Source)
	assert.Len(t, first.all(), 1)
}

func TestSubscribeWhileUnavailableDeliversLocalContentOnce(t *testing.T) {
	c := newCoordinator(t, newLocal(t), remote.NewDisabled(), nil)

	log := &changeLog{}
	cancel := c.Subscribe(models.CollectionMessages, "", log.add)
	defer cancel()

	changes := log.all()
	require.Len(t, changes, 1)
	assert.Equal(t, SourceLocal, changes[0].Source)
}

func TestRefreshDispatchesEachCollectionOnce(t *testing.T) {
	mem := remote.NewMemory()
	c := newCoordinator(t, newLocal(t), mem, nil)

	log := &changeLog{}
	cancel := c.Subscribe(models.CollectionMessages, "", log.add)
	defer cancel()
	require.Len(t, log.all(), 1)

	c.Refresh()

	changes := log.all()
	require.Len(t, changes, 2)
	assert.Equal(t, SourceRemote, changes[1].Source)
}

func TestConcurrentSavesOfDistinctIDsAreAllKept(t *testing.T) {
	const writers = 50

	tests := []struct {
		name  string
		store func() remote.Store
		state models.SyncState
	}{
		{"remote bound", func() remote.Store { return remote.NewMemory() }, models.SyncConfirmed},
		{"local only", func() remote.Store { return remote.NewDisabled() }, models.SyncPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := newCoordinator(t, newLocal(t), tt.store(), nil)
			c.Start()

			var wg sync.WaitGroup
			states := make(chan models.SyncState, 2*writers)
			for i := 0; i < writers; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					_, state := c.SaveMessage(ctx, models.Message{ID: fmt.Sprintf("m%02d", i), Content: "hola", CreatedAt: testNow})
					states <- state
				}(i)
				go func(i int) {
					defer wg.Done()
					states <- c.SaveActivity(ctx, models.PlannerActivity{
						ID:        fmt.Sprintf("a%02d", i),
						Owner:     models.PersonA,
						Date:      "2024-02-15",
						StartTime: fmt.Sprintf("%02d:%02d", i/4, (i%4)*15),
					})
				}(i)
			}
			wg.Wait()
			close(states)

			for state := range states {
				assert.Equal(t, tt.state, state)
			}
			require.Eventually(t, func() bool {
				return len(c.Messages()) == writers && len(c.Activities()) == writers
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}
