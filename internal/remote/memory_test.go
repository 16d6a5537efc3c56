package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/models"
)

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return Snapshot{}
}

func ids(snap Snapshot) []string {
	out := make([]string, len(snap.Documents))
	for i, doc := range snap.Documents {
		out[i] = doc.ID
	}
	return out
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Put(ctx, models.CollectionMessages, models.Message{ID: "m1", Content: "hi"})
	require.NoError(t, err)

	sub, err := m.Subscribe(ctx, models.CollectionMessages, nil)
	require.NoError(t, err)
	defer sub.Close()

	snap := nextSnapshot(t, sub)
	assert.Equal(t, models.CollectionMessages, snap.Collection)
	assert.Equal(t, []string{"m1"}, ids(snap))
	assert.False(t, snap.Documents[0].CreatedAt.IsZero())
}

func TestSubscribeEmptyCollection(t *testing.T) {
	sub, err := NewMemory().Subscribe(context.Background(), models.CollectionPhotos, nil)
	require.NoError(t, err)
	defer sub.Close()

	assert.Empty(t, nextSnapshot(t, sub).Documents)
}

func TestPutIsUpsertByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Put(ctx, models.CollectionMessages, models.Message{ID: "m1", Content: "first"})
	require.NoError(t, err)
	created := m.Documents(models.CollectionMessages)[0].CreatedAt

	_, err = m.Put(ctx, models.CollectionMessages, models.Message{ID: "m1", Content: "second"})
	require.NoError(t, err)

	docs := m.Documents(models.CollectionMessages)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"id":"m1","content":"second","created_at":"0001-01-01T00:00:00Z"}`, string(docs[0].Data))
	assert.Equal(t, created, docs[0].CreatedAt)
}

func TestSnapshotsFollowWritesAndKeepOnlyLatest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.Subscribe(ctx, models.CollectionMessages, nil)
	require.NoError(t, err)
	defer sub.Close()

	_, err = m.Put(ctx, models.CollectionMessages, models.Message{ID: "a"})
	require.NoError(t, err)
	_, err = m.Put(ctx, models.CollectionMessages, models.Message{ID: "b"})
	require.NoError(t, err)

	// initial and intermediate snapshots were replaced by the newest one
	assert.Equal(t, []string{"a", "b"}, ids(nextSnapshot(t, sub)))

	require.NoError(t, m.Delete(ctx, models.CollectionMessages, "a"))
	assert.Equal(t, []string{"b"}, ids(nextSnapshot(t, sub)))
}

func TestFilteredSubscription(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Put(ctx, models.CollectionComments, models.Comment{ID: "c1", PhotoID: "sunsetjpg"})
	require.NoError(t, err)
	_, err = m.Put(ctx, models.CollectionComments, models.Comment{ID: "c2", PhotoID: "beachpng"})
	require.NoError(t, err)

	sub, err := m.Subscribe(ctx, models.CollectionComments, ByPhoto("sunsetjpg"))
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []string{"c1"}, ids(nextSnapshot(t, sub)))
}

func TestCloseEndsSubscription(t *testing.T) {
	m := NewMemory()
	sub, err := m.Subscribe(context.Background(), models.CollectionPlanner, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, m.Subscribers())

	// drain the initial snapshot, then the channel reports closed
	<-sub.Events()
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestOfflineMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetAvailable(false)

	assert.False(t, m.IsAvailable())
	_, err := m.Put(ctx, models.CollectionMessages, models.Message{ID: "m1"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
	_, err = m.Subscribe(ctx, models.CollectionMessages, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
	_, err = m.UploadBlob(ctx, []byte{1}, "photos/x_y.png")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
}

func TestUploadBlob(t *testing.T) {
	m := NewMemory()
	url, err := m.UploadBlob(context.Background(), []byte("png"), "photos/sunsetjpg_sunset.jpg")
	require.NoError(t, err)
	assert.Equal(t, "memory://blobs/photos/sunsetjpg_sunset.jpg", url)

	data, ok := m.Blob("photos/sunsetjpg_sunset.jpg")
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), data)
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()
	d := NewDisabled()

	assert.False(t, d.IsAvailable())
	err := d.PutWhole(ctx, models.CollectionPlanner, models.PlannerDocumentKey, models.PlannerDocument{})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
	assert.True(t, apperrors.Is(d.Delete(ctx, models.CollectionMessages, "m1"), apperrors.ErrUnavailable))
}
