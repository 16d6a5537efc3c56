package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"love-album-backend/internal/models"
	"love-album-backend/internal/repository"
)

// Runs against a real PostgreSQL when LOVE_TEST_DATABASE_DSN is set
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := os.Getenv("LOVE_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("LOVE_TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	docs := repository.NewDocumentRepository(pool)
	require.NoError(t, docs.Migrate(ctx))
	_, err = pool.Exec(ctx, `DELETE FROM documents WHERE collection LIKE 'test_%'`)
	require.NoError(t, err)

	b := NewBackend(docs, nil)
	b.Start(ctx)
	t.Cleanup(b.Close)
	require.True(t, b.IsAvailable())
	return b
}

func TestBackendRealtimeSnapshots(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	const coll = models.Collection("test_messages")

	sub, err := b.Subscribe(ctx, coll, nil)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, nextSnapshot(t, sub).Documents)

	_, err = b.Put(ctx, coll, models.Message{ID: "m1", Content: "hello"})
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-sub.Events():
			if len(snap.Documents) == 1 {
				assert.Equal(t, "m1", snap.Documents[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("write was not delivered through LISTEN/NOTIFY")
		}
	}
}

func TestBackendUploadWithoutBlobStorage(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.UploadBlob(context.Background(), []byte("x"), "photos/a_b.png")
	assert.Error(t, err)
}
