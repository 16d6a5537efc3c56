package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"love-album-backend/internal/config"
	"love-album-backend/internal/services"
)

func newTestApp(t *testing.T, driver string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Remote.Driver = driver
	cfg.Local.Path = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestAppWithMemoryRemoteConfirmsWrites(t *testing.T) {
	a := newTestApp(t, config.DriverMemory)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":"hola"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"sync_state":"confirmed"`)
	assert.Equal(t, services.StateRemoteBound, a.Coordinator().State("messages", ""))

	report, err := a.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Submitted)
}

func TestAppWithoutRemoteStaysLocal(t *testing.T) {
	a := newTestApp(t, config.DriverNone)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":"hola"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sync_state":"pending"`)

	_, err := a.Migrate(context.Background())
	assert.Error(t, err)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
