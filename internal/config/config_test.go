package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Remote.Driver)
	assert.Equal(t, int64(10_000_000), cfg.Photos.MaxSize.Int64())
	assert.Equal(t, 25*time.Minute, cfg.Pomodoro.Focus.Std())
	assert.True(t, cfg.Photos.AllowsExtension(".JPG"))
	assert.False(t, cfg.Photos.AllowsExtension("bmp"))
}

func TestParseHumanSizesAndDurations(t *testing.T) {
	cfg, err := Parse([]byte(`
photos:
  max_size: 5MiB
remote:
  driver: memory
  handshake_timeout: 250ms
  call_timeout: 2
`))
	require.NoError(t, err)

	assert.Equal(t, int64(5*1024*1024), cfg.Photos.MaxSize.Int64())
	assert.Equal(t, DriverMemory, cfg.Remote.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Remote.HandshakeTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.Remote.CallTimeout.Std())
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte("remote:\n  driver: firebase\n"))
	assert.Error(t, err)
}

func TestParseRejectsBadSize(t *testing.T) {
	_, err := Parse([]byte("photos:\n  max_size: lots\n"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LOVE_DB_PASSWORD", "s3cret")
	t.Setenv("LOVE_DB_PORT", "6543")
	t.Setenv("LOVE_REMOTE_DRIVER", "none")

	cfg, err := Parse([]byte("database:\n  password: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, DriverNone, cfg.Remote.Driver)
	assert.Contains(t, cfg.Database.DSN(), "port=6543")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owners:\n  person_a: Ana\n  person_b: Ben\nletter:\n  path: /srv/letter.txt\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Ana", cfg.Owners.PersonA)
	assert.Equal(t, "/srv/letter.txt", cfg.Letter.Path)
	assert.False(t, cfg.APNS.Enabled())
}
