package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/titankv/internal/store"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TITAN_BACKEND", "LevelDB")
	t.Setenv("TITAN_DATA_DIR", "/tmp/titan")
	t.Setenv("TITAN_SCAN_COUNT", "25")
	t.Setenv("TITAN_HOTKEYS_WINDOW", "5m")
	t.Setenv("TITAN_COMPOSITE_LOCKING", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "leveldb", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/titan", cfg.Storage.DataDir)
	assert.Equal(t, 25, cfg.Limits.ScanCount)
	assert.Equal(t, 5*time.Minute, cfg.HotKeys.Window)
	assert.True(t, cfg.CompositeLocking)

	sc := cfg.StoreConfig()
	assert.Equal(t, store.KindLevelDB, sc.Kind)
	assert.Equal(t, "/tmp/titan", sc.DataDir)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("titan_backend: redis\ntitan_redis_url: redis://localhost:6379/1\ntitan_import_batch: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, 50, cfg.Limits.ImportBatch)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("titan_scan_limit: 10\n"), 0o644))
	t.Setenv("TITAN_SCAN_LIMIT", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Limits.ScanLimit)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, true},
		{"leveldb without dir", func(c *Config) { c.Storage.Backend = "leveldb" }, true},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"zero scan count", func(c *Config) { c.Limits.ScanCount = 0 }, true},
		{"negative janitor", func(c *Config) { c.Storage.JanitorInterval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
