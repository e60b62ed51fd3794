// Package config loads titankv settings from defaults, an optional config
// file, .env files and TITAN_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/flashdb/titankv/internal/store"
)

// Config holds every titankv setting.
type Config struct {
	Env      string `mapstructure:"TITAN_ENV"`
	LogLevel string `mapstructure:"TITAN_LOG_LEVEL"`

	Storage StorageConfig `mapstructure:",squash"`
	Limits  LimitsConfig  `mapstructure:",squash"`
	HotKeys HotKeysConfig `mapstructure:",squash"`

	// CompositeLocking serializes read-modify-write cycles on the same
	// composite key inside one process.
	CompositeLocking bool `mapstructure:"TITAN_COMPOSITE_LOCKING"`
}

// StorageConfig selects and parameterizes the backend.
type StorageConfig struct {
	Backend         string        `mapstructure:"TITAN_BACKEND"` // memory, leveldb, redis
	DataDir         string        `mapstructure:"TITAN_DATA_DIR"`
	SyncWrites      bool          `mapstructure:"TITAN_SYNC_WRITES"`
	RedisURL        string        `mapstructure:"TITAN_REDIS_URL"`
	JanitorInterval time.Duration `mapstructure:"TITAN_JANITOR_INTERVAL"`
}

// LimitsConfig holds the default result limits and batch sizes.
type LimitsConfig struct {
	KeysLimit    int `mapstructure:"TITAN_KEYS_LIMIT"`
	ScanLimit    int `mapstructure:"TITAN_SCAN_LIMIT"`
	ScanCount    int `mapstructure:"TITAN_SCAN_COUNT"`
	IterateBatch int `mapstructure:"TITAN_ITERATE_BATCH"`
	ImportBatch  int `mapstructure:"TITAN_IMPORT_BATCH"`
}

// HotKeysConfig controls hot-key tracking. Top 0 disables it.
type HotKeysConfig struct {
	Top    int           `mapstructure:"TITAN_HOTKEYS_TOP"`
	Window time.Duration `mapstructure:"TITAN_HOTKEYS_WINDOW"`
}

var defaults = map[string]any{
	"TITAN_ENV":               "dev",
	"TITAN_LOG_LEVEL":         "",
	"TITAN_BACKEND":           string(store.KindMemory),
	"TITAN_DATA_DIR":          "",
	"TITAN_SYNC_WRITES":       false,
	"TITAN_REDIS_URL":         "",
	"TITAN_JANITOR_INTERVAL":  "1s",
	"TITAN_KEYS_LIMIT":        100000,
	"TITAN_SCAN_LIMIT":        1000,
	"TITAN_SCAN_COUNT":        10,
	"TITAN_ITERATE_BATCH":     100,
	"TITAN_IMPORT_BATCH":      5000,
	"TITAN_COMPOSITE_LOCKING": false,
	"TITAN_HOTKEYS_TOP":       10,
	"TITAN_HOTKEYS_WINDOW":    "60s",
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Env: "dev",
		Storage: StorageConfig{
			Backend:         string(store.KindMemory),
			JanitorInterval: time.Second,
		},
		Limits: LimitsConfig{
			KeysLimit:    100000,
			ScanLimit:    1000,
			ScanCount:    10,
			IterateBatch: 100,
			ImportBatch:  5000,
		},
		HotKeys: HotKeysConfig{
			Top:    10,
			Window: 60 * time.Second,
		},
	}
}

// loadDotEnv loads .env from the working directory and from dir. Variables
// already set in the environment win.
func loadDotEnv(dir string) {
	candidates := []string{".env"}
	if dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path)
		}
	}
}

// Load builds a Config. path names an optional config file in any format
// viper understands; pass "" to skip it.
func Load(path string) (*Config, error) {
	dir := ""
	if path != "" {
		dir = filepath.Dir(path)
	}
	loadDotEnv(dir)

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings are usable together.
func (c *Config) Validate() error {
	var errs []error

	switch store.Kind(c.Storage.Backend) {
	case store.KindMemory:
	case store.KindLevelDB:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("TITAN_DATA_DIR is required for the leveldb backend"))
		}
	case store.KindRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("TITAN_REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("TITAN_BACKEND %q is not one of memory, leveldb, redis", c.Storage.Backend))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("TITAN_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	positive := map[string]int{
		"TITAN_KEYS_LIMIT":    c.Limits.KeysLimit,
		"TITAN_SCAN_LIMIT":    c.Limits.ScanLimit,
		"TITAN_SCAN_COUNT":    c.Limits.ScanCount,
		"TITAN_ITERATE_BATCH": c.Limits.IterateBatch,
		"TITAN_IMPORT_BATCH":  c.Limits.ImportBatch,
	}
	for _, name := range []string{"TITAN_KEYS_LIMIT", "TITAN_SCAN_LIMIT", "TITAN_SCAN_COUNT", "TITAN_ITERATE_BATCH", "TITAN_IMPORT_BATCH"} {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Storage.JanitorInterval < 0 {
		errs = append(errs, errors.New("TITAN_JANITOR_INTERVAL must not be negative"))
	}
	if c.HotKeys.Top < 0 || c.HotKeys.Window < 0 {
		errs = append(errs, errors.New("TITAN_HOTKEYS_TOP and TITAN_HOTKEYS_WINDOW must not be negative"))
	}

	return errors.Join(errs...)
}

// StoreConfig returns the backend selection for store.Open.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Kind:            store.Kind(c.Storage.Backend),
		DataDir:         c.Storage.DataDir,
		SyncWrites:      c.Storage.SyncWrites,
		RedisURL:        c.Storage.RedisURL,
		JanitorInterval: c.Storage.JanitorInterval,
	}
}
