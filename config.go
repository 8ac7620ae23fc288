package agentfs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentfs/agentfs/internal/storage"
)

// FileConfig is the on-disk form of Config (spec.md §6's "Configuration at
// open time" shape), loadable from a YAML file, plus a LogLevel knob
// consumed by SetupLogging rather than by the core itself.
type FileConfig struct {
	// Path is the database file path, or ":memory:" for the non-persistent
	// mode. Empty is treated the same as ":memory:".
	Path string `yaml:"path"`
	// Cache configures the path-resolution cache. Enabled is a pointer so a
	// missing YAML key can default to true instead of silently becoming a
	// zero-value false.
	Cache struct {
		Enabled    *bool `yaml:"enabled"`
		MaxEntries int   `yaml:"max_entries"`
	} `yaml:"cache"`
	// LogLevel is one of "trace", "debug", "info", "warn", "none"/"" (case
	// insensitive), consumed by SetupLogging.
	LogLevel string `yaml:"log_level"`
	// BusyTimeoutMS is a SQLite busy_timeout, in milliseconds, installed by
	// ApplyCLIBusyTimeout. It takes effect only for backends opened with
	// storage.DBContextCLI; Create and Open use storage.DBContextDefault,
	// which ignores it. Zero leaves the built-in default in place.
	BusyTimeoutMS int `yaml:"busy_timeout_ms"`
}

// ApplyDefaults fills zero-value fields with the same defaults newFS would
// otherwise apply implicitly, so a caller inspecting a loaded FileConfig
// sees the values that will actually be used.
func (cfg *FileConfig) ApplyDefaults() {
	if cfg.Cache.Enabled == nil {
		enabled := DefaultCacheConfig.Enabled
		cfg.Cache.Enabled = &enabled
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheConfig.MaxEntries
	}
}

// CacheEnabled reports the effective cache-enabled setting (defaults to
// true when unset).
func (cfg *FileConfig) CacheEnabled() bool {
	if cfg.Cache.Enabled == nil {
		return true
	}
	return *cfg.Cache.Enabled
}

// ApplyCLIBusyTimeout installs cfg's BusyTimeoutMS (if set) as the
// process-wide CLI busy_timeout override.
func (cfg *FileConfig) ApplyCLIBusyTimeout() {
	if cfg.BusyTimeoutMS > 0 {
		storage.SetCLIBusyTimeout(cfg.BusyTimeoutMS)
	}
}

// ToConfig converts the loaded file form into the Config Create/Open take.
func (cfg *FileConfig) ToConfig() Config {
	return Config{
		Path: cfg.Path,
		Cache: CacheConfig{
			Enabled:    cfg.CacheEnabled(),
			MaxEntries: cfg.Cache.MaxEntries,
		},
	}
}

// LoadFileConfig reads and parses a YAML config file at path. A missing
// file is not an error: it returns a zero-valued FileConfig with defaults
// applied, since embedders generally want a usable Config even with no
// file present.
func LoadFileConfig(path string) (*FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyDefaults()
			return &cfg, nil
		}
		return nil, fmt.Errorf("agentfs: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("agentfs: parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
