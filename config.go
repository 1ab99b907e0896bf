package vrcore

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/panovr/vrcore/compat"
	"github.com/panovr/vrcore/fallback"
	"github.com/panovr/vrcore/faults"
	"github.com/panovr/vrcore/logging"
	"github.com/panovr/vrcore/storage"
)

// Default tuning values.
const (
	DefaultStereoTimeout = 1 * time.Second
)

// Config holds everything a Manager needs: the host-owned capabilities and
// the behavioral tuning.
type Config struct {
	// Viewer resolves plugin handles (required).
	Viewer Viewer

	// Environment supplies platform capability probes (required).
	Environment compat.Environment

	// Container is the host element owning the viewer. Fullscreen
	// capabilities are discovered by interface assertion. Optional.
	Container any

	// Permissions triggers the platform permission prompt. Required only
	// for environments whose orientation access is permission-gated
	// (iOS 13+); elsewhere it may be nil.
	Permissions PermissionRequester

	// Store persists advisory flags. Defaults to an in-memory store.
	Store storage.FlagStore

	// FallbackHost performs degraded-mode side effects. Defaults to a
	// no-op host.
	FallbackHost fallback.Host

	// Reload is the host's full-reload hook, used by the reload fallback
	// policy. Optional.
	Reload func()

	// OnStateChange, if set, is subscribed before the first state
	// notification.
	OnStateChange Listener

	// LogLevel is the minimum stored log level.
	LogLevel logging.Level

	// LogSink receives the structured mirror of stored log entries.
	// Defaults to discard.
	LogSink io.Writer

	// MaxLogEntries bounds the log buffer. Zero means the logging
	// package default.
	MaxLogEntries int

	// MaxErrorHistory bounds the classifier's retained errors. Zero means
	// the faults package default.
	MaxErrorHistory int

	// MaxRetries is the per-signature recovery ceiling. Zero means the
	// faults package default.
	MaxRetries int

	// RetryDelay is the pause before a plain retry recovery. Zero means
	// the faults package default.
	RetryDelay time.Duration

	// StereoTimeout bounds the guarded stereo plugin call. Defaults to
	// DefaultStereoTimeout.
	StereoTimeout time.Duration

	// FallbackPolicy is the escalation once the recovery ceiling is hit.
	// Empty means the faults package default.
	FallbackPolicy faults.FallbackPolicy

	// ShowDetails exposes technical error detail (raw messages, categories,
	// IDs) in diagnostics output. Intended for development.
	ShowDetails bool
}

// validate checks that required capabilities are present.
func (c *Config) validate() error {
	if c.Viewer == nil {
		return errors.New("vrcore: Viewer is required")
	}
	if c.Environment == nil {
		return errors.New("vrcore: Environment is required")
	}
	if c.MaxRetries < 0 {
		return errors.New("vrcore: MaxRetries must be non-negative")
	}
	if c.RetryDelay < 0 {
		return errors.New("vrcore: RetryDelay must be non-negative")
	}
	if c.StereoTimeout < 0 {
		return errors.New("vrcore: StereoTimeout must be non-negative")
	}
	return nil
}

// withDefaults returns a copy of the config with defaults applied.
func (c Config) withDefaults() Config {
	cfg := c
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.FallbackHost == nil {
		cfg.FallbackHost = fallback.NopHost{}
	}
	if cfg.StereoTimeout == 0 {
		cfg.StereoTimeout = DefaultStereoTimeout
	}
	return cfg
}

// Settings are the file/env-loadable tunables of the core, for hosts that
// configure it from the outside (kiosk deployments). Apply copies them onto
// a Config.
type Settings struct {
	LogLevel        string `koanf:"log_level"`
	MaxLogEntries   int    `koanf:"max_log_entries"`
	MaxRetries      int    `koanf:"max_retries"`
	RetryDelayMs    int    `koanf:"retry_delay_ms"`
	StereoTimeoutMs int    `koanf:"stereo_timeout_ms"`
	FallbackPolicy  string `koanf:"fallback_policy"`
	ShowDetails     bool   `koanf:"show_details"`
	StorePath       string `koanf:"store_path"`
}

// defaultSettings mirrors the package defaults.
func defaultSettings() Settings {
	return Settings{
		LogLevel:        "info",
		MaxLogEntries:   logging.DefaultMaxEntries,
		MaxRetries:      faults.DefaultMaxRetries,
		RetryDelayMs:    int(faults.DefaultRetryDelay / time.Millisecond),
		StereoTimeoutMs: int(DefaultStereoTimeout / time.Millisecond),
		FallbackPolicy:  string(faults.PolicyDisableVR),
	}
}

// envSettingsPrefix namespaces the environment overrides.
const envSettingsPrefix = "VRCORE_"

// LoadSettings loads Settings in layers: built-in defaults, then an
// optional YAML file, then VRCORE_-prefixed environment variables
// (VRCORE_MAX_RETRIES -> max_retries). An empty path skips the file layer.
func LoadSettings(path string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultSettings(), "koanf"), nil); err != nil {
		return Settings{}, fmt.Errorf("load default settings: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load settings file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envSettingsPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envSettingsPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Settings{}, fmt.Errorf("load settings from environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

// Apply copies the settings onto cfg, returning the updated config.
func (s Settings) Apply(cfg Config) (Config, error) {
	switch strings.ToLower(s.LogLevel) {
	case "", "info":
		cfg.LogLevel = logging.LevelInfo
	case "debug":
		cfg.LogLevel = logging.LevelDebug
	case "warn":
		cfg.LogLevel = logging.LevelWarn
	case "error":
		cfg.LogLevel = logging.LevelError
	default:
		return cfg, fmt.Errorf("vrcore: unknown log level %q", s.LogLevel)
	}

	cfg.MaxLogEntries = s.MaxLogEntries
	cfg.MaxRetries = s.MaxRetries
	cfg.RetryDelay = time.Duration(s.RetryDelayMs) * time.Millisecond
	cfg.StereoTimeout = time.Duration(s.StereoTimeoutMs) * time.Millisecond
	cfg.ShowDetails = s.ShowDetails

	switch faults.FallbackPolicy(s.FallbackPolicy) {
	case "", faults.PolicyDisableVR, faults.PolicyReload, faults.PolicyClearState:
		cfg.FallbackPolicy = faults.FallbackPolicy(s.FallbackPolicy)
	default:
		return cfg, fmt.Errorf("vrcore: unknown fallback policy %q", s.FallbackPolicy)
	}

	if s.StorePath != "" {
		store, err := storage.OpenBadgerStore(s.StorePath)
		if err != nil {
			return cfg, err
		}
		cfg.Store = store
	}
	return cfg, nil
}
