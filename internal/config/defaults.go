package config

import (
	"time"

	"github.com/cyp0633/librecur/recurrence"
)

// Default configuration values.
const (
	// Server defaults.
	DefaultAddr            = ":8080"
	DefaultPrefix          = "/api/"
	DefaultRealm           = "librecur"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// Sweep defaults.
	DefaultSweepSpec = "@every 1m"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Client defaults.
	DefaultClientURL     = "http://localhost:8080/api/"
	DefaultClientTimeout = 30 * time.Second
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	engine := recurrence.DefaultEngineConfig
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			Prefix:          DefaultPrefix,
			Realm:           DefaultRealm,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Auth: AuthConfig{
			Users:    map[string]string{},
			UserList: []string{},
		},
		Sweep: SweepConfig{
			Enabled: true,
			Spec:    DefaultSweepSpec,
		},
		Engine: EngineConfig{
			CacheEnabled:         engine.CacheEnabled,
			CacheTTL:             engine.CacheConfig.TTL,
			CacheMaxEntries:      engine.CacheConfig.MaxEntries,
			CacheCleanupInterval: engine.CacheConfig.CleanupInterval,
			PreviewWindowDays:    engine.Preview.WindowDays,
			PreviewLimit:         engine.Preview.Limit,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Client: ClientConfig{
			URL:     DefaultClientURL,
			Timeout: DefaultClientTimeout,
		},
	}
}
