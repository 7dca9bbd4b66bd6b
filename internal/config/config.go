// Package config provides configuration management for librecur.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/librecur/recurrence"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Client  ClientConfig  `mapstructure:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address to listen on, e.g. ":8080"
	Addr string `mapstructure:"addr"`

	// URL prefix the schedule API is mounted under
	Prefix string `mapstructure:"prefix"`

	// Basic Auth realm
	Realm string `mapstructure:"realm"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the users allowed to log in.
type AuthConfig struct {
	// Users maps user name to password. Viper lowercases map keys, so names
	// given here are case-insensitive.
	Users map[string]string `mapstructure:"users"`

	// UserList holds "name:password" entries; convenient from the
	// environment, e.g. LIBRECUR_AUTH_USER_LIST="alice:pw,bob:pw"
	UserList []string `mapstructure:"user_list"`
}

// Credentials merges Users and UserList
func (a AuthConfig) Credentials() (map[string]string, error) {
	out := make(map[string]string, len(a.Users)+len(a.UserList))
	for name, password := range a.Users {
		out[name] = password
	}
	for _, entry := range a.UserList {
		name, password, ok := strings.Cut(entry, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("user entry %q is not name:password", entry)
		}
		out[name] = password
	}
	return out, nil
}

// SweepConfig controls the background sweep that hands ready instances off.
type SweepConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Cron expression or descriptor such as "@every 1m"
	Spec string `mapstructure:"spec"`
}

// EngineConfig holds recurrence engine settings.
type EngineConfig struct {
	CacheEnabled         bool          `mapstructure:"cache_enabled"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries      int           `mapstructure:"cache_max_entries"`
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval"`

	// Preview bounds used when a request does not narrow them
	PreviewWindowDays int `mapstructure:"preview_window_days"`
	PreviewLimit      int `mapstructure:"preview_limit"`
}

// Recurrence converts the settings into a recurrence.EngineConfig
func (e EngineConfig) Recurrence() recurrence.EngineConfig {
	out := recurrence.DefaultEngineConfig
	out.CacheEnabled = e.CacheEnabled
	out.CacheConfig = recurrence.CacheConfig{
		TTL:             e.CacheTTL,
		MaxEntries:      e.CacheMaxEntries,
		CleanupInterval: e.CacheCleanupInterval,
	}
	out.Preview = recurrence.PreviewOptions{
		WindowDays: e.PreviewWindowDays,
		Limit:      e.PreviewLimit,
	}
	return out
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Output format: text or json
	Format string `mapstructure:"format"`
}

// ClientConfig holds the remote server the client commands talk to.
type ClientConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}
