package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. LIBRECUR_SERVER_ADDR
const DefaultEnvPrefix = "LIBRECUR"

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config

	// Overrides win over every other source; keys use the dotted form,
	// e.g. "server.addr"
	Overrides map[string]any
}

// Load reads configuration from defaults, an optional config file, the
// environment and Overrides, in increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("librecur")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/librecur")
		v.AddConfigPath("/etc/librecur")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.prefix", cfg.Server.Prefix)
	v.SetDefault("server.realm", cfg.Server.Realm)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("auth.users", cfg.Auth.Users)
	v.SetDefault("auth.user_list", cfg.Auth.UserList)

	v.SetDefault("sweep.enabled", cfg.Sweep.Enabled)
	v.SetDefault("sweep.spec", cfg.Sweep.Spec)

	v.SetDefault("engine.cache_enabled", cfg.Engine.CacheEnabled)
	v.SetDefault("engine.cache_ttl", cfg.Engine.CacheTTL)
	v.SetDefault("engine.cache_max_entries", cfg.Engine.CacheMaxEntries)
	v.SetDefault("engine.cache_cleanup_interval", cfg.Engine.CacheCleanupInterval)
	v.SetDefault("engine.preview_window_days", cfg.Engine.PreviewWindowDays)
	v.SetDefault("engine.preview_limit", cfg.Engine.PreviewLimit)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("client.url", cfg.Client.URL)
	v.SetDefault("client.username", cfg.Client.Username)
	v.SetDefault("client.password", cfg.Client.Password)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
}

// expandEnvInConfig replaces "${VAR}" values with the variable's content
func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}
