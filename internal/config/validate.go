package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSweep(&cfg.Sweep)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateClient(&cfg.Client)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "is required"})
	}
	if !strings.HasPrefix(cfg.Prefix, "/") {
		errs = append(errs, ValidationError{Field: "server.prefix", Message: "must start with /"})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 || cfg.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server", Message: "timeouts must not be negative"})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := cfg.Credentials(); err != nil {
		errs = append(errs, ValidationError{Field: "auth.user_list", Message: err.Error()})
	}
	for name := range cfg.Users {
		if name == "" || strings.Contains(name, "/") {
			errs = append(errs, ValidationError{
				Field:   "auth.users",
				Message: fmt.Sprintf("invalid user name %q", name),
			})
		}
	}

	return errs
}

func validateSweep(cfg *SweepConfig) ValidationErrors {
	if !cfg.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return ValidationErrors{{Field: "sweep.spec", Message: err.Error()}}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.PreviewWindowDays < 1 {
		errs = append(errs, ValidationError{Field: "engine.preview_window_days", Message: "must be at least 1"})
	}
	if cfg.PreviewLimit < 1 {
		errs = append(errs, ValidationError{Field: "engine.preview_limit", Message: "must be at least 1"})
	}
	if cfg.CacheEnabled {
		if cfg.CacheTTL <= 0 {
			errs = append(errs, ValidationError{Field: "engine.cache_ttl", Message: "must be positive"})
		}
		if cfg.CacheMaxEntries < 1 {
			errs = append(errs, ValidationError{Field: "engine.cache_max_entries", Message: "must be at least 1"})
		}
		if cfg.CacheCleanupInterval <= 0 {
			errs = append(errs, ValidationError{Field: "engine.cache_cleanup_interval", Message: "must be positive"})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}
	if !slices.Contains(validLogFormats, strings.ToLower(cfg.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	return errs
}

func validateClient(cfg *ClientConfig) ValidationErrors {
	if cfg.URL == "" {
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationErrors{{Field: "client.url", Message: "must be an absolute URL"}}
	}
	return nil
}
