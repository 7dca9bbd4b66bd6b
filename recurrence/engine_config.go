package recurrence

import (
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// Preview bounds used when the caller does not pass its own
	Preview PreviewOptions

	// Planning limits
	MaxCatchUpSpan   time.Duration // How far back overdue occurrences are searched
	LookaheadHorizon time.Duration // How far forward lookahead occurrences are searched
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	Preview: DefaultPreviewOptions,

	MaxCatchUpSpan:   366 * 24 * time.Hour,     // 1 year
	LookaheadHorizon: 5 * 366 * 24 * time.Hour, // 5 years
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
	CacheConfig:  CacheConfig{}, // Not used

	Preview: DefaultPreviewOptions,

	MaxCatchUpSpan:   366 * 24 * time.Hour,
	LookaheadHorizon: 5 * 366 * 24 * time.Hour,
}
