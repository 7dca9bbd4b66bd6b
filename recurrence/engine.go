package recurrence

import (
	"log/slog"
	"time"
)

// Engine runs the Config -> Rule -> occurrences pipeline. The compiler and
// previewer are interfaces so another recurrence backend can be plugged in
// without touching Config.
type Engine struct {
	compiler  RuleCompiler
	previewer OccurrencePreviewer
	cache     *PreviewCache
	config    EngineConfig
	logger    *slog.Logger
}

// NewEngine creates a new recurrence engine with DefaultEngineConfig
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	if config.Preview.WindowDays > 0 || config.Preview.Limit > 0 {
		opts = append([]Option{WithPreviewOptions(config.Preview)}, opts...)
	}
	o := applyOptions(opts)
	config.Preview = o.preview

	var cache *PreviewCache
	if config.CacheEnabled {
		cache = NewPreviewCache(config.CacheConfig)
	}

	return &Engine{
		compiler:  &Compiler{logger: o.logger},
		previewer: &Previewer{logger: o.logger, opts: o.preview},
		cache:     cache,
		config:    config,
		logger:    o.logger,
	}
}

// WithBackend replaces the compiler and previewer, keeping the rest of the engine
func (e *Engine) WithBackend(compiler RuleCompiler, previewer OccurrencePreviewer) *Engine {
	next := *e
	if compiler != nil {
		next.compiler = compiler
	}
	if previewer != nil {
		next.previewer = previewer
	}
	// A different backend must not see results cached for the old one.
	next.cache = nil
	return &next
}

// Config returns the engine configuration
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Compile compiles cfg with the engine's RuleCompiler
func (e *Engine) Compile(cfg Config) Rule {
	return e.compiler.Compile(cfg)
}

// Preview recompiles cfg and returns its upcoming occurrences after ref
func (e *Engine) Preview(cfg Config, ref time.Time) []time.Time {
	return e.PreviewWith(cfg, ref, e.config.Preview)
}

// PreviewWith is Preview with an explicit window and limit
func (e *Engine) PreviewWith(cfg Config, ref time.Time, opts PreviewOptions) []time.Time {
	if opts.WindowDays <= 0 {
		opts.WindowDays = e.config.Preview.WindowDays
	}
	if opts.Limit <= 0 {
		opts.Limit = e.config.Preview.Limit
	}

	if e.cache != nil {
		if hit, ok := e.cache.Get(cfg, ref, opts); ok {
			return hit
		}
	}

	rule := e.compiler.Compile(cfg)
	var out []time.Time
	if p, ok := e.previewer.(interface {
		PreviewWith(Rule, []string, time.Time, PreviewOptions) []time.Time
	}); ok {
		out = p.PreviewWith(rule, cfg.Exdates, ref, opts)
	} else {
		out = e.previewer.Preview(rule, cfg.Exdates, ref)
		if len(out) > opts.Limit {
			out = out[:opts.Limit]
		}
	}

	if e.cache != nil {
		e.cache.Set(cfg, ref, opts, out)
	}
	return out
}

// CacheStats reports preview cache usage; zero when caching is disabled
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the preview cache
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
