package recurrence

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrDisabled is returned by Build for a config with recurrence turned off
var ErrDisabled = errors.New("recurrence disabled")

// weekdays maps Config weekday numbers (0 = Sunday) to rrule weekdays
var weekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

var frequencies = map[Frequency]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
	FrequencyYearly:  rrule.YEARLY,
}

type options struct {
	logger  *slog.Logger
	preview PreviewOptions
}

func defaultOptions() options {
	return options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		preview: DefaultPreviewOptions,
	}
}

// Option configures a Compiler, Previewer or Engine
type Option func(*options)

// WithLogger sets the logger warnings are reported to
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPreviewOptions overrides DefaultPreviewOptions
func WithPreviewOptions(p PreviewOptions) Option {
	return func(o *options) {
		if p.WindowDays > 0 {
			o.preview.WindowDays = p.WindowDays
		}
		if p.Limit > 0 {
			o.preview.Limit = p.Limit
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Compiler is the rrule-go backed RuleCompiler
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler creates a Compiler
func NewCompiler(opts ...Option) *Compiler {
	o := applyOptions(opts)
	return &Compiler{logger: o.logger}
}

// Compile returns the Rule for cfg, or nil when recurrence is disabled or the
// config cannot be turned into a rule. Failures are logged, never returned.
func (c *Compiler) Compile(cfg Config) Rule {
	if !cfg.Enabled {
		return nil
	}
	rule, err := Build(cfg)
	if err != nil {
		c.logger.Warn("failed to compile recurrence rule",
			"frequency", cfg.Frequency,
			"interval", cfg.Interval,
			"error", err)
		return nil
	}
	return rule
}

// Build is the error-returning form of Compile
func Build(cfg Config) (Rule, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	freq, ok := frequencies[cfg.Frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency %q", cfg.Frequency)
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: max(cfg.Interval, 1),
	}

	if cfg.Frequency == FrequencyMonthly {
		switch cfg.MonthlyType {
		case MonthlyByWeekday:
			wd, hasWd := cfg.MonthlyWeekday.Get()
			pos, hasPos := cfg.MonthlyWeekPosition.Get()
			if hasWd && hasPos {
				if wd < 0 || wd >= len(weekdays) {
					return nil, fmt.Errorf("monthlyWeekday out of range: %d", wd)
				}
				if !validWeekPosition(pos) {
					return nil, fmt.Errorf("monthlyWeekPosition must be 1..4 or -1, got %d", pos)
				}
				opt.Byweekday = []rrule.Weekday{weekdays[wd].Nth(pos)}
			}
		default:
			opt.Bymonthday = []int{cfg.MonthlyDay.OrElse(1)}
		}
	}

	switch cfg.EndType {
	case EndOnDate:
		end, err := ParseDate(cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("endDate: %w", err)
		}
		opt.Until = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	case EndAfterCount:
		opt.Count = max(cfg.EndCount, 1)
	}

	// Validate the template once so Occurrences only fails on pathological anchors.
	probe := opt
	probe.Dtstart = time.Date(2000, 1, 1, cfg.Hour, cfg.Minute, 0, 0, loc)
	if _, err := rrule.NewRRule(probe); err != nil {
		return nil, fmt.Errorf("building rrule: %w", err)
	}

	return &rruleRule{
		opt:    opt,
		loc:    loc,
		hour:   cfg.Hour,
		minute: cfg.Minute,
	}, nil
}

// rruleRule keeps an rrule template without DTSTART; the anchor is chosen per
// enumeration so a compiled rule carries no notion of "now".
type rruleRule struct {
	opt    rrule.ROption
	loc    *time.Location
	hour   int
	minute int
}

// enumeration anchors the template at from, in the rule's zone. Weekday, month
// day and interval phase come from the calendar day of from; the time of day is
// pinned to hour:minute. rrule drops candidates before DTSTART before counting,
// so an anchor past hour:minute neither shifts the weekday nor spends COUNT.
func (r *rruleRule) enumeration(from time.Time) rrule.ROption {
	opt := r.opt
	opt.Byweekday = slices.Clone(r.opt.Byweekday)
	opt.Bymonthday = slices.Clone(r.opt.Bymonthday)
	opt.Dtstart = from.In(r.loc).Truncate(time.Second)
	opt.Byhour = []int{r.hour}
	opt.Byminute = []int{r.minute}
	opt.Bysecond = []int{0}
	return opt
}

func (r *rruleRule) Occurrences(from, to time.Time) ([]time.Time, error) {
	if to.Before(from) {
		return nil, nil
	}
	rr, err := rrule.NewRRule(r.enumeration(from))
	if err != nil {
		return nil, fmt.Errorf("building rrule: %w", err)
	}
	return rr.Between(from, to, true), nil
}

func (r *rruleRule) Location() *time.Location {
	return r.loc
}

func (r *rruleRule) String() string {
	return r.opt.String()
}
