package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate
var ErrInvalidConfig = errors.New("invalid recurrence config")

// Default returns a disabled weekly recurrence at 09:00 in DefaultTimezone
func Default() Config {
	return Config{
		Enabled:        false,
		Frequency:      FrequencyWeekly,
		Interval:       1,
		MonthlyType:    MonthlyByDay,
		Hour:           9,
		Minute:         0,
		Timezone:       DefaultTimezone,
		Exdates:        []string{},
		EndType:        EndNever,
		GenerationMode: GenerateOnSchedule,
		LookaheadCount: 1,
		CatchUpLimit:   1,
		AdjustPolicy:   AdjustNone,
		DaysBeforeDue:  0,
	}
}

// New merges a caller-supplied partial value over Default
func New(p Patch) Config {
	return Update(Default(), p)
}

// Update merges p over c and returns a new Config. It never validates; callers
// are expected to run edit-boundary input through Sanitize first.
func Update(c Config, p Patch) Config {
	next := c
	next.Exdates = slices.Clone(c.Exdates)

	setIfPresent(&next.Enabled, p.Enabled)
	setIfPresent(&next.Frequency, p.Frequency)
	setIfPresent(&next.Interval, p.Interval)
	setIfPresent(&next.MonthlyType, p.MonthlyType)
	if p.MonthlyDay.IsPresent() {
		next.MonthlyDay = p.MonthlyDay
	}
	if p.MonthlyWeekday.IsPresent() {
		next.MonthlyWeekday = p.MonthlyWeekday
	}
	if p.MonthlyWeekPosition.IsPresent() {
		next.MonthlyWeekPosition = p.MonthlyWeekPosition
	}
	setIfPresent(&next.Hour, p.Hour)
	setIfPresent(&next.Minute, p.Minute)
	setIfPresent(&next.Timezone, p.Timezone)
	if exdates, ok := p.Exdates.Get(); ok {
		next.Exdates = slices.Clone(exdates)
	}
	setIfPresent(&next.EndType, p.EndType)
	setIfPresent(&next.EndDate, p.EndDate)
	setIfPresent(&next.EndCount, p.EndCount)
	setIfPresent(&next.GenerationMode, p.GenerationMode)
	setIfPresent(&next.LookaheadCount, p.LookaheadCount)
	setIfPresent(&next.CatchUpLimit, p.CatchUpLimit)
	setIfPresent(&next.AdjustPolicy, p.AdjustPolicy)
	setIfPresent(&next.DaysBeforeDue, p.DaysBeforeDue)

	if next.Exdates == nil {
		next.Exdates = []string{}
	}
	return next
}

func setIfPresent[T any](dst *T, opt mo.Option[T]) {
	if v, ok := opt.Get(); ok {
		*dst = v
	}
}

// AddException inserts date into the exception list, keeping it sorted.
// An empty or already present date returns c unchanged.
func AddException(c Config, date string) Config {
	if date == "" {
		return c
	}
	if slices.Contains(c.Exdates, date) {
		return c
	}
	next := c
	next.Exdates = append(slices.Clone(c.Exdates), date)
	slices.Sort(next.Exdates)
	return next
}

// RemoveException drops date from the exception list if present
func RemoveException(c Config, date string) Config {
	idx := slices.Index(c.Exdates, date)
	if idx < 0 {
		return c
	}
	next := c
	next.Exdates = slices.Delete(slices.Clone(c.Exdates), idx, idx+1)
	return next
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD)
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeExdates keeps the syntactically valid dates of in, deduplicated and sorted
func NormalizeExdates(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		t, err := ParseDate(s)
		if err != nil {
			continue
		}
		out = append(out, t.Format(DateLayout))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Sanitize clamps a patch coming from user input into the declared ranges.
// Unknown enum values and impossible week positions are dropped from the patch.
func Sanitize(p Patch) Patch {
	p.Interval = clampOpt(p.Interval, 1, -1)
	p.MonthlyDay = clampOpt(p.MonthlyDay, 1, 31)
	p.MonthlyWeekday = clampOpt(p.MonthlyWeekday, 0, 6)
	if pos, ok := p.MonthlyWeekPosition.Get(); ok && !validWeekPosition(pos) {
		p.MonthlyWeekPosition = mo.None[int]()
	}
	p.Hour = clampOpt(p.Hour, 0, 23)
	p.Minute = clampOpt(p.Minute, 0, 59)
	p.EndCount = clampOpt(p.EndCount, 1, -1)
	p.LookaheadCount = clampOpt(p.LookaheadCount, 1, -1)
	p.CatchUpLimit = clampOpt(p.CatchUpLimit, 0, -1)
	p.DaysBeforeDue = clampOpt(p.DaysBeforeDue, 0, 7)

	if tz, ok := p.Timezone.Get(); ok {
		p.Timezone = mo.Some(strings.TrimSpace(tz))
	}
	if d, ok := p.EndDate.Get(); ok && d != "" {
		if t, err := ParseDate(d); err == nil {
			p.EndDate = mo.Some(t.Format(DateLayout))
		} else {
			p.EndDate = mo.None[string]()
		}
	}
	if ex, ok := p.Exdates.Get(); ok {
		p.Exdates = mo.Some(NormalizeExdates(ex))
	}

	p.Frequency = filterEnum(p.Frequency, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly)
	p.MonthlyType = filterEnum(p.MonthlyType, MonthlyByDay, MonthlyByWeekday)
	p.EndType = filterEnum(p.EndType, EndNever, EndOnDate, EndAfterCount)
	p.GenerationMode = filterEnum(p.GenerationMode, GenerateOnSchedule, GenerateOnPrevComplete)
	p.AdjustPolicy = filterEnum(p.AdjustPolicy, AdjustNone, AdjustPreviousBusinessDay, AdjustNextBusinessDay)
	return p
}

// clampOpt clamps a present value into [lo, hi]; hi < lo means no upper bound.
func clampOpt(opt mo.Option[int], lo, hi int) mo.Option[int] {
	v, ok := opt.Get()
	if !ok {
		return opt
	}
	v = max(v, lo)
	if hi >= lo {
		v = min(v, hi)
	}
	return mo.Some(v)
}

func filterEnum[T comparable](opt mo.Option[T], allowed ...T) mo.Option[T] {
	v, ok := opt.Get()
	if !ok || slices.Contains(allowed, v) {
		return opt
	}
	return mo.None[T]()
}

func validWeekPosition(pos int) bool {
	return pos == LastWeek || (pos >= 1 && pos <= 4)
}

// Validate reports every field that a RuleCompiler or the job-creation side
// could not honor. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	switch c.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		bad("unknown frequency %q", c.Frequency)
	}
	if c.Interval < 1 {
		bad("interval must be at least 1, got %d", c.Interval)
	}
	if c.Frequency == FrequencyMonthly {
		switch c.MonthlyType {
		case MonthlyByDay:
			if d, ok := c.MonthlyDay.Get(); ok && (d < 1 || d > 31) {
				bad("monthlyDay out of range: %d", d)
			}
		case MonthlyByWeekday:
			wd, hasWd := c.MonthlyWeekday.Get()
			pos, hasPos := c.MonthlyWeekPosition.Get()
			if !hasWd || !hasPos {
				bad("monthly weekday rule needs both monthlyWeekday and monthlyWeekPosition")
			}
			if hasWd && (wd < 0 || wd > 6) {
				bad("monthlyWeekday out of range: %d", wd)
			}
			if hasPos && !validWeekPosition(pos) {
				bad("monthlyWeekPosition must be 1..4 or -1, got %d", pos)
			}
		default:
			bad("unknown monthlyType %q", c.MonthlyType)
		}
	}
	if c.Hour < 0 || c.Hour > 23 {
		bad("hour out of range: %d", c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		bad("minute out of range: %d", c.Minute)
	}
	if _, err := LoadLocation(c.Timezone); err != nil {
		bad("%v", err)
	}
	for _, d := range c.Exdates {
		if _, err := ParseDate(d); err != nil {
			bad("exdate: %v", err)
		}
	}
	if !slices.IsSorted(c.Exdates) || len(slices.Compact(slices.Clone(c.Exdates))) != len(c.Exdates) {
		bad("exdates must be sorted and unique")
	}

	switch c.EndType {
	case EndNever:
	case EndOnDate:
		if _, err := ParseDate(c.EndDate); err != nil {
			bad("endDate: %v", err)
		}
	case EndAfterCount:
		if c.EndCount < 1 {
			bad("endCount must be at least 1, got %d", c.EndCount)
		}
	default:
		bad("unknown endType %q", c.EndType)
	}

	switch c.GenerationMode {
	case GenerateOnSchedule, GenerateOnPrevComplete:
	default:
		bad("unknown generationMode %q", c.GenerationMode)
	}
	switch c.AdjustPolicy {
	case AdjustNone, AdjustPreviousBusinessDay, AdjustNextBusinessDay:
	default:
		bad("unknown adjustPolicy %q", c.AdjustPolicy)
	}
	if c.LookaheadCount < 1 {
		bad("lookaheadCount must be at least 1, got %d", c.LookaheadCount)
	}
	if c.CatchUpLimit < 0 {
		bad("catchUpLimit must not be negative, got %d", c.CatchUpLimit)
	}
	if c.DaysBeforeDue < 0 || c.DaysBeforeDue > 7 {
		bad("daysBeforeDue must be 0..7, got %d", c.DaysBeforeDue)
	}

	return errors.Join(errs...)
}
