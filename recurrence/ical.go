package recurrence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// ProductID identifies calendars produced by this package
const ProductID = "-//librecur//NONSGML Recurrence v1.0//EN"

// Properties carrying the fields iCalendar has no standard slot for
const (
	PropEnabled        = "X-LIBRECUR-ENABLED"
	PropGenerationMode = "X-LIBRECUR-GENERATION-MODE"
	PropLookahead      = "X-LIBRECUR-LOOKAHEAD"
	PropCatchUp        = "X-LIBRECUR-CATCH-UP"
	PropAdjustPolicy   = "X-LIBRECUR-ADJUST-POLICY"
	PropDaysBeforeDue  = "X-LIBRECUR-DAYS-BEFORE-DUE"
)

// ErrNoTodo is returned when a calendar carries no VTODO to import
var ErrNoTodo = errors.New("no VTODO found in calendar")

// ExportOptions controls the VTODO produced by ToComponent
type ExportOptions struct {
	UID     string    // Generated when empty
	Summary string    // Optional
	Start   time.Time // DTSTART is the first occurrence at or after Start; zero means now
	Stamp   time.Time // DTSTAMP; zero means now
}

// ToComponent renders cfg as a VTODO carrying RRULE and EXDATE
func ToComponent(cfg Config, opts ExportOptions) (*ical.Component, error) {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if opts.UID == "" {
		opts.UID = uuid.NewString()
	}
	now := time.Now()
	if opts.Start.IsZero() {
		opts.Start = now
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = now
	}

	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, opts.UID)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, opts.Stamp.UTC())
	if opts.Summary != "" {
		todo.Props.SetText(ical.PropSummary, opts.Summary)
	}

	dtstart := nextTimeOfDay(opts.Start, loc, cfg.Hour, cfg.Minute)

	if cfg.Enabled {
		rule, err := Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("compiling rule for export: %w", err)
		}
		if first, err := rule.Occurrences(opts.Start, opts.Start.Add(DefaultEngineConfig.LookaheadHorizon)); err == nil && len(first) > 0 {
			dtstart = first[0]
		}
		rrProp := ical.NewProp(ical.PropRecurrenceRule)
		rrProp.Value = rule.String()
		todo.Props.Set(rrProp)
	} else {
		setXProp(todo, PropEnabled, "FALSE")
	}
	todo.Props.SetDateTime(ical.PropDateTimeStart, dtstart.In(loc))

	if len(cfg.Exdates) > 0 {
		values := make([]string, 0, len(cfg.Exdates))
		for _, d := range NormalizeExdates(cfg.Exdates) {
			t, _ := ParseDate(d)
			values = append(values, t.Format("20060102"))
		}
		exProp := ical.NewProp(ical.PropExceptionDates)
		exProp.SetValueType(ical.ValueDate)
		exProp.Value = strings.Join(values, ",")
		todo.Props.Set(exProp)
	}

	setXProp(todo, PropGenerationMode, string(cfg.GenerationMode))
	setXProp(todo, PropLookahead, strconv.Itoa(cfg.LookaheadCount))
	setXProp(todo, PropCatchUp, strconv.Itoa(cfg.CatchUpLimit))
	setXProp(todo, PropAdjustPolicy, string(cfg.AdjustPolicy))
	setXProp(todo, PropDaysBeforeDue, strconv.Itoa(cfg.DaysBeforeDue))

	return todo, nil
}

// nextTimeOfDay is the first hour:minute instant in loc at or after t
func nextTimeOfDay(t time.Time, loc *time.Location, hour, minute int) time.Time {
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if next.Before(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func setXProp(comp *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	comp.Props.Set(prop)
}

// NewCalendar wraps the VTODO for cfg into a VCALENDAR
func NewCalendar(cfg Config, opts ExportOptions) (*ical.Calendar, error) {
	todo, err := ToComponent(cfg, opts)
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Children = append(cal.Children, todo)
	return cal, nil
}

// EncodeCalendar renders cfg as an iCalendar stream
func EncodeCalendar(cfg Config, opts ExportOptions) ([]byte, error) {
	cal, err := NewCalendar(cfg, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCalendar reads an iCalendar stream and imports its first VTODO
func DecodeCalendar(r io.Reader) (Config, *ical.Component, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return Config{}, nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			cfg, err := FromComponent(child)
			return cfg, child, err
		}
	}
	return Config{}, nil, ErrNoTodo
}

// FromComponent rebuilds a Config from a VTODO (or VEVENT) produced by ToComponent
// or by another iCalendar producer using the same subset of RRULE.
func FromComponent(comp *ical.Component) (Config, error) {
	cfg := Default()

	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
			cfg.Timezone = tzid
		} else if strings.HasSuffix(prop.Value, "Z") {
			cfg.Timezone = "UTC"
		}
		loc, err := LoadLocation(cfg.Timezone)
		if err != nil {
			return Config{}, err
		}
		start, err := prop.DateTime(loc)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DTSTART: %w", err)
		}
		start = start.In(loc)
		cfg.Hour, cfg.Minute = start.Hour(), start.Minute()
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		if err := applyRRule(&cfg, prop.Value); err != nil {
			return Config{}, err
		}
	}

	if prop := comp.Props.Get(PropEnabled); prop != nil && strings.EqualFold(prop.Value, "FALSE") {
		cfg.Enabled = false
	}

	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, err
	}
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		dateOnly := strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate))
		for _, t := range parseExceptionDates(prop.Value, prop.Params) {
			// Date-times are excluded by their calendar date in the rule's zone
			if !dateOnly {
				t = t.In(loc)
			}
			cfg = AddException(cfg, t.Format(DateLayout))
		}
	}

	if prop := comp.Props.Get(PropGenerationMode); prop != nil {
		cfg.GenerationMode = GenerationMode(prop.Value)
	}
	if prop := comp.Props.Get(PropAdjustPolicy); prop != nil {
		cfg.AdjustPolicy = AdjustPolicy(prop.Value)
	}
	intProps := []struct {
		name string
		dst  *int
	}{
		{PropLookahead, &cfg.LookaheadCount},
		{PropCatchUp, &cfg.CatchUpLimit},
		{PropDaysBeforeDue, &cfg.DaysBeforeDue},
	}
	for _, ip := range intProps {
		prop := comp.Props.Get(ip.name)
		if prop == nil {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(prop.Value))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", ip.name, err)
		}
		*ip.dst = v
	}

	return cfg, nil
}

func applyRRule(cfg *Config, value string) error {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return fmt.Errorf("failed to parse RRULE '%s': %w", value, err)
	}

	cfg.Enabled = true
	switch opt.Freq {
	case rrule.DAILY:
		cfg.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		cfg.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		cfg.Frequency = FrequencyMonthly
	case rrule.YEARLY:
		cfg.Frequency = FrequencyYearly
	default:
		return fmt.Errorf("unsupported RRULE frequency in '%s'", value)
	}
	cfg.Interval = max(opt.Interval, 1)

	if cfg.Frequency == FrequencyMonthly {
		switch {
		case len(opt.Byweekday) == 1 && opt.Byweekday[0].N() != 0:
			cfg.MonthlyType = MonthlyByWeekday
			cfg.MonthlyWeekday = mo.Some((opt.Byweekday[0].Day() + 1) % 7)
			cfg.MonthlyWeekPosition = mo.Some(opt.Byweekday[0].N())
		case len(opt.Bymonthday) > 0:
			cfg.MonthlyType = MonthlyByDay
			cfg.MonthlyDay = mo.Some(opt.Bymonthday[0])
		}
	}

	switch {
	case opt.Count > 0:
		cfg.EndType = EndAfterCount
		cfg.EndCount = opt.Count
	case !opt.Until.IsZero():
		loc, err := LoadLocation(cfg.Timezone)
		if err != nil {
			return err
		}
		cfg.EndType = EndOnDate
		cfg.EndDate = opt.Until.In(loc).Format(DateLayout)
	default:
		cfg.EndType = EndNever
	}
	return nil
}

// parseExceptionDates parses EXDATE property value into time.Time slice
func parseExceptionDates(value string, params ical.Params) []time.Time {
	if value == "" {
		return nil
	}

	var exdates []time.Time
	exdateStrings := strings.Split(value, ",")

	// Check if this is a date-only EXDATE (VALUE=DATE parameter)
	isDateOnly := strings.EqualFold(params.Get(ical.ParamValue), string(ical.ValueDate))

	loc := time.UTC
	if tzid := params.Get(ical.ParamTimezoneID); tzid != "" {
		if l, err := LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	for _, exdateStr := range exdateStrings {
		exdateStr = strings.TrimSpace(exdateStr)
		if exdateStr == "" {
			continue
		}

		var exdate time.Time
		var err error

		if isDateOnly {
			exdate, err = time.Parse("20060102", exdateStr)
		} else {
			// Parse the iCalendar date-time format
			exdate, err = time.Parse("20060102T150405Z", exdateStr)
			if err != nil {
				exdate, err = time.ParseInLocation("20060102T150405", exdateStr, loc)
			}
			if err != nil {
				// Try parsing as date-only format as fallback
				exdate, err = time.Parse("20060102", exdateStr)
			}
		}

		if err == nil {
			exdates = append(exdates, exdate)
		}
	}

	return exdates
}
