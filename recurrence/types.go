package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// Frequency is the unit a recurrence repeats in
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// MonthlyType selects how a monthly recurrence picks its day
type MonthlyType string

const (
	// MonthlyByDay repeats on a fixed day of the month (monthlyDay)
	MonthlyByDay MonthlyType = "day"
	// MonthlyByWeekday repeats on the Nth weekday of the month
	MonthlyByWeekday MonthlyType = "weekday"
)

// EndType selects the terminal condition of a recurrence
type EndType string

const (
	EndNever      EndType = "never"
	EndOnDate     EndType = "date"
	EndAfterCount EndType = "count"
)

// GenerationMode tells the job-creation side when the next instance is created
type GenerationMode string

const (
	// GenerateOnSchedule creates instances at their scheduled time regardless of completion
	GenerateOnSchedule GenerationMode = "on_schedule"
	// GenerateOnPrevComplete creates the next instance only once the previous one is done
	GenerateOnPrevComplete GenerationMode = "on_prev_complete"
)

// AdjustPolicy shifts a due date that lands on a non-business day
type AdjustPolicy string

const (
	AdjustNone                AdjustPolicy = "none"
	AdjustPreviousBusinessDay AdjustPolicy = "previous_business_day"
	AdjustNextBusinessDay     AdjustPolicy = "next_business_day"
)

// LastWeek is the monthlyWeekPosition meaning "last occurrence in the month"
const LastWeek = -1

// DateLayout is the ISO calendar date format used for exdates and endDate
const DateLayout = "2006-01-02"

// DefaultTimezone is the zone a fresh Config is created with
const DefaultTimezone = "America/Sao_Paulo"

// Config describes how a task repeats. It is a value: every edit produces a
// new Config through Update, AddException or RemoveException.
type Config struct {
	Enabled   bool      `json:"enabled"`
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`

	MonthlyType         MonthlyType    `json:"monthlyType"`
	MonthlyDay          mo.Option[int] `json:"monthlyDay"`
	MonthlyWeekday      mo.Option[int] `json:"monthlyWeekday"`      // 0 = Sunday
	MonthlyWeekPosition mo.Option[int] `json:"monthlyWeekPosition"` // 1..4 or LastWeek

	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Timezone string `json:"timezone"`

	// Exdates holds ISO dates, sorted ascending, without duplicates
	Exdates []string `json:"exdates"`

	EndType  EndType `json:"endType"`
	EndDate  string  `json:"endDate,omitempty"`
	EndCount int     `json:"endCount,omitempty"`

	GenerationMode GenerationMode `json:"generationMode"`
	LookaheadCount int            `json:"lookaheadCount"`
	CatchUpLimit   int            `json:"catchUpLimit"`
	AdjustPolicy   AdjustPolicy   `json:"adjustPolicy"`
	DaysBeforeDue  int            `json:"daysBeforeDue"`
}

// Patch is a partial Config. Absent options leave the target field untouched.
type Patch struct {
	Enabled   mo.Option[bool]      `json:"enabled"`
	Frequency mo.Option[Frequency] `json:"frequency"`
	Interval  mo.Option[int]       `json:"interval"`

	MonthlyType         mo.Option[MonthlyType] `json:"monthlyType"`
	MonthlyDay          mo.Option[int]         `json:"monthlyDay"`
	MonthlyWeekday      mo.Option[int]         `json:"monthlyWeekday"`
	MonthlyWeekPosition mo.Option[int]         `json:"monthlyWeekPosition"`

	Hour     mo.Option[int]    `json:"hour"`
	Minute   mo.Option[int]    `json:"minute"`
	Timezone mo.Option[string] `json:"timezone"`

	Exdates mo.Option[[]string] `json:"exdates"`

	EndType  mo.Option[EndType] `json:"endType"`
	EndDate  mo.Option[string]  `json:"endDate"`
	EndCount mo.Option[int]     `json:"endCount"`

	GenerationMode mo.Option[GenerationMode] `json:"generationMode"`
	LookaheadCount mo.Option[int]            `json:"lookaheadCount"`
	CatchUpLimit   mo.Option[int]            `json:"catchUpLimit"`
	AdjustPolicy   mo.Option[AdjustPolicy]   `json:"adjustPolicy"`
	DaysBeforeDue  mo.Option[int]            `json:"daysBeforeDue"`
}

// Rule is a compiled recurrence able to enumerate concrete instants
type Rule interface {
	// Occurrences returns every instant of the rule within [from, to], earliest first.
	Occurrences(from, to time.Time) ([]time.Time, error)
	// Location is the zone occurrences are generated in
	Location() *time.Location
	// String returns the RRULE value (without the "RRULE:" prefix)
	String() string
}

// RuleCompiler turns a Config into a Rule. A nil Rule means no rule is available.
type RuleCompiler interface {
	Compile(cfg Config) Rule
}

// OccurrencePreviewer samples upcoming occurrences of a Rule for display
type OccurrencePreviewer interface {
	Preview(rule Rule, exdates []string, ref time.Time) []time.Time
}

// PreviewOptions bounds the work done by a preview
type PreviewOptions struct {
	WindowDays int // Forward window from the reference instant
	Limit      int // Maximum number of occurrences returned
}

// DefaultPreviewOptions provides the window and size shown to users
var DefaultPreviewOptions = PreviewOptions{
	WindowDays: 180,
	Limit:      6,
}
