package recurrence

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.False(t, c.Enabled)
	assert.Equal(t, FrequencyWeekly, c.Frequency)
	assert.Equal(t, 1, c.Interval)
	assert.Equal(t, 9, c.Hour)
	assert.Equal(t, 0, c.Minute)
	assert.Equal(t, "America/Sao_Paulo", c.Timezone)
	assert.NotNil(t, c.Exdates)
	assert.Empty(t, c.Exdates)
	assert.Equal(t, EndNever, c.EndType)
	assert.Equal(t, GenerateOnSchedule, c.GenerationMode)
	assert.Equal(t, 1, c.LookaheadCount)
	assert.Equal(t, 1, c.CatchUpLimit)
	assert.Equal(t, AdjustNone, c.AdjustPolicy)
	assert.Equal(t, 0, c.DaysBeforeDue)
	assert.False(t, c.MonthlyDay.IsPresent())
	assert.NoError(t, c.Validate())
}

func TestNew_MergesOverDefaults(t *testing.T) {
	c := New(Patch{
		Enabled:   mo.Some(true),
		Frequency: mo.Some(FrequencyDaily),
		Hour:      mo.Some(7),
	})

	assert.True(t, c.Enabled)
	assert.Equal(t, FrequencyDaily, c.Frequency)
	assert.Equal(t, 7, c.Hour)
	assert.Equal(t, 1, c.Interval)
	assert.Equal(t, DefaultTimezone, c.Timezone)
}

func TestUpdate_DoesNotMutateInput(t *testing.T) {
	orig := Default()
	orig.Exdates = []string{"2025-01-01", "2025-02-01"}

	next := Update(orig, Patch{Interval: mo.Some(3)})
	next.Exdates[0] = "1999-12-31"

	assert.Equal(t, 1, orig.Interval)
	assert.Equal(t, 3, next.Interval)
	assert.Equal(t, []string{"2025-01-01", "2025-02-01"}, orig.Exdates)
}

func TestUpdate_ReplacesExdatesWithCopy(t *testing.T) {
	src := []string{"2025-03-01"}
	next := Update(Default(), Patch{Exdates: mo.Some(src)})
	src[0] = "2000-01-01"

	assert.Equal(t, []string{"2025-03-01"}, next.Exdates)
}

func TestUpdate_Idempotent(t *testing.T) {
	base := Default()
	base.Exdates = []string{"2025-05-05"}

	patches := []struct {
		name  string
		patch Patch
	}{
		{"empty", Patch{}},
		{"enable daily", Patch{Enabled: mo.Some(true), Frequency: mo.Some(FrequencyDaily)}},
		{"monthly weekday", Patch{
			Frequency:           mo.Some(FrequencyMonthly),
			MonthlyType:         mo.Some(MonthlyByWeekday),
			MonthlyWeekday:      mo.Some(1),
			MonthlyWeekPosition: mo.Some(LastWeek),
		}},
		{"end on date", Patch{EndType: mo.Some(EndOnDate), EndDate: mo.Some("2025-12-31")}},
		{"clear exdates", Patch{Exdates: mo.Some([]string{})}},
		{"nil exdates", Patch{Exdates: mo.Some[[]string](nil)}},
		{"policy", Patch{
			GenerationMode: mo.Some(GenerateOnPrevComplete),
			AdjustPolicy:   mo.Some(AdjustNextBusinessDay),
			DaysBeforeDue:  mo.Some(3),
		}},
	}

	for _, tt := range patches {
		t.Run(tt.name, func(t *testing.T) {
			once := Update(base, tt.patch)
			twice := Update(once, Patch{})
			assert.Equal(t, once, twice)
			assert.NotNil(t, once.Exdates)
		})
	}
}

func TestAddException(t *testing.T) {
	tests := []struct {
		name     string
		exdates  []string
		date     string
		expected []string
	}{
		{"into empty", []string{}, "2025-01-10", []string{"2025-01-10"}},
		{"keeps order", []string{"2025-01-01", "2025-03-01"}, "2025-02-01", []string{"2025-01-01", "2025-02-01", "2025-03-01"}},
		{"at front", []string{"2025-02-01"}, "2024-12-31", []string{"2024-12-31", "2025-02-01"}},
		{"duplicate", []string{"2025-01-01"}, "2025-01-01", []string{"2025-01-01"}},
		{"empty string", []string{"2025-01-01"}, "", []string{"2025-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Exdates = tt.exdates
			before := append([]string(nil), tt.exdates...)

			got := AddException(c, tt.date)

			assert.Equal(t, tt.expected, got.Exdates)
			assert.Equal(t, before, c.Exdates, "input must not change")
		})
	}
}

func TestExceptionSetInvariants(t *testing.T) {
	bases := [][]string{
		{},
		{"2025-01-01"},
		{"2024-06-30", "2025-01-01", "2025-07-04"},
	}
	dates := []string{"2024-01-01", "2025-01-01", "2025-03-15", "2026-12-31"}

	for _, ex := range bases {
		for _, d := range dates {
			c := Default()
			c.Exdates = ex

			added := AddException(c, d)
			count := 0
			for _, e := range added.Exdates {
				if e == d {
					count++
				}
			}
			assert.Equal(t, 1, count, "%s in %v", d, ex)
			assert.IsNonDecreasing(t, added.Exdates)

			if !contains(ex, d) {
				removed := RemoveException(added, d)
				assert.Equal(t, ex, removed.Exdates)
			}
		}
	}
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func TestRemoveException_Absent(t *testing.T) {
	c := Default()
	c.Exdates = []string{"2025-01-01"}

	got := RemoveException(c, "2025-02-02")
	assert.Equal(t, []string{"2025-01-01"}, got.Exdates)

	got = RemoveException(c, "2025-01-01")
	assert.Empty(t, got.Exdates)
	assert.Equal(t, []string{"2025-01-01"}, c.Exdates)
}

func TestNormalizeExdates(t *testing.T) {
	got := NormalizeExdates([]string{"2025-03-01", "bogus", " 2025-01-01 ", "2025-03-01", "2025-02-30"})
	assert.Equal(t, []string{"2025-01-01", "2025-03-01"}, got)
}

func TestSanitize(t *testing.T) {
	p := Sanitize(Patch{
		Interval:            mo.Some(0),
		MonthlyDay:          mo.Some(40),
		MonthlyWeekday:      mo.Some(-2),
		MonthlyWeekPosition: mo.Some(5),
		Hour:                mo.Some(25),
		Minute:              mo.Some(-1),
		EndCount:            mo.Some(0),
		LookaheadCount:      mo.Some(0),
		CatchUpLimit:        mo.Some(-3),
		DaysBeforeDue:       mo.Some(10),
		Timezone:            mo.Some("  UTC "),
		EndDate:             mo.Some("not-a-date"),
		Exdates:             mo.Some([]string{"2025-02-01", "2025-01-01", "2025-01-01", "x"}),
		Frequency:           mo.Some(Frequency("hourly")),
		AdjustPolicy:        mo.Some(AdjustPreviousBusinessDay),
	})

	assert.Equal(t, mo.Some(1), p.Interval)
	assert.Equal(t, mo.Some(31), p.MonthlyDay)
	assert.Equal(t, mo.Some(0), p.MonthlyWeekday)
	assert.False(t, p.MonthlyWeekPosition.IsPresent())
	assert.Equal(t, mo.Some(23), p.Hour)
	assert.Equal(t, mo.Some(0), p.Minute)
	assert.Equal(t, mo.Some(1), p.EndCount)
	assert.Equal(t, mo.Some(1), p.LookaheadCount)
	assert.Equal(t, mo.Some(0), p.CatchUpLimit)
	assert.Equal(t, mo.Some(7), p.DaysBeforeDue)
	assert.Equal(t, mo.Some("UTC"), p.Timezone)
	assert.False(t, p.EndDate.IsPresent())
	assert.Equal(t, mo.Some([]string{"2025-01-01", "2025-02-01"}), p.Exdates)
	assert.False(t, p.Frequency.IsPresent())
	assert.Equal(t, mo.Some(AdjustPreviousBusinessDay), p.AdjustPolicy)

	assert.Equal(t, Patch{}, Sanitize(Patch{}))
}

func TestSanitize_KeepsLastWeek(t *testing.T) {
	p := Sanitize(Patch{MonthlyWeekPosition: mo.Some(LastWeek)})
	assert.Equal(t, mo.Some(LastWeek), p.MonthlyWeekPosition)
}

func TestValidate(t *testing.T) {
	valid := New(Patch{Enabled: mo.Some(true), Timezone: mo.Some("UTC")})
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		patch Patch
	}{
		{"interval", Patch{Interval: mo.Some(0)}},
		{"hour", Patch{Hour: mo.Some(24)}},
		{"minute", Patch{Minute: mo.Some(60)}},
		{"timezone", Patch{Timezone: mo.Some("Mars/Olympus_Mons")}},
		{"frequency", Patch{Frequency: mo.Some(Frequency("hourly"))}},
		{"weekday without position", Patch{
			Frequency:      mo.Some(FrequencyMonthly),
			MonthlyType:    mo.Some(MonthlyByWeekday),
			MonthlyWeekday: mo.Some(1),
		}},
		{"bad week position", Patch{
			Frequency:           mo.Some(FrequencyMonthly),
			MonthlyType:         mo.Some(MonthlyByWeekday),
			MonthlyWeekday:      mo.Some(1),
			MonthlyWeekPosition: mo.Some(0),
		}},
		{"monthly day", Patch{Frequency: mo.Some(FrequencyMonthly), MonthlyDay: mo.Some(32)}},
		{"unsorted exdates", Patch{Exdates: mo.Some([]string{"2025-02-01", "2025-01-01"})}},
		{"bad exdate", Patch{Exdates: mo.Some([]string{"2025-13-01"})}},
		{"end date", Patch{EndType: mo.Some(EndOnDate), EndDate: mo.Some("")}},
		{"end count", Patch{EndType: mo.Some(EndAfterCount), EndCount: mo.Some(0)}},
		{"lookahead", Patch{LookaheadCount: mo.Some(0)}},
		{"catch-up", Patch{CatchUpLimit: mo.Some(-1)}},
		{"days before due", Patch{DaysBeforeDue: mo.Some(8)}},
		{"generation mode", Patch{GenerationMode: mo.Some(GenerationMode("eventually"))}},
		{"adjust policy", Patch{AdjustPolicy: mo.Some(AdjustPolicy("sideways"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Update(valid, tt.patch).Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidate_DisabledAlwaysValid(t *testing.T) {
	c := Default()
	c.Interval = -5
	c.Timezone = "Nowhere/Else"
	assert.NoError(t, c.Validate())
}

func TestPatch_JSON(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"interval":3,"monthlyDay":15,"exdates":["2025-01-01"]}`), &p))

	assert.Equal(t, mo.Some(true), p.Enabled)
	assert.Equal(t, mo.Some(3), p.Interval)
	assert.Equal(t, mo.Some(15), p.MonthlyDay)
	assert.Equal(t, mo.Some([]string{"2025-01-01"}), p.Exdates)
	assert.False(t, p.Frequency.IsPresent())
	assert.False(t, p.Hour.IsPresent())

	c := Update(Default(), p)
	assert.True(t, c.Enabled)
	assert.Equal(t, 3, c.Interval)
	assert.Equal(t, FrequencyWeekly, c.Frequency)
}

func TestConfig_JSON(t *testing.T) {
	c := New(Patch{
		Enabled:             mo.Some(true),
		Frequency:           mo.Some(FrequencyMonthly),
		MonthlyType:         mo.Some(MonthlyByWeekday),
		MonthlyWeekday:      mo.Some(1),
		MonthlyWeekPosition: mo.Some(LastWeek),
	})

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"monthlyWeekPosition":-1`)
	assert.Contains(t, string(data), `"monthlyType":"weekday"`)

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, FrequencyMonthly, back.Frequency)
	assert.Equal(t, MonthlyByWeekday, back.MonthlyType)
	assert.Equal(t, mo.Some(1), back.MonthlyWeekday)
	assert.Equal(t, mo.Some(LastWeek), back.MonthlyWeekPosition)
	assert.Equal(t, c.Exdates, back.Exdates)
}
