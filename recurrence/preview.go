package recurrence

import (
	"fmt"
	"log/slog"
	"time"
)

// Previewer is the default OccurrencePreviewer
type Previewer struct {
	logger *slog.Logger
	opts   PreviewOptions
}

// NewPreviewer creates a Previewer using DefaultPreviewOptions unless overridden
func NewPreviewer(opts ...Option) *Previewer {
	o := applyOptions(opts)
	return &Previewer{logger: o.logger, opts: o.preview}
}

// Options returns the window and limit this previewer applies
func (p *Previewer) Options() PreviewOptions {
	return p.opts
}

// Preview returns at most Limit occurrences of rule within WindowDays of ref,
// skipping dates listed in exdates. It never fails: a nil rule or any error
// while enumerating yields an empty slice.
func (p *Previewer) Preview(rule Rule, exdates []string, ref time.Time) []time.Time {
	return p.PreviewWith(rule, exdates, ref, p.opts)
}

// PreviewWith is Preview with an explicit window and limit
func (p *Previewer) PreviewWith(rule Rule, exdates []string, ref time.Time, opts PreviewOptions) (out []time.Time) {
	if rule == nil || opts.Limit <= 0 {
		return []time.Time{}
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recurrence preview panicked",
				"rule", rule.String(),
				"panic", fmt.Sprint(r))
			out = []time.Time{}
		}
	}()

	end := ref.AddDate(0, 0, opts.WindowDays)
	occurrences, err := rule.Occurrences(ref, end)
	if err != nil {
		p.logger.Warn("failed to enumerate recurrence preview",
			"rule", rule.String(),
			"error", err)
		return []time.Time{}
	}

	excluded := exdateSet(exdates)
	out = make([]time.Time, 0, opts.Limit)
	for _, t := range occurrences {
		if isExcluded(t, rule.Location(), excluded) {
			continue
		}
		out = append(out, t)
		if len(out) == opts.Limit {
			break
		}
	}
	return out
}

// exdateSet indexes the valid dates of exdates; malformed entries are ignored
func exdateSet(exdates []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exdates))
	for _, d := range NormalizeExdates(exdates) {
		set[d] = struct{}{}
	}
	return set
}

// isExcluded matches t by calendar date in loc, ignoring time of day
func isExcluded(t time.Time, loc *time.Location, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	if loc != nil {
		t = t.In(loc)
	}
	_, ok := set[t.Format(DateLayout)]
	return ok
}
