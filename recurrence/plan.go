package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// PlanInput is the state of the job-creation side at planning time
type PlanInput struct {
	Now time.Time
	// LastScheduled is the scheduled instant of the newest instance already created
	LastScheduled mo.Option[time.Time]
	// Since is when the schedule became active. Until something has been
	// scheduled, occurrences from Since up to Now are backfilled as missed.
	Since mo.Option[time.Time]
	// PreviousOpen reports that the newest created instance is not complete yet
	PreviousOpen bool
}

// Instance is one task instance the job-creation side should hold
type Instance struct {
	Scheduled     time.Time `json:"scheduled"`     // Occurrence produced by the rule
	Due           time.Time `json:"due"`           // Scheduled after applying the adjust policy
	MaterializeAt time.Time `json:"materializeAt"` // Due minus daysBeforeDue
	Overdue       bool      `json:"overdue"`
	Ready         bool      `json:"ready"` // MaterializeAt has been reached
}

// Plan computes which instances the job-creation side should have created at
// in.Now. It has no side effects; materializing them is the caller's job.
//
// Overdue occurrences after LastScheduled (or from Since, when nothing was
// scheduled yet) are backfilled up to CatchUpLimit, newest kept. Future occurrences fill the lookahead, which is a single
// instance in GenerateOnPrevComplete mode and nothing while the previous
// instance is still open.
func (e *Engine) Plan(cfg Config, in PlanInput) []Instance {
	rule := e.compiler.Compile(cfg)
	if rule == nil {
		return nil
	}
	if cfg.GenerationMode == GenerateOnPrevComplete && in.PreviousOpen {
		return nil
	}

	excluded := exdateSet(cfg.Exdates)
	loc := rule.Location()
	last, hasLast := in.LastScheduled.Get()

	horizon := e.config.LookaheadHorizon
	if horizon <= 0 {
		horizon = DefaultEngineConfig.LookaheadHorizon
	}

	// missed reports whether an occurrence before Now still needs an instance
	missed := func(time.Time) bool { return false }
	since, hasSince := in.Since.Get()
	hasSince = hasSince && !since.IsZero()
	switch {
	case hasLast:
		missed = func(t time.Time) bool { return t.After(last) }
	case hasSince:
		missed = func(t time.Time) bool { return !t.Before(since) }
	}

	// Enumerate from the last scheduled instant so rules whose phase comes from
	// the anchor (weekly without a weekday, intervals above one) stay in step.
	start := in.Now
	switch {
	case hasLast && last.Before(in.Now):
		start = last
	case !hasLast && hasSince && since.Before(in.Now):
		start = since
	}
	if span := e.config.MaxCatchUpSpan; span > 0 && in.Now.Sub(start) > span {
		start = in.Now.Add(-span)
	}
	occurrences, err := rule.Occurrences(start, in.Now.Add(horizon))
	if err != nil {
		e.logger.Warn("failed to enumerate planned occurrences",
			"rule", rule.String(),
			"error", err)
		return nil
	}

	var overdue, upcoming []time.Time
	for _, t := range occurrences {
		if isExcluded(t, loc, excluded) {
			continue
		}
		if t.Before(in.Now) {
			if missed(t) {
				overdue = append(overdue, t)
			}
			continue
		}
		upcoming = append(upcoming, t)
	}

	var plan []Instance

	if len(overdue) > cfg.CatchUpLimit {
		overdue = overdue[len(overdue)-max(cfg.CatchUpLimit, 0):]
	}
	for _, t := range overdue {
		inst := e.instance(cfg, t, in.Now)
		inst.Overdue = true
		inst.Ready = true
		plan = append(plan, inst)
	}

	lookahead := max(cfg.LookaheadCount, 1)
	if cfg.GenerationMode == GenerateOnPrevComplete {
		lookahead = 1
	}
	if len(upcoming) > lookahead {
		upcoming = upcoming[:lookahead]
	}
	for _, t := range upcoming {
		// Already materialized ahead of now
		if hasLast && !t.After(last) {
			continue
		}
		plan = append(plan, e.instance(cfg, t, in.Now))
	}

	return plan
}

func (e *Engine) instance(cfg Config, scheduled, now time.Time) Instance {
	due := AdjustDate(scheduled, cfg.AdjustPolicy)
	materializeAt := due.AddDate(0, 0, -cfg.DaysBeforeDue)
	return Instance{
		Scheduled:     scheduled,
		Due:           due,
		MaterializeAt: materializeAt,
		Ready:         !materializeAt.After(now),
	}
}

// AdjustDate moves t off a weekend according to policy. Saturday and Sunday
// are the only non-business days.
func AdjustDate(t time.Time, policy AdjustPolicy) time.Time {
	step := 0
	switch policy {
	case AdjustPreviousBusinessDay:
		step = -1
	case AdjustNextBusinessDay:
		step = 1
	default:
		return t
	}
	for isWeekend(t) {
		t = t.AddDate(0, 0, step)
	}
	return t
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
