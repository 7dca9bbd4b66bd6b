package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/samber/mo"
)

// Upper bounds for client supplied preview windows
const (
	maxWindowDays = 3660
	maxLimit      = 100
)

// referenceTime is the instant previews start from when the client gives
// none: now rounded up to the next whole minute.
func (h *ScheduleHandler) referenceTime() time.Time {
	now := h.Now()
	ref := now.Truncate(time.Minute)
	if ref.Before(now) {
		ref = ref.Add(time.Minute)
	}
	return ref
}

// parseInstant accepts RFC 3339 instants and ISO dates (midnight UTC)
func parseInstant(s string) mo.Result[time.Time] {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return mo.Ok(t)
	}
	t, err := recurrence.ParseDate(s)
	if err != nil {
		return mo.Err[time.Time](badRequest("invalid time "+strconv.Quote(s), nil))
	}
	return mo.Ok(t)
}

// instantParam resolves query parameter name, falling back to def
func instantParam(q url.Values, name string, def time.Time) mo.Result[time.Time] {
	if v := q.Get(name); v != "" {
		return parseInstant(v)
	}
	return mo.Ok(def)
}

// intParam resolves a bounded positive integer query parameter; absent means 0
func intParam(q url.Values, name string, hi int) mo.Result[int] {
	v := q.Get(name)
	if v == "" {
		return mo.Ok(0)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return mo.Err[int](badRequest(name+" must be a positive integer", nil))
	}
	return mo.Ok(min(n, hi))
}

func clampOption(opt mo.Option[int], hi int) int {
	n := opt.OrEmpty()
	if n < 1 {
		return 0
	}
	return min(n, hi)
}

func (h *ScheduleHandler) preview(cfg recurrence.Config, ref time.Time, opts recurrence.PreviewOptions) previewResponse {
	resp := previewResponse{
		Reference:   ref,
		Occurrences: h.Engine.PreviewWith(cfg, ref, opts),
	}
	if rule := h.Engine.Compile(cfg); rule != nil {
		resp.Rule = rule.String()
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []time.Time{}
	}
	return resp
}

// handlePreviewConfig previews an unsaved configuration, the editor's live view
func (h *ScheduleHandler) handlePreviewConfig(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	cfg := recurrence.New(recurrence.Sanitize(req.Config))
	ref := req.Reference.OrElse(h.referenceTime())
	opts := recurrence.PreviewOptions{
		WindowDays: clampOption(req.WindowDays, maxWindowDays),
		Limit:      clampOption(req.Limit, maxLimit),
	}

	h.writeJSON(w, http.StatusOK, h.preview(cfg, ref, opts))
}

func (h *ScheduleHandler) handlePreviewSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	q := r.URL.Query()
	ref := instantParam(q, "at", h.referenceTime())
	window := intParam(q, "windowDays", maxWindowDays)
	limit := intParam(q, "limit", maxLimit)
	for _, err := range []error{ref.Error(), window.Error(), limit.Error()} {
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	opts := recurrence.PreviewOptions{WindowDays: window.MustGet(), Limit: limit.MustGet()}
	w.Header().Set(headerETag, sched.ETag)
	h.writeJSON(w, http.StatusOK, h.preview(sched.Config, ref.MustGet(), opts))
}

// handlePlan reports which instances the job-creation side should hold now
func (h *ScheduleHandler) handlePlan(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	now, err := instantParam(r.URL.Query(), "at", h.Now()).Get()
	if err != nil {
		h.writeError(w, err)
		return
	}

	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	instances := h.Engine.Plan(sched.Config, recurrence.PlanInput{
		Now:           now,
		LastScheduled: sched.LastScheduled,
		Since:         mo.Some(sched.Created),
		PreviousOpen:  sched.PreviousOpen,
	})
	if instances == nil {
		instances = []recurrence.Instance{}
	}

	w.Header().Set(headerETag, sched.ETag)
	h.writeJSON(w, http.StatusOK, planResponse{Now: now, Instances: instances})
}
