package server

import (
	"net/http"
	"strings"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/google/uuid"
)

func (h *ScheduleHandler) handleListSchedules(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	schedules, err := h.Storage.ListSchedules(r.Context(), ctx.Resource.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []*storage.Schedule{}
	}
	h.writeJSON(w, http.StatusOK, schedules)
}

func (h *ScheduleHandler) handleCreateSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	var req scheduleRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if strings.ContainsAny(id, "/.") {
		h.writeError(w, badRequest("schedule id must not contain '/' or '.'", nil))
		return
	}

	sched := &storage.Schedule{
		ID:     id,
		UserID: ctx.Resource.UserID,
		Name:   req.Name.OrEmpty(),
		Config: recurrence.New(recurrence.Sanitize(req.Config)),
	}
	if err := sched.Config.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.Storage.PutSchedule(r.Context(), sched, storage.PutOptions{IfNoneMatch: true}); err != nil {
		h.writeError(w, err)
		return
	}

	h.Logger.Info("schedule created",
		"user_id", sched.UserID,
		"schedule_id", sched.ID)

	location := storage.ResourcePath{Type: storage.ResourceTypeSchedule, UserID: sched.UserID, ScheduleID: sched.ID}
	w.Header().Set(headerLocation, h.href(&location))
	h.writeSchedule(w, http.StatusCreated, sched)
}

func (h *ScheduleHandler) handleGetSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// judge etag
	if etag := r.Header.Get(headerIfNoneMatch); etag != "" && etag == sched.ETag {
		w.Header().Set(headerETag, sched.ETag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.writeSchedule(w, http.StatusOK, sched)
}

// handlePutSchedule replaces the schedule configuration with the defaults
// merged with the request's config
func (h *ScheduleHandler) handlePutSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	h.updateSchedule(w, r, ctx, func(_ recurrence.Config, p recurrence.Patch) recurrence.Config {
		return recurrence.New(p)
	})
}

// handlePatchSchedule merges the request's config into the stored one
func (h *ScheduleHandler) handlePatchSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	h.updateSchedule(w, r, ctx, recurrence.Update)
}

func (h *ScheduleHandler) updateSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext, apply func(recurrence.Config, recurrence.Patch) recurrence.Config) {
	var req scheduleRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ID != "" && req.ID != ctx.Resource.ScheduleID {
		h.writeError(w, badRequest("schedule id cannot be changed", nil))
		return
	}

	h.modifySchedule(w, r, ctx, func(sched *storage.Schedule) error {
		if name, ok := req.Name.Get(); ok {
			sched.Name = name
		}
		if open, ok := req.PreviousOpen.Get(); ok {
			sched.PreviousOpen = open
		}
		sched.Config = apply(sched.Config, recurrence.Sanitize(req.Config))
		return sched.Config.Validate()
	})
}

// modifySchedule loads the schedule, applies edit and stores it back guarded
// by If-Match, or by the loaded ETag when the client sent none.
func (h *ScheduleHandler) modifySchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext, edit func(*storage.Schedule) error) {
	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ifMatch := r.Header.Get(headerIfMatch)
	if ifMatch == "" {
		ifMatch = sched.ETag
	}

	if err := edit(sched); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.Storage.PutSchedule(r.Context(), sched, storage.PutOptions{IfMatch: ifMatch}); err != nil {
		h.writeError(w, err)
		return
	}

	h.Logger.Info("schedule updated",
		"user_id", sched.UserID,
		"schedule_id", sched.ID,
		"etag", sched.ETag)

	h.writeSchedule(w, http.StatusOK, sched)
}

func (h *ScheduleHandler) handleDeleteSchedule(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	err := h.Storage.DeleteSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID, r.Header.Get(headerIfMatch))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Logger.Info("schedule deleted",
		"user_id", ctx.Resource.UserID,
		"schedule_id", ctx.Resource.ScheduleID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) handleListExdates(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	exdates := sched.Config.Exdates
	if exdates == nil {
		exdates = []string{}
	}
	w.Header().Set(headerETag, sched.ETag)
	h.writeJSON(w, http.StatusOK, exdates)
}

func (h *ScheduleHandler) handleAddExdate(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	var req exdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	day, err := recurrence.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, badRequest("invalid exception date", err))
		return
	}
	date := day.Format(recurrence.DateLayout)

	h.modifySchedule(w, r, ctx, func(sched *storage.Schedule) error {
		sched.Config = recurrence.AddException(sched.Config, date)
		return nil
	})
}

func (h *ScheduleHandler) handleRemoveExdate(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	h.modifySchedule(w, r, ctx, func(sched *storage.Schedule) error {
		sched.Config = recurrence.RemoveException(sched.Config, ctx.Resource.Date)
		return nil
	})
}
