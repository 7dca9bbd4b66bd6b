package server

import (
	"fmt"
	"net/http"

	"github.com/cyp0633/librecur/internal/xcal"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// exportEnv is what an exporter needs to render one schedule
type exportEnv struct {
	schedule *storage.Schedule
	opts     recurrence.ExportOptions
}

// Exporter renders a schedule in one representation
type Exporter struct {
	ContentType string
	Render      func(env *exportEnv) mo.Result[[]byte]
}

var exporters = map[string]Exporter{
	storage.FormatICS: {
		ContentType: mimeTypeCalendar,
		Render: func(env *exportEnv) mo.Result[[]byte] {
			return mo.TupleToResult(recurrence.EncodeCalendar(env.schedule.Config, env.opts))
		},
	},
	storage.FormatXML: {
		ContentType: xcal.ContentType + "; charset=utf-8",
		Render: func(env *exportEnv) mo.Result[[]byte] {
			cal, err := recurrence.NewCalendar(env.schedule.Config, env.opts)
			if err != nil {
				return mo.Err[[]byte](err)
			}
			out, err := xcal.EncodeToString(cal)
			if err != nil {
				return mo.Err[[]byte](fmt.Errorf("failed to encode xcal: %w", err))
			}
			return mo.Ok([]byte(out))
		},
	},
}

func (h *ScheduleHandler) handleExport(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	exporter, ok := exporters[ctx.Resource.Format]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	sched, err := h.Storage.GetSchedule(r.Context(), ctx.Resource.UserID, ctx.Resource.ScheduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := h.Now()
	env := &exportEnv{
		schedule: sched,
		opts: recurrence.ExportOptions{
			UID:     sched.ID,
			Summary: sched.Name,
			Start:   now,
			Stamp:   sched.Modified,
		},
	}

	data, err := exporter.Render(env).Get()
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set(headerContentType, exporter.ContentType)
	w.Header().Set(headerETag, sched.ETag)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
