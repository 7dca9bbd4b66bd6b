package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

const (
	// HTTP headers
	headerContentType = "Content-Type"
	headerETag        = "ETag"
	headerAllow       = "Allow"
	headerLocation    = "Location"
	headerIfMatch     = "If-Match"
	headerIfNoneMatch = "If-None-Match"

	// MIME types
	mimeTypeJSON     = "application/json; charset=utf-8"
	mimeTypeText     = "text/plain; charset=utf-8"
	mimeTypeCalendar = "text/calendar; charset=utf-8"

	// maxBodyBytes bounds request bodies
	maxBodyBytes = 1 << 20
)

type principalResponse struct {
	User string `json:"user"`
	Home string `json:"home"`
}

// scheduleRequest is the body of schedule creation and updates
type scheduleRequest struct {
	ID     string            `json:"id,omitempty"`
	Name   mo.Option[string] `json:"name"`
	Config recurrence.Patch  `json:"config"`

	// PreviousOpen lets the job-creation side report completion of the
	// newest instance
	PreviousOpen mo.Option[bool] `json:"previousOpen"`
}

// previewRequest is the body of POST /preview
type previewRequest struct {
	Config     recurrence.Patch     `json:"config"`
	Reference  mo.Option[time.Time] `json:"reference"`
	WindowDays mo.Option[int]       `json:"windowDays"`
	Limit      mo.Option[int]       `json:"limit"`
}

type previewResponse struct {
	Rule        string      `json:"rule"`
	Reference   time.Time   `json:"reference"`
	Occurrences []time.Time `json:"occurrences"`
}

type planResponse struct {
	Now       time.Time             `json:"now"`
	Instances []recurrence.Instance `json:"instances"`
}

type exdateRequest struct {
	Date string `json:"date"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *ScheduleHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to write response",
			"error", err)
	}
}

// writeSchedule sends sched as JSON along with its ETag
func (h *ScheduleHandler) writeSchedule(w http.ResponseWriter, status int, sched *storage.Schedule) {
	if sched.ETag != "" {
		w.Header().Set(headerETag, sched.ETag)
	}
	h.writeJSON(w, status, sched)
}

// writeError maps err to an HTTP status. Storage and validation errors carry
// their message to the client; anything else is logged and hidden.
func (h *ScheduleHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var serr *storage.Error
	switch {
	case errors.As(err, &serr):
		switch serr.Type {
		case storage.ErrNotFound:
			status = http.StatusNotFound
		case storage.ErrAlreadyExists:
			status = http.StatusConflict
		case storage.ErrInvalidInput:
			status = http.StatusBadRequest
		case storage.ErrPreconditionFailed:
			status = http.StatusPreconditionFailed
		}
		if status != http.StatusInternalServerError {
			message = serr.Message
		}
	case errors.Is(err, recurrence.ErrInvalidConfig), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		message = err.Error()
	case auth.IsForbidden(err):
		status = http.StatusForbidden
		message = http.StatusText(status)
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"error", err)
	} else {
		h.Logger.Info("request rejected",
			"status", status,
			"error", err)
	}
	h.writeJSON(w, status, errorResponse{Error: message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	slices.Sort(allowed)
	w.Header().Set(headerAllow, strings.Join(allowed, ", "))
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

// errBadRequest marks malformed request bodies and parameters
var errBadRequest = errors.New("bad request")

func badRequest(msg string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errBadRequest, msg, err)
	}
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

// decodeBody reads a JSON body into v, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body", err)
	}
	return nil
}
