package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
)

// RequestContext holds parsed information about the incoming request.
type RequestContext struct {
	Resource *storage.ResourcePath // nil for paths outside a user tree
	AuthUser string                // Authenticated user (from Basic Auth)
}

// ScheduleHandler is the main HTTP handler for schedule requests under a specific prefix.
type ScheduleHandler struct {
	Prefix  string // e.g., "/api/"
	Realm   string // Realm for Basic Auth
	Storage storage.Storage
	Engine  *recurrence.Engine
	Logger  *slog.Logger

	// Now is the clock used for previews, plans and exports
	Now func() time.Time

	protected http.Handler
}

// NewScheduleHandler creates a new ScheduleHandler. Every request except the
// health check must pass authenticator.
func NewScheduleHandler(prefix, realm string, store storage.Storage, engine *recurrence.Engine, authenticator auth.Authenticator, logger *slog.Logger) *ScheduleHandler {
	// Ensure prefix starts and ends with a slash for consistent parsing
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if engine == nil {
		engine = recurrence.NewEngine(recurrence.WithLogger(logger))
	}

	h := &ScheduleHandler{
		Prefix:  prefix,
		Realm:   realm,
		Storage: store,
		Engine:  engine,
		Logger:  logger,
		Now:     time.Now,
	}
	h.protected = auth.Middleware(authenticator, realm, prefix+"healthz")(http.HandlerFunc(h.route))
	return h
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ServeHTTP handles incoming HTTP requests, performs authentication, parsing, and routing.
func (h *ScheduleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.protected.ServeHTTP(rec, r)

	h.Logger.Info("request handled",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start))
}

func (h *ScheduleHandler) route(w http.ResponseWriter, r *http.Request) {
	relativePath := "/" + strings.TrimPrefix(r.URL.Path, h.Prefix)

	switch strings.TrimSuffix(relativePath, "/") {
	case "/healthz":
		w.Header().Set(headerContentType, mimeTypeText)
		io.WriteString(w, "ok\n")
		return
	case "/preview":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.handlePreviewConfig(w, r)
		return
	}

	resource, err := storage.ParseResourcePath(relativePath)
	if err != nil {
		h.Logger.Debug("unroutable path",
			"path", relativePath,
			"error", err)
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	ctx := &RequestContext{Resource: resource}
	if p := auth.GetPrincipalFromContext(r.Context()); p != nil {
		ctx.AuthUser = p.ID
	}

	h.Logger.Debug("parsed path",
		"type", resource.Type,
		"user_id", resource.UserID,
		"schedule_id", resource.ScheduleID,
		"auth_user", ctx.AuthUser)

	switch resource.Type {
	case storage.ResourceTypePrincipal:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{http.MethodGet: h.handlePrincipal})
	case storage.ResourceTypeScheduleHome:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{
			http.MethodGet:  h.handleListSchedules,
			http.MethodPost: h.handleCreateSchedule,
		})
	case storage.ResourceTypeSchedule:
		if resource.Format != storage.FormatJSON {
			h.routeMethods(w, r, ctx, map[string]handlerFunc{http.MethodGet: h.handleExport})
			return
		}
		h.routeMethods(w, r, ctx, map[string]handlerFunc{
			http.MethodGet:    h.handleGetSchedule,
			http.MethodPut:    h.handlePutSchedule,
			http.MethodPatch:  h.handlePatchSchedule,
			http.MethodDelete: h.handleDeleteSchedule,
		})
	case storage.ResourceTypePreview:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{http.MethodGet: h.handlePreviewSchedule})
	case storage.ResourceTypePlan:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{http.MethodGet: h.handlePlan})
	case storage.ResourceTypeExdates:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{
			http.MethodGet:  h.handleListExdates,
			http.MethodPost: h.handleAddExdate,
		})
	case storage.ResourceTypeExdate:
		h.routeMethods(w, r, ctx, map[string]handlerFunc{http.MethodDelete: h.handleRemoveExdate})
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, ctx *RequestContext)

func (h *ScheduleHandler) routeMethods(w http.ResponseWriter, r *http.Request, ctx *RequestContext, handlers map[string]handlerFunc) {
	if r.Method == http.MethodHead {
		if get, ok := handlers[http.MethodGet]; ok {
			get(w, r, ctx)
			return
		}
	}
	handler, ok := handlers[r.Method]
	if !ok {
		allowed := make([]string, 0, len(handlers))
		for method := range handlers {
			allowed = append(allowed, method)
		}
		h.Logger.Info("method not allowed",
			"method", r.Method,
			"resource_type", ctx.Resource.Type)
		methodNotAllowed(w, allowed...)
		return
	}
	handler(w, r, ctx)
}

func (h *ScheduleHandler) handlePrincipal(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	home := storage.ResourcePath{Type: storage.ResourceTypeScheduleHome, UserID: ctx.Resource.UserID}
	h.writeJSON(w, http.StatusOK, principalResponse{
		User: ctx.Resource.UserID,
		Home: h.href(&home),
	})
}

// href turns a resource path into an absolute request path under the prefix
func (h *ScheduleHandler) href(rp *storage.ResourcePath) string {
	return strings.TrimSuffix(h.Prefix, "/") + rp.String()
}
