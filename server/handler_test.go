package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	authmemory "github.com/cyp0633/librecur/server/auth/memory"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/cyp0633/librecur/server/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 2025-01-06, before the 09:00 occurrences used below
var testNow = time.Date(2025, 1, 6, 8, 30, 15, 0, time.UTC)

func newTestHandler(t *testing.T, store storage.Storage) *ScheduleHandler {
	t.Helper()
	authStore := authmemory.New(authmemory.WithUsers(map[string]string{
		"alice": "pw",
		"bob":   "pw",
	}))
	engine := recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig)
	t.Cleanup(engine.Close)

	h := NewScheduleHandler("/api", "Test Realm", store, engine, authStore, nil)
	h.Now = func() time.Time { return testNow }
	return h
}

// do sends a request as alice unless a user is given in headers as "user"
func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(headerContentType, mimeTypeJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	user := "alice"
	for k, v := range headers {
		if k == "user" {
			user = v
			continue
		}
		req.Header.Set(k, v)
	}
	if user != "" {
		req.SetBasicAuth(user, "pw")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// scheduleBody is the subset of the schedule JSON the tests look at
type scheduleBody struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ETag         string `json:"etag"`
	PreviousOpen bool   `json:"previousOpen"`
	Config       struct {
		Enabled   bool     `json:"enabled"`
		Frequency string   `json:"frequency"`
		Interval  int      `json:"interval"`
		Exdates   []string `json:"exdates"`
	} `json:"config"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func mondaysAt9(weeks ...int) []time.Time {
	out := make([]time.Time, len(weeks))
	for i, w := range weeks {
		out[i] = time.Date(2025, 1, 6+7*w, 9, 0, 0, 0, time.UTC)
	}
	return out
}

const weeklyBody = `{"id":"standup","name":"Standup","config":{"enabled":true,"frequency":"weekly","hour":9,"timezone":"UTC"}}`

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, memory.New())

	rec := do(t, h, http.MethodGet, "/api/healthz", "", map[string]string{"user": ""})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	h := newTestHandler(t, memory.New())

	rec := do(t, h, http.MethodGet, "/api/u/alice/sched", "", map[string]string{"user": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="Test Realm"`)

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched", "", map[string]string{"user": "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/u/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, principalResponse{User: "alice", Home: "/api/u/alice/sched"}, decode[principalResponse](t, rec))
}

func TestScheduleLifecycle(t *testing.T) {
	h := newTestHandler(t, memory.New())

	// Create
	rec := do(t, h, http.MethodPost, "/api/u/alice/sched", weeklyBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/u/alice/sched/standup", rec.Header().Get(headerLocation))
	etag := rec.Header().Get(headerETag)
	require.NotEmpty(t, etag)
	created := decode[scheduleBody](t, rec)
	assert.Equal(t, "Standup", created.Name)
	assert.True(t, created.Config.Enabled)

	// Duplicate id
	rec = do(t, h, http.MethodPost, "/api/u/alice/sched", weeklyBody, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// List
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]scheduleBody](t, rec), 1)

	// Conditional get
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup", "", map[string]string{headerIfNoneMatch: etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, etag, rec.Header().Get(headerETag))

	// Preview starts at now rounded up to the minute
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup/preview", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[previewResponse](t, rec)
	assert.Equal(t, time.Date(2025, 1, 6, 8, 31, 0, 0, time.UTC), preview.Reference.UTC())
	assert.Contains(t, preview.Rule, "FREQ=WEEKLY")
	assertInstants(t, mondaysAt9(0, 1, 2, 3, 4, 5), preview.Occurrences)

	// Exception dates
	rec = do(t, h, http.MethodPost, "/api/u/alice/sched/standup/exdates", `{"date":"2025-01-13"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2025-01-13"}, decode[scheduleBody](t, rec).Config.Exdates)
	assert.NotEqual(t, etag, rec.Header().Get(headerETag))
	staleETag := etag
	etag = rec.Header().Get(headerETag)

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup/preview?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertInstants(t, mondaysAt9(0, 2), decode[previewResponse](t, rec).Occurrences)

	rec = do(t, h, http.MethodPost, "/api/u/alice/sched/standup/exdates", `{"date":"next week"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Stale precondition
	rec = do(t, h, http.MethodPatch, "/api/u/alice/sched/standup", `{"config":{"interval":2}}`, map[string]string{headerIfMatch: staleETag})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	// Merge
	rec = do(t, h, http.MethodPatch, "/api/u/alice/sched/standup", `{"config":{"interval":2}}`, map[string]string{headerIfMatch: etag})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[scheduleBody](t, rec)
	assert.Equal(t, 2, patched.Config.Interval)
	assert.Equal(t, []string{"2025-01-13"}, patched.Config.Exdates)
	assert.Equal(t, "Standup", patched.Name)

	rec = do(t, h, http.MethodDelete, "/api/u/alice/sched/standup/exdates/2025-01-13", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[scheduleBody](t, rec).Config.Exdates)

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup/exdates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{}, decode[[]string](t, rec))

	// Replace resets everything not given
	rec = do(t, h, http.MethodPut, "/api/u/alice/sched/standup", `{"name":"Daily","config":{"frequency":"daily"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replaced := decode[scheduleBody](t, rec)
	assert.Equal(t, "Daily", replaced.Name)
	assert.False(t, replaced.Config.Enabled)
	assert.Equal(t, 1, replaced.Config.Interval)

	// Disabled schedules preview nothing
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup/preview", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	disabled := decode[previewResponse](t, rec)
	assert.Empty(t, disabled.Occurrences)
	assert.Empty(t, disabled.Rule)

	// Delete
	rec = do(t, h, http.MethodDelete, "/api/u/alice/sched/standup", "", map[string]string{headerIfMatch: staleETag})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/u/alice/sched/standup", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func assertInstants(t *testing.T, want, got []time.Time) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "occurrence %d: want %v, got %v", i, want[i], got[i])
	}
}

func TestCreateSchedule_GeneratedID(t *testing.T) {
	h := newTestHandler(t, memory.New())

	rec := do(t, h, http.MethodPost, "/api/u/alice/sched", `{"name":"Rent"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sched := decode[scheduleBody](t, rec)
	assert.Len(t, sched.ID, 36)
	assert.Equal(t, "/api/u/alice/sched/"+sched.ID, rec.Header().Get(headerLocation))
	assert.False(t, sched.Config.Enabled)
}

func TestCreateSchedule_Rejected(t *testing.T) {
	h := newTestHandler(t, memory.New())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"config":`},
		{"unknown field", `{"name":"x","color":"red"}`},
		{"dotted id", `{"id":"a.ics"}`},
		{"invalid config", `{"config":{"enabled":true,"timezone":"Nowhere/Land"}}`},
		{"weekday rule without position", `{"config":{"enabled":true,"frequency":"monthly","monthlyType":"weekday","monthlyWeekday":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/u/alice/sched", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestPreviewConfig(t *testing.T) {
	h := newTestHandler(t, memory.New())

	t.Run("last monday", func(t *testing.T) {
		body := `{"config":{"enabled":true,"frequency":"monthly","monthlyType":"weekday","monthlyWeekday":1,"monthlyWeekPosition":-1,"hour":9,"timezone":"UTC"},"limit":2}`
		rec := do(t, h, http.MethodPost, "/api/preview", body, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[previewResponse](t, rec)
		assert.Contains(t, resp.Rule, "BYDAY=-1MO")
		assertInstants(t, []time.Time{
			time.Date(2025, 1, 27, 9, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 24, 9, 0, 0, 0, time.UTC),
		}, resp.Occurrences)
	})

	t.Run("explicit reference is inclusive", func(t *testing.T) {
		body := `{"config":{"enabled":true,"frequency":"daily","hour":9,"timezone":"UTC"},"reference":"2025-03-01T09:00:00Z","limit":1}`
		rec := do(t, h, http.MethodPost, "/api/preview", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assertInstants(t, []time.Time{time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}, decode[previewResponse](t, rec).Occurrences)
	})

	t.Run("limit is capped", func(t *testing.T) {
		body := `{"config":{"enabled":true,"frequency":"daily","timezone":"UTC"},"limit":100000,"windowDays":1000}`
		rec := do(t, h, http.MethodPost, "/api/preview", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[previewResponse](t, rec).Occurrences, maxLimit)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/preview", `[]`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/preview", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get(headerAllow))
	})
}

func TestExdates_StoredInCanonicalForm(t *testing.T) {
	h := newTestHandler(t, memory.New())
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/u/alice/sched", weeklyBody, nil).Code)

	rec := do(t, h, http.MethodPost, "/api/u/alice/sched/standup/exdates", `{"date":" 2025-03-10 "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2025-03-10"}, decode[scheduleBody](t, rec).Config.Exdates)

	rec = do(t, h, http.MethodPost, "/api/u/alice/sched/standup/exdates", `{"date":"2025-03-10"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2025-03-10"}, decode[scheduleBody](t, rec).Config.Exdates)

	rec = do(t, h, http.MethodDelete, "/api/u/alice/sched/standup/exdates/2025-03-10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[scheduleBody](t, rec).Config.Exdates)
}

func TestPreviewSchedule_Params(t *testing.T) {
	h := newTestHandler(t, memory.New())
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/u/alice/sched", weeklyBody, nil).Code)

	rec := do(t, h, http.MethodGet, "/api/u/alice/sched/standup/preview?at=2025-01-07&limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Weekly without a weekday follows the reference day
	assertInstants(t, []time.Time{time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)}, decode[previewResponse](t, rec).Occurrences)

	for _, query := range []string{"at=yesterday", "limit=0", "windowDays=abc"} {
		rec := do(t, h, http.MethodGet, "/api/u/alice/sched/standup/preview?"+query, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestPlan(t *testing.T) {
	h := newTestHandler(t, memory.New())
	body := `{"id":"daily","config":{"enabled":true,"frequency":"daily","hour":9,"timezone":"UTC","lookaheadCount":2}}`
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/u/alice/sched", body, nil).Code)

	rec := do(t, h, http.MethodGet, "/api/u/alice/sched/daily/plan?at=2025-01-06T12:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[planResponse](t, rec)
	require.Len(t, resp.Instances, 2)
	assert.True(t, time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC).Equal(resp.Instances[0].Scheduled))
	assert.True(t, time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC).Equal(resp.Instances[1].Scheduled))

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/daily/plan?at=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	h := newTestHandler(t, memory.New())
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/u/alice/sched", weeklyBody, nil).Code)

	rec := do(t, h, http.MethodGet, "/api/u/alice/sched/standup.ics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, mimeTypeCalendar, rec.Header().Get(headerContentType))
	assert.NotEmpty(t, rec.Header().Get(headerETag))
	assert.Contains(t, rec.Body.String(), "BEGIN:VTODO")
	assert.Contains(t, rec.Body.String(), "UID:standup")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Standup")
	assert.Contains(t, rec.Body.String(), "RRULE:FREQ=WEEKLY")

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/standup.xml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(headerContentType), "application/calendar+xml"))
	assert.Contains(t, rec.Body.String(), "<vtodo>")
	assert.Contains(t, rec.Body.String(), "<freq>WEEKLY</freq>")

	rec = do(t, h, http.MethodPut, "/api/u/alice/sched/standup.ics", `{}`, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/u/alice/sched/missing.ics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouting(t *testing.T) {
	h := newTestHandler(t, memory.New())

	rec := do(t, h, http.MethodDelete, "/api/u/alice/sched", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get(headerAllow))

	rec = do(t, h, http.MethodGet, "/api/u/alice/calendars", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageErrors(t *testing.T) {
	mockStorage := &storage.MockStorage{}
	h := newTestHandler(t, mockStorage)

	mockStorage.On("GetSchedule", "alice", "broken").Return(nil, errors.New("db down"))
	mockStorage.SetupMissing("alice", "gone")
	mockStorage.SetupSchedules("alice", storage.NewMockSchedule("alice", "rent", "Rent", recurrence.Default()))
	mockStorage.On("PutSchedule", mock.Anything, mock.Anything).Return("", &storage.Error{Type: storage.ErrPreconditionFailed, Message: "etag mismatch"})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"internal error is hidden", http.MethodGet, "/api/u/alice/sched/broken", "", http.StatusInternalServerError, "Internal Server Error"},
		{"not found", http.MethodGet, "/api/u/alice/sched/gone", "", http.StatusNotFound, "schedule not found"},
		{"not found on preview", http.MethodGet, "/api/u/alice/sched/gone/preview", "", http.StatusNotFound, "schedule not found"},
		{"lost update", http.MethodPatch, "/api/u/alice/sched/rent", `{"name":"x"}`, http.StatusPreconditionFailed, "etag mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode[errorResponse](t, rec).Error)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/u/alice/sched/rent", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"etag-rent-1"`, rec.Header().Get(headerETag))
}
