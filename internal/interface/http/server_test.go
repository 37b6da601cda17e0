package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduplatform/progress-hub/internal/application/command"
	"github.com/eduplatform/progress-hub/internal/application/query"
	"github.com/eduplatform/progress-hub/internal/application/saga"
	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
	"github.com/eduplatform/progress-hub/internal/infrastructure/service"
	"github.com/eduplatform/progress-hub/internal/interface/http/handlers"
	"github.com/eduplatform/progress-hub/pkg/keylock"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

const ana = "ana@example.com"

var afternoon = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type gate map[string]bool

func (g gate) IsEnabledForUser(flag, _ string) bool { return g[flag] }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

type testServer struct {
	handler http.Handler
	inbox   *service.MemoryInbox
	gate    gate
}

func newTestServer(t *testing.T, tokenHash string) *testServer {
	t.Helper()

	store, err := document.NewStore(context.Background(), document.NewMemoryKV(), document.Config{Name: "test"})
	require.NoError(t, err)

	clock := timeutil.NewFixedClock(afternoon)
	inbox := service.NewMemoryInbox(10)
	notifier := service.NewInboxNotifier(inbox, clock)
	ids := identity.ContextProvider{}

	flow := saga.NewAchievementFlowSaga(store, notifier, nil, clock, nil, nil,
		saga.AchievementFlowConfig{Location: time.UTC, EnableNotifications: true})
	deps := command.Deps{
		Store:        store,
		Identity:     ids,
		Notifier:     notifier,
		Achievements: flow,
		Clock:        clock,
		Location:     time.UTC,
		Locks:        keylock.New(),
	}

	proxy, err := handlers.NewProxyIdentity("X-User-Email", "X-Proxy-Token", tokenHash)
	require.NoError(t, err)

	g := gate{}
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 0

	srv := NewServer(cfg, Dependencies{
		EnsureRecord:         command.NewEnsureRecordHandler(deps),
		UpdateCourseProgress: command.NewUpdateCourseProgressHandler(deps),
		UpdateRouteProgress:  command.NewUpdateRouteProgressHandler(deps),
		SimulateWatching:     command.NewSimulateWatchingHandler(deps, g),
		UpdatePreferences:    command.NewUpdatePreferencesHandler(deps),
		GetUserStats:         query.NewGetUserStatsHandler(store, ids, nil, clock, time.UTC, nil),
		GetProgress:          query.NewGetProgressHandler(store, ids),
		GetAchievements:      query.NewGetAchievementsHandler(store, ids),
		Inbox:                inbox,
		Identity:             proxy,
	})

	return &testServer{handler: srv.Handler(), inbox: inbox, gate: g}
}

func (ts *testServer) do(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-Email", user)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestEnvelope_AlwaysHasAllKeys(t *testing.T) {
	ts := newTestServer(t, "")

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/me/progress", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"success", "data", "error", "meta"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "null", string(raw["data"]))
	assert.Equal(t, "null", string(raw["error"]))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	for _, path := range []string{"/health", "/ready", "/live", "/"} {
		rec, env := ts.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, env.Success, path)
	}
}

func TestCatalog_ListsAllAchievements(t *testing.T) {
	ts := newTestServer(t, "")

	_, env := ts.do(t, http.MethodGet, "/api/v1/achievements", "", "")
	var items []query.AchievementDTO
	decodeData(t, env, &items)
	assert.Len(t, items, len(progress.Catalog()))
	for _, it := range items {
		assert.False(t, it.Unlocked)
	}
}

func TestEnsureRecord(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/me/record", ana, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	var created ensureRecordResponse
	decodeData(t, env, &created)
	assert.True(t, created.Created)
	require.NotNil(t, created.Record)
	assert.Equal(t, 1, created.Record.Level)

	rec, env = ts.do(t, http.MethodPost, "/api/v1/me/record", ana, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, env, &created)
	assert.False(t, created.Created)
}

func TestEnsureRecord_AnonymousIsSkipped(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/me/record", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var out skippedResponse
	decodeData(t, env, &out)
	assert.True(t, out.Skipped)
}

func TestUpdateCourseProgress_CompletesCourse(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana,
		`{"progress": 100, "watchMinutes": 10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out progressResponse
	decodeData(t, env, &out)
	assert.True(t, out.Completed)
	assert.GreaterOrEqual(t, out.XPGained, 100)
	require.NotNil(t, out.Record)
	assert.Contains(t, out.Record.CoursesCompleted, "go-101")

	ids := make([]string, 0, len(out.Unlocks))
	for _, u := range out.Unlocks {
		ids = append(ids, u.AchievementID)
	}
	assert.Contains(t, ids, progress.AchievementFirstCourse)

	_, env = ts.do(t, http.MethodGet, "/api/v1/me/stats", ana, "")
	var stats progress.Stats
	decodeData(t, env, &stats)
	assert.Equal(t, 1, stats.CoursesCompleted)
	assert.InDelta(t, 10.0, stats.TotalWatchTime, 0.001)
}

func TestUpdateCourseProgress_BadRequests(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"watchMinutes": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"progress":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", env.Error.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"progress": 10, "watchMinutes": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.False(t, env.Success)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"progress": 10, "watchMinutes": 4e19}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestUpdateRouteProgress(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPut, "/api/v1/me/routes/backend/progress", ana, `{"progress": 100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out progressResponse
	decodeData(t, env, &out)
	assert.True(t, out.Completed)
	assert.GreaterOrEqual(t, out.XPGained, 500)
}

func TestSimulateWatching_RequiresFlag(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/me/courses/go-101/simulate", ana, `{"minutes": 5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Code)

	ts.gate[command.FlagSimulate] = true
	rec, env = ts.do(t, http.MethodPost, "/api/v1/me/courses/go-101/simulate", ana, `{"minutes": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out progressResponse
	decodeData(t, env, &out)
	require.NotNil(t, out.Record)
	assert.InDelta(t, 10.0, out.Record.CoursesInProgress["go-101"].Progress, 0.001)
}

func TestUpdatePreferences(t *testing.T) {
	ts := newTestServer(t, "")

	rec, env := ts.do(t, http.MethodPatch, "/api/v1/me/preferences", ana, `{"dailyGoal": 45, "theme": "dark"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out preferencesResponse
	decodeData(t, env, &out)
	assert.Equal(t, 45, out.DailyGoal)
	assert.Equal(t, "dark", out.Theme)
	assert.ElementsMatch(t, []string{"daily_goal", "theme"}, out.ChangedFields)

	rec, _ = ts.do(t, http.MethodPatch, "/api/v1/me/preferences", ana, `{"dailyGoal": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMyAchievements(t *testing.T) {
	ts := newTestServer(t, "")

	_, env := ts.do(t, http.MethodGet, "/api/v1/me/achievements", "", "")
	assert.Equal(t, "null", string(env.Data))

	ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"progress": 100}`)

	_, env = ts.do(t, http.MethodGet, "/api/v1/me/achievements", ana, "")
	var out myAchievementsResponse
	decodeData(t, env, &out)
	assert.Equal(t, len(progress.Catalog()), out.Total)
	assert.GreaterOrEqual(t, out.UnlockedCount, 1)
	assert.Len(t, out.Unlocks, out.UnlockedCount)
}

func TestNotifications_DrainOnce(t *testing.T) {
	ts := newTestServer(t, "")

	_, env := ts.do(t, http.MethodGet, "/api/v1/me/notifications", "", "")
	assert.Equal(t, "null", string(env.Data))

	ts.do(t, http.MethodPut, "/api/v1/me/courses/go-101/progress", ana, `{"progress": 100}`)

	_, env = ts.do(t, http.MethodGet, "/api/v1/me/notifications", ana, "")
	var items []map[string]interface{}
	decodeData(t, env, &items)
	assert.NotEmpty(t, items)

	_, env = ts.do(t, http.MethodGet, "/api/v1/me/notifications", ana, "")
	decodeData(t, env, &items)
	assert.Empty(t, items)
	assert.Equal(t, "[]", strings.TrimSpace(string(env.Data)))
}

func TestProxyToken_Required(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, string(hash))

	rec, env := ts.do(t, http.MethodGet, "/api/v1/me/progress", ana, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_proxy_token", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/record", nil)
	req.Header.Set("X-User-Email", ana)
	req.Header.Set("X-Proxy-Token", "s3cret")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.ErrInvalidInput, http.StatusBadRequest},
		{"simulation disabled", command.ErrSimulationDisabled, http.StatusForbidden},
		{"store unavailable", shared.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"not found", shared.ErrNotFound, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
