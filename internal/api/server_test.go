package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/metrics"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/dgnsrekt/flow_shell/internal/snapshot"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	h      http.Handler
	broker *events.Broker
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	broker := events.NewBroker()
	b := browser.New(registry.New(), engine.NewHeadless(), broker)
	t.Cleanup(b.Close)
	store, err := snapshot.NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, func() metrics.Counts { return controller.TopologyCounts(b) })
	sessions := session.NewManager(b, store, session.Options{RetryDelay: time.Millisecond, Publisher: broker, Recorder: m})

	opts.Broker = broker
	opts.Metrics = m
	opts.Gatherer = reg
	return &testServer{h: NewServer(controller.NewService(b, sessions), opts), broker: broker}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestDocsDarkMode(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, http.MethodGet, "/docs", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, "Flow Shell Topology API") {
		t.Fatalf("docs missing title")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[statusBody](t, w).Status)
}

func TestWindowTabGroupFlow(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/v1/windows", map[string]any{"url": "https://one.test", "space_name": "Home"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	win := decode[types.WindowInfo](t, w)
	assert.Equal(t, 1, win.TabCount)
	require.NotEmpty(t, win.CurrentSpaceID)

	w = s.do(t, http.MethodPost, "/api/v1/tabs", map[string]any{"window_id": int(win.ID), "url": "https://two.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[types.TabInfo](t, w)
	assert.Equal(t, win.CurrentSpaceID, second.SpaceID)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/spaces/%s/tabs", win.CurrentSpaceID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	tabs := decode[struct {
		Tabs []types.TabInfo `json:"tabs"`
	}](t, w).Tabs
	require.Len(t, tabs, 2)
	assert.Equal(t, "https://one.test", tabs[0].URL)

	w = s.do(t, http.MethodPost, "/api/v1/groups", map[string]any{"tab_ids": []int{int(tabs[0].ID), int(tabs[1].ID)}, "name": "Research"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[types.GroupInfo](t, w)
	assert.Equal(t, "Research", group.Name)
	assert.Equal(t, []types.TabID{tabs[0].ID, tabs[1].ID}, group.TabIDs)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/groups/%d/move", group.ID), map[string]any{"from": 0, "to": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []types.TabID{tabs[1].ID, tabs[0].ID}, decode[types.GroupInfo](t, w).TabIDs)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/groups/%d/collapsed", group.ID), map[string]any{"value": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[types.GroupInfo](t, w).Collapsed)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/tabs/%d/pinned", second.ID), map[string]any{"value": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[types.TabInfo](t, w).Pinned)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/windows/%d", win.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/groups/%d", group.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatusCodes(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/v1/tabs/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/windows", map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	win := decode[types.WindowInfo](t, w)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/spaces/%s/name", win.CurrentSpaceID), map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tabs", map[string]any{"window_id": int(win.ID)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tab := decode[types.TabInfo](t, w)
	w = s.do(t, http.MethodPost, "/api/v1/groups", map[string]any{"tab_ids": []int{int(tab.ID)}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[types.GroupInfo](t, w)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/groups/%d/move", group.ID), map[string]any{"from": 0, "to": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/layout", map[string]any{"windows": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.Errorf(types.CodeValidation, "bad"), http.StatusBadRequest},
		{types.Errorf(types.CodeInvalidIndex, "bad"), http.StatusBadRequest},
		{types.Errorf(types.CodeOwnershipMismatch, "bad"), http.StatusBadRequest},
		{types.Errorf(types.CodeNotFound, "gone"), http.StatusNotFound},
		{types.Errorf(types.CodeEntityDestroyed, "gone"), http.StatusConflict},
		{types.Errorf(types.CodePersistence, "disk"), http.StatusServiceUnavailable},
		{types.Errorf(types.CodeEngineUnavailable, "engine"), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", types.Errorf(types.CodeNotFound, "gone")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		require.True(t, errors.As(mapErr(tt.err), &se), tt.err.Error())
		assert.Equal(t, tt.want, se.GetStatus(), tt.err.Error())
	}
	assert.NoError(t, mapErr(nil))
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/v1/windows", map[string]any{"url": "https://keep.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"name": "Work"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[session.Summary](t, w)
	assert.Equal(t, "Work", saved.Name)
	assert.Equal(t, 1, saved.Windows)
	assert.Equal(t, 1, saved.Tabs)

	w = s.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Sessions []session.Summary `json:"sessions"`
	}](t, w).Sessions
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)

	w = s.do(t, http.MethodPut, "/api/v1/sessions/"+saved.ID+"/name", map[string]any{"name": "Focus"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Focus", decode[session.Summary](t, w).Name)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+saved.ID+"/restore?close_existing=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[session.RestoreResult](t, w)
	assert.Equal(t, session.RestoreDone, res.State)

	w = s.do(t, http.MethodGet, "/api/v1/windows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	windows := decode[struct {
		Windows []types.WindowInfo `json:"windows"`
	}](t, w).Windows
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].TabCount)

	w = s.do(t, http.MethodGet, "/api/v1/sessions-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[controller.SessionStatus](t, w)
	assert.Equal(t, 1, status.Stats.Saves)
	assert.Equal(t, 1, status.Stats.Restores)

	w = s.do(t, http.MethodDelete, "/api/v1/sessions/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAndMetrics(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/v1/windows", map[string]any{"url": "https://a.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[statsBody](t, w)
	assert.Equal(t, 1, stats.Windows)
	assert.Equal(t, 1, stats.Spaces)
	assert.Equal(t, 1, stats.Tabs)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "flowshell_windows 1")
	assert.Contains(t, body, "flowshell_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	}
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
