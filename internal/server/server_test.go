package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OskarRg/neurohackathon/internal/avatar"
	"github.com/OskarRg/neurohackathon/internal/bus"
	"github.com/OskarRg/neurohackathon/internal/logging"
	"github.com/OskarRg/neurohackathon/internal/mentor"
	"github.com/OskarRg/neurohackathon/internal/store"
	"github.com/OskarRg/neurohackathon/internal/trigger"
)

type fakeController struct {
	mu       sync.Mutex
	view     trigger.View
	chatErr  error
	nudgeErr error
	messages []string
}

func (f *fakeController) Snapshot() trigger.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeController) SubmitUserMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return f.chatErr
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeController) RequestNudge(context.Context) error {
	return f.nudgeErr
}

type fixedCooldown time.Duration

func (c fixedCooldown) CooldownRemaining() time.Duration { return time.Duration(c) }

type fakeJournal struct {
	items []store.Intervention
	err   error
	limit int
}

func (j *fakeJournal) RecentInterventions(_ context.Context, limit int) ([]store.Intervention, error) {
	j.limit = limit
	return j.items, j.err
}

type fakeLogs struct {
	limit int
}

func (f *fakeLogs) GetHistory(limit int) []logging.LogEntry {
	f.limit = limit
	return []logging.LogEntry{{Level: "warn", Component: "eeg-service", Message: "Acquisition failed"}}
}

type checkFunc func(context.Context) error

func (f checkFunc) Health(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, deps Deps) (*Server, *fakeController) {
	t.Helper()
	ctrl, ok := deps.Controller.(*fakeController)
	if !ok {
		ctrl = &fakeController{view: trigger.View{Ratio: 1.1, Level: 0.37, State: trigger.StateFocus}}
		deps.Controller = ctrl
	}
	return New(DefaultConfig(), deps, zerolog.Nop()), ctrl
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestServer(t, Deps{Avatar: avatar.NewController()})

	rec := do(t, s, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FOCUS", body["state"])
	assert.InDelta(t, 1.1, body["ratio"], 1e-9)
	assert.Contains(t, body, "avatar")
}

func TestChat(t *testing.T) {
	s, ctrl := newTestServer(t, Deps{})

	rec := do(t, s, http.MethodPost, "/api/chat", `{"text":"I feel lost"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"I feel lost"}, ctrl.messages)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/chat", `{"text":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/chat", `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/chat", "").Code)

	ctrl.chatErr = mentor.ErrBusy
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/chat", `{"text":"again"}`).Code)

	ctrl.chatErr = trigger.ErrNotRunning
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/chat", `{"text":"again"}`).Code)
}

func TestNudge(t *testing.T) {
	ctrl := &fakeController{}
	s, _ := newTestServer(t, Deps{Controller: ctrl, Cooldown: fixedCooldown(41500 * time.Millisecond)})

	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/nudge", "").Code)

	ctrl.nudgeErr = mentor.ErrCooldown
	rec := do(t, s, http.MethodPost, "/api/nudge", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	ctrl.nudgeErr = mentor.ErrBusy
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/nudge", "").Code)

	ctrl.nudgeErr = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodPost, "/api/nudge", "").Code)
}

func TestInterventions(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/interventions", "").Code)

	j := &fakeJournal{items: []store.Intervention{{ID: "a", Trigger: "stress", Outcome: store.OutcomeCompleted}}}
	s, _ = newTestServer(t, Deps{Journal: j})

	rec := do(t, s, http.MethodGet, "/api/interventions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, j.limit)
	assert.Contains(t, rec.Body.String(), `"id":"a"`)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/interventions?limit=x", "").Code)

	j.err = errors.New("locked")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/interventions", "").Code)
}

func TestLogs(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/logs", "").Code)

	logs := &fakeLogs{}
	s, _ = newTestServer(t, Deps{Logs: logs})

	rec := do(t, s, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, logs.limit)

	var body struct {
		Logs []logging.LogEntry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "eeg-service", body.Logs[0].Component)

	do(t, s, http.MethodGet, "/api/logs?limit=7", "")
	assert.Equal(t, 7, logs.limit)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/logs?limit=0", "").Code)
}

func TestHealth(t *testing.T) {
	healthy := checkFunc(func(context.Context) error { return nil })
	s, _ := newTestServer(t, Deps{Checks: map[string]HealthChecker{"journal": healthy}, Version: "test"})

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hr HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hr))
	assert.Equal(t, "healthy", hr.Status)
	assert.Equal(t, "test", hr.Version)
	assert.True(t, hr.Services["journal"].Healthy)

	broken := checkFunc(func(context.Context) error { return errors.New("disk gone") })
	s, _ = newTestServer(t, Deps{Checks: map[string]HealthChecker{"journal": broken}})
	rec = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk gone")
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neuroduck_websocket_clients")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_ForwardsBusEvents(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	b := bus.NewEventBus()
	s.Hub().Attach(b)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Contains(t, hello.Data, "snapshot")

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	b.PublishSync(bus.NewEvent(bus.EventTypeStateChanged, map[string]any{"from": "FOCUS", "to": "STOIC"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "state_changed", msg.Type)
	assert.Equal(t, "STOIC", msg.Data["to"])

	b.PublishSync(bus.NewEvent(bus.EventTypeInterventionDone, map[string]any{"id": "x"}))
	assert.Equal(t, "intervention_done", readMessage(t, conn).Type)
}

func TestHub_StreamsLogLines(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	s.Hub().Log(logging.LogEntry{Level: "info", Component: "mentor", Message: "Intervention started"})
	msg := readMessage(t, conn)
	assert.Equal(t, "log", msg.Type)
	entry, ok := msg.Data["entry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Intervention started", entry["message"])
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)
	s.Hub().Close()
	assert.Equal(t, 0, s.Hub().Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_IgnoresUnknownEvents(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.HandleEvent(bus.Event{Type: "something.else"})
	assert.Equal(t, 0, h.Clients())
}
