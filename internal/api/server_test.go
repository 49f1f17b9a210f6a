package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/scheduler"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Start(trigger string) error {
	args := m.Called(trigger)
	return args.Error(0)
}

func (m *MockRunner) Last() (scheduler.Result, bool) {
	args := m.Called()
	return args.Get(0).(scheduler.Result), args.Bool(1)
}

func (m *MockRunner) Running() bool {
	args := m.Called()
	return args.Bool(0)
}

func serve(t *testing.T, s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_StartCycle_Accepted(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Start", scheduler.TriggerAPI).Return(nil).Once()
	s := NewServer(runner, Config{}, zap.NewNop())

	rec := serve(t, s, http.MethodPost, "/v1/cycles", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "started")
	runner.AssertExpectations(t)
}

func TestServer_StartCycle_ConflictWhenRunning(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Start", scheduler.TriggerAPI).Return(scheduler.ErrCycleInProgress).Once()
	s := NewServer(runner, Config{}, zap.NewNop())

	rec := serve(t, s, http.MethodPost, "/v1/cycles", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already in progress")
}

func TestServer_StartCycle_RunnerClosed(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Start", scheduler.TriggerAPI).Return(context.Canceled).Once()
	s := NewServer(runner, Config{}, zap.NewNop())

	rec := serve(t, s, http.MethodPost, "/v1/cycles", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_LastCycle(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Last").Return(scheduler.Result{
		Trigger: scheduler.TriggerSchedule,
		Summary: crawler.Summary{CycleID: "cycle-1", RecordsExtracted: 8, RecordsPersisted: 8},
	}, true).Once()
	s := NewServer(runner, Config{}, zap.NewNop())

	rec := serve(t, s, http.MethodGet, "/v1/cycles/last", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got scheduler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "cycle-1", got.Summary.CycleID)
	require.Equal(t, 8, got.Summary.RecordsPersisted)
	require.Equal(t, scheduler.TriggerSchedule, got.Trigger)
}

func TestServer_LastCycle_NotFound(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Last").Return(scheduler.Result{}, false).Once()
	s := NewServer(runner, Config{}, zap.NewNop())

	rec := serve(t, s, http.MethodGet, "/v1/cycles/last", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Running").Return(true)
	s := NewServer(runner, Config{}, nil)

	rec := serve(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","cycle_running":true}`, rec.Body.String())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(new(MockRunner), Config{}, zap.NewNop())
	serve(t, s, http.MethodGet, "/healthz", nil)

	rec := serve(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	runner := new(MockRunner)
	runner.On("Start", scheduler.TriggerAPI).Return(nil).Once()
	s := NewServer(runner, Config{APIKey: "secret"}, zap.NewNop())

	rec := serve(t, s, http.MethodPost, "/v1/cycles", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/cycles", map[string]string{"X-API-Key": "wrong"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/cycles", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	h := timeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "request timed out")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, rec.Header().Get("X-Request-ID"), seen)
	require.Empty(t, RequestID(context.Background()))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
