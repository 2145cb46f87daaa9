package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
)

// mockFlags is a fake Flags backed by a fixed value map
type mockFlags struct {
	values    map[string]interface{}
	state     syncer.State
	refreshes atomic.Int32
	panicOn   string
}

func newMockFlags() *mockFlags {
	return &mockFlags{
		values: map[string]interface{}{
			"dark_mode": true,
			"banner":    "hello",
			"limit":     42.0,
			"layout":    map[string]interface{}{"columns": 3.0},
		},
		state: syncer.StateStreaming,
	}
}

func (m *mockFlags) lookup(flag string) (interface{}, bool) {
	if flag == m.panicOn {
		panic("boom")
	}
	v, ok := m.values[flag]
	return v, ok
}

func (m *mockFlags) BoolVariation(flag string, defaultValue bool) bool {
	if v, ok := m.lookup(flag); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func (m *mockFlags) StringVariation(flag string, defaultValue string) string {
	if v, ok := m.lookup(flag); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultValue
}

func (m *mockFlags) NumberVariation(flag string, defaultValue float64) float64 {
	if v, ok := m.lookup(flag); ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return defaultValue
}

func (m *mockFlags) JSONVariation(flag string, defaultValue map[string]interface{}) map[string]interface{} {
	if v, ok := m.lookup(flag); ok {
		if obj, ok := v.(map[string]interface{}); ok {
			return obj
		}
	}
	return defaultValue
}

func (m *mockFlags) Evaluations() []domain.Evaluation {
	out := make([]domain.Evaluation, 0, len(m.values))
	for flag := range m.values {
		out = append(out, domain.Evaluation{Flag: flag})
	}
	return out
}

func (m *mockFlags) State() syncer.State { return m.state }
func (m *mockFlags) Ready() bool         { return m.state.Ready() }
func (m *mockFlags) Refresh()            { m.refreshes.Add(1) }

func newTestServer(t *testing.T, flags Flags) (*WrapperServer, *ldlogtest.MockLog) {
	t.Helper()
	mockLog := ldlogtest.NewMockLog()
	return NewWrapperServer(flags, Config{Addr: ":0"}, mockLog.Loggers), mockLog
}

func serve(s *WrapperServer, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, newMockFlags())

	w := serve(s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
	assert.NotEmpty(t, response["timestamp"])
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t, newMockFlags())

	w := serve(s, http.MethodGet, "/api/1.0/ping", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pong":true}`, w.Body.String())
}

func TestCheckFlag(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  int
		value interface{}
	}{
		{
			name:  "boolean",
			body:  `{"flag_key":"dark_mode","flag_kind":"boolean"}`,
			code:  http.StatusOK,
			value: true,
		},
		{
			name:  "string",
			body:  `{"flag_key":"banner","flag_kind":"string"}`,
			code:  http.StatusOK,
			value: "hello",
		},
		{
			name:  "int",
			body:  `{"flag_key":"limit","flag_kind":"int"}`,
			code:  http.StatusOK,
			value: 42.0,
		},
		{
			name:  "number",
			body:  `{"flag_key":"limit","flag_kind":"number"}`,
			code:  http.StatusOK,
			value: 42.0,
		},
		{
			name:  "json",
			body:  `{"flag_key":"layout","flag_kind":"json"}`,
			code:  http.StatusOK,
			value: map[string]interface{}{"columns": 3.0},
		},
		{
			name:  "unknown flag gets default",
			body:  `{"flag_key":"missing","flag_kind":"boolean"}`,
			code:  http.StatusOK,
			value: false,
		},
		{
			name: "missing key",
			body: `{"flag_kind":"boolean"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "unknown kind",
			body: `{"flag_key":"dark_mode","flag_kind":"enum"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "malformed body",
			body: `{"flag_key":`,
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, newMockFlags())

			w := serve(s, http.MethodPost, "/api/1.0/check_flag", tt.body)

			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}
			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.value, response["flag_value"])
			assert.NotEmpty(t, response["flag_key"])
		})
	}
}

func TestCheckFlag_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, newMockFlags())

	w := serve(s, http.MethodGet, "/api/1.0/check_flag", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestState(t *testing.T) {
	flags := newMockFlags()
	flags.state = syncer.StatePolling
	s, _ := newTestServer(t, flags)

	w := serve(s, http.MethodGet, "/api/1.0/state", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var response StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "polling", response.State)
	assert.True(t, response.Ready)
	assert.Equal(t, 4, response.Evaluations)
}

func TestRefresh(t *testing.T) {
	flags := newMockFlags()
	s, _ := newTestServer(t, flags)

	w := serve(s, http.MethodPost, "/api/1.0/refresh", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int32(1), flags.refreshes.Load())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, newMockFlags())

	serve(s, http.MethodPost, "/api/1.0/check_flag", `{"flag_key":"dark_mode","flag_kind":"boolean"}`)
	serve(s, http.MethodGet, "/api/1.0/ping", "")

	w := serve(s, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `pennant_wrapper_flag_checks_total{kind="boolean"} 1`)
	assert.Contains(t, body, "pennant_ready 1")
	assert.Contains(t, body, "pennant_evaluations 4")
	assert.Contains(t, body, `pennant_wrapper_requests_total{code="200",method="get"}`)
	assert.Contains(t, body, "pennant_wrapper_request_duration_seconds")
}

func TestMiddleware_RecoversPanics(t *testing.T) {
	flags := newMockFlags()
	flags.panicOn = "explode"
	s, mockLog := newTestServer(t, flags)

	w := serve(s, http.MethodPost, "/api/1.0/check_flag", `{"flag_key":"explode","flag_kind":"boolean"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	mockLog.AssertMessageMatch(t, true, ldlog.Error, "Handler panicked on POST /api/1.0/check_flag")

	// the server keeps serving afterwards
	w = serve(s, http.MethodGet, "/api/1.0/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetFlags(t *testing.T) {
	flags := newMockFlags()
	mockLog := ldlogtest.NewMockLog()
	m := NewMiddleware(flags, prometheus.NewRegistry(), mockLog.Loggers)

	var got Flags
	var ok bool
	handler := m.Chain().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetFlags(r.Context())
	})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil)))

	require.True(t, ok)
	assert.Same(t, flags, got)

	_, ok = GetFlags(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
