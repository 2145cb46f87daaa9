package pennant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const testTimeout = 3 * time.Second

// MockBackendServer is a mock client API for testing
type MockBackendServer struct {
	*httptest.Server
	Stream httphelpers.SSEStreamControl

	mu          sync.RWMutex
	token       string
	authStatus  int
	evaluations map[string]Evaluation
	features    []domain.FeatureConfig
	evalFetches int
}

// NewMockBackendServer creates a new mock backend for environment env-1
func NewMockBackendServer(t *testing.T) *MockBackendServer {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"environment":           "env-1",
		"environmentIdentifier": "dev",
		"clusterIdentifier":     "1",
		"accountID":             "acct",
		"organization":          "org",
		"project":               "proj",
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	sse, control := httphelpers.SSEHandler(nil)
	mock := &MockBackendServer{
		Stream:      control,
		token:       signed,
		evaluations: make(map[string]Evaluation),
	}

	mux := http.NewServeMux()

	// POST /client/auth - Authenticate
	mux.HandleFunc("POST /client/auth", func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		status := mock.authStatus
		mock.mu.RUnlock()

		if status != 0 {
			http.Error(w, "unauthorized", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"authToken": mock.token})
	})

	// GET /client/env/{env}/feature-configs - Feature configs
	mux.HandleFunc("GET /client/env/{env}/feature-configs", func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		defer mock.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mock.features)
	})

	// GET /client/env/{env}/target/{target}/evaluations - All evaluations
	mux.HandleFunc("GET /client/env/{env}/target/{target}/evaluations", func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.evalFetches++
		out := make([]Evaluation, 0, len(mock.evaluations))
		for _, e := range mock.evaluations {
			out = append(out, e)
		}
		mock.mu.Unlock()

		sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	// GET /client/env/{env}/target/{target}/evaluations/{flag} - One evaluation
	mux.HandleFunc("GET /client/env/{env}/target/{target}/evaluations/{flag}", func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		defer mock.mu.RUnlock()

		e, ok := mock.evaluations[r.PathValue("flag")]
		if !ok {
			http.Error(w, "evaluation not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e)
	})

	// GET /stream - Server-sent events
	mux.Handle("GET /stream", sse)

	mock.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		control.Close()
		mock.Server.Close()
	})
	return mock
}

// SetEvaluation adds or replaces an evaluation
func (m *MockBackendServer) SetEvaluation(e Evaluation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.Flag] = e
}

// SetFeatureConfigs replaces the feature configs
func (m *MockBackendServer) SetFeatureConfigs(configs []domain.FeatureConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = configs
}

// RejectAuth makes authentication fail with status
func (m *MockBackendServer) RejectAuth(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authStatus = status
}

// EvaluationFetches returns the number of full evaluation fetches
func (m *MockBackendServer) EvaluationFetches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evalFetches
}

// PushFlagEvent sends a flag event over the stream
func (m *MockBackendServer) PushFlagEvent(event, flag string) {
	data, _ := json.Marshal(map[string]interface{}{
		"event":      event,
		"domain":     "flag",
		"identifier": flag,
		"version":    1,
	})
	m.Stream.Enqueue(httphelpers.SSEEvent{Event: "*", Data: string(data)})
}

// testClient creates a client against server
func testClient(t *testing.T, server *MockBackendServer, opts ...Option) *Client {
	base := []Option{
		WithAPIKey("api-key"),
		WithBaseURL(server.URL),
		WithEventURL(server.URL + "/stream"),
		WithMaxRetries(0),
		WithLoggers(ldlog.NewDisabledLoggers()),
	}
	client, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// eventCollector gathers status events on a channel
type eventCollector struct {
	events chan StatusEvent
}

func newEventCollector() *eventCollector {
	return &eventCollector{events: make(chan StatusEvent, 100)}
}

func (c *eventCollector) OnEventReceived(event StatusEvent) {
	c.events <- event
}

// next returns the next event of type typ, skipping others
func (c *eventCollector) next(t *testing.T, typ EventType) StatusEvent {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case e := <-c.events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
			return StatusEvent{}
		}
	}
}
