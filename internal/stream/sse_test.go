package stream

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const testTimeout = 3 * time.Second

func nextEvent(t *testing.T, events <-chan domain.StatusEvent) domain.StatusEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for stream event")
		return domain.StatusEvent{}
	}
}

func nextRequest(t *testing.T, requests <-chan httphelpers.HTTPRequestInfo) httphelpers.HTTPRequestInfo {
	t.Helper()
	select {
	case r := <-requests:
		return r
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for stream request")
		return httphelpers.HTTPRequestInfo{}
	}
}

func streamConfig(server *httptest.Server) Config {
	return Config{URL: server.URL + "/stream", APIKey: "api-key", Token: "token", Cluster: "2"}
}

func TestSSETransport_DeliversFlagEvents(t *testing.T) {
	handler, control := httphelpers.SSEHandler(nil)
	defer control.Close()
	recorder, requests := httphelpers.RecordingHandler(handler)

	httphelpers.WithServer(recorder, func(server *httptest.Server) {
		transport := NewSSETransport(nil, ldlog.NewDisabledLoggers())
		events := make(chan domain.StatusEvent, 10)
		require.NoError(t, transport.Start(streamConfig(server), func(e domain.StatusEvent) { events <- e }))
		defer transport.Stop()

		req := nextRequest(t, requests)
		assert.Equal(t, "Bearer token", req.Request.Header.Get("Authorization"))
		assert.Equal(t, "api-key", req.Request.Header.Get("API-Key"))
		assert.Equal(t, "2", req.Request.URL.Query().Get("cluster"))

		assert.Equal(t, domain.StreamStarted(), nextEvent(t, events))

		control.Enqueue(httphelpers.SSEEvent{Event: "*", Data: `{"event":"patch","domain":"flag","identifier":"flag_a","version":2}`})
		control.Enqueue(httphelpers.SSEEvent{Event: "*", Data: `{"event":"patch","domain":"target-segment","identifier":"beta"}`})
		control.Enqueue(httphelpers.SSEEvent{Event: "*", Data: `{"event":"delete","domain":"flag","identifier":"flag_b","version":3}`})

		assert.Equal(t, domain.EvaluationChanged(domain.Evaluation{Flag: "flag_a"}), nextEvent(t, events))
		assert.Equal(t, domain.EvaluationRemoved(domain.Evaluation{Flag: "flag_b"}), nextEvent(t, events))
	})
}

func TestSSETransport_UnauthorizedEndsStream(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(http.StatusUnauthorized), func(server *httptest.Server) {
		transport := NewSSETransport(nil, ldlog.NewDisabledLoggers())
		events := make(chan domain.StatusEvent, 10)
		require.NoError(t, transport.Start(streamConfig(server), func(e domain.StatusEvent) { events <- e }))
		defer transport.Stop()

		assert.Equal(t, domain.StreamEnded(), nextEvent(t, events))
	})
}

func TestSSETransport_ServerCloseEndsStream(t *testing.T) {
	handler, control := httphelpers.SSEHandler(nil)
	defer control.Close()

	httphelpers.WithServer(handler, func(server *httptest.Server) {
		transport := NewSSETransport(nil, ldlog.NewDisabledLoggers())
		events := make(chan domain.StatusEvent, 10)
		require.NoError(t, transport.Start(streamConfig(server), func(e domain.StatusEvent) { events <- e }))
		defer transport.Stop()

		assert.Equal(t, domain.StreamStarted(), nextEvent(t, events))
		control.EndAll()
		assert.Equal(t, domain.StreamEnded(), nextEvent(t, events))
	})
}

func TestSSETransport_MalformedEventRestartsStream(t *testing.T) {
	handler, control := httphelpers.SSEHandler(nil)
	defer control.Close()
	recorder, requests := httphelpers.RecordingHandler(handler)
	mockLog := ldlogtest.NewMockLog()

	httphelpers.WithServer(recorder, func(server *httptest.Server) {
		transport := NewSSETransport(nil, mockLog.Loggers)
		transport.initialRetry = 10 * time.Millisecond
		events := make(chan domain.StatusEvent, 10)
		require.NoError(t, transport.Start(streamConfig(server), func(e domain.StatusEvent) { events <- e }))
		defer transport.Stop()

		nextRequest(t, requests)
		assert.Equal(t, domain.StreamStarted(), nextEvent(t, events))

		control.Enqueue(httphelpers.SSEEvent{Event: "*", Data: `{not json`})

		nextRequest(t, requests)
		mockLog.AssertMessageMatch(t, true, ldlog.Error, "malformed")
	})
}

func TestSSETransport_StopEmitsNothing(t *testing.T) {
	handler, control := httphelpers.SSEHandler(nil)
	defer control.Close()

	httphelpers.WithServer(handler, func(server *httptest.Server) {
		transport := NewSSETransport(nil, ldlog.NewDisabledLoggers())
		events := make(chan domain.StatusEvent, 10)
		require.NoError(t, transport.Start(streamConfig(server), func(e domain.StatusEvent) { events <- e }))

		assert.Equal(t, domain.StreamStarted(), nextEvent(t, events))
		transport.Stop()
		transport.Stop()

		select {
		case e := <-events:
			t.Fatalf("unexpected event after stop: %v", e.Type)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestSSETransport_InvalidURL(t *testing.T) {
	transport := NewSSETransport(nil, ldlog.NewDisabledLoggers())
	err := transport.Start(Config{URL: "://bad", Token: "t"}, func(domain.StatusEvent) {})
	assert.Error(t, err)
}
