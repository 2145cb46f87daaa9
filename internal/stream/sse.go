package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	es "github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const (
	streamReadTimeout   = 5 * time.Minute
	defaultInitialRetry = time.Second

	domainFlag    = "flag"
	domainSegment = "target-segment"

	eventCreate = "create"
	eventPatch  = "patch"
	eventDelete = "delete"
)

// Message is the payload of a push event
type Message struct {
	Event      string `json:"event"`
	Domain     string `json:"domain"`
	Identifier string `json:"identifier"`
	Version    int64  `json:"version"`
}

// SSETransport is a Transport over server-sent events. Any stream error
// ends the connection; reconnecting is left to the next Start.
type SSETransport struct {
	client       *http.Client
	loggers      ldlog.Loggers
	initialRetry time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	halt   chan struct{}
	done   chan struct{}
}

// NewSSETransport creates a transport using client, which must not have a
// response timeout
func NewSSETransport(client *http.Client, loggers ldlog.Loggers) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	loggers.SetPrefix("[pennant.sse]")
	return &SSETransport{
		client:       client,
		loggers:      loggers,
		initialRetry: defaultInitialRetry,
	}
}

// Start opens the stream in the background
func (t *SSETransport) Start(cfg Config, sink Sink) error {
	t.Stop()

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	q := endpoint.Query()
	q.Set("cluster", cfg.Cluster)
	endpoint.RawQuery = q.Encode()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Token)
	req.Header.Set("API-Key", cfg.APIKey)

	halt := make(chan struct{})
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel, t.halt, t.done = cancel, halt, done
	t.mu.Unlock()

	go t.run(req, sink, halt, done)
	return nil
}

// Stop closes the stream and waits for its goroutine to exit
func (t *SSETransport) Stop() {
	t.mu.Lock()
	cancel, halt, done := t.cancel, t.halt, t.done
	t.cancel, t.halt, t.done = nil, nil, nil
	t.mu.Unlock()

	if halt == nil {
		return
	}
	close(halt)
	cancel()
	<-done
}

func (t *SSETransport) run(req *http.Request, sink Sink, halt <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ended := make(chan struct{})
	var endOnce sync.Once
	end := func() { endOnce.Do(func() { close(ended) }) }

	halted := func() bool {
		select {
		case <-halt:
			return true
		default:
			return false
		}
	}

	errorHandler := func(err error) es.StreamErrorHandlerResult {
		var se es.SubscriptionError
		if errors.As(err, &se) {
			t.loggers.Warnf("Stream request failed with HTTP %d", se.Code)
		} else if !halted() {
			t.loggers.Warnf("Stream error: %v", err)
		}
		end()
		return es.StreamErrorHandlerResult{CloseNow: true}
	}

	t.loggers.Infof("Connecting to %s", req.URL.Redacted())
	stream, err := es.SubscribeWithRequestAndOptions(req,
		es.StreamOptionHTTPClient(t.client),
		es.StreamOptionReadTimeout(streamReadTimeout),
		es.StreamOptionInitialRetry(t.initialRetry),
		es.StreamOptionErrorHandler(errorHandler),
		es.StreamOptionLogger(t.loggers.ForLevel(ldlog.Info)),
	)
	if err != nil {
		if !halted() {
			t.loggers.Errorf("Failed to open stream: %v", err)
			sink(domain.StreamEnded())
		}
		return
	}

	sink(domain.StreamStarted())
	t.consume(stream, sink, halt, ended)

	if !halted() {
		sink(domain.StreamEnded())
	}
}

func (t *SSETransport) consume(stream *es.Stream, sink Sink, halt <-chan struct{}, ended <-chan struct{}) {
	defer func() {
		stream.Close()
		go func() {
			for range stream.Events {
			}
		}()
	}()

	for {
		select {
		case event, ok := <-stream.Events:
			if !ok {
				return
			}
			if t.loggers.IsDebugEnabled() {
				t.loggers.Debugf("Received %q event: %s", event.Event(), event.Data())
			}
			if !t.dispatch(event, sink) {
				stream.Restart()
			}
		case <-ended:
			return
		case <-halt:
			return
		}
	}
}

// dispatch translates one push event. It returns false for malformed
// payloads.
func (t *SSETransport) dispatch(event es.Event, sink Sink) bool {
	var msg Message
	if err := json.Unmarshal([]byte(event.Data()), &msg); err != nil {
		t.loggers.Errorf("Received malformed %q event: %v", event.Event(), err)
		return false
	}

	switch msg.Domain {
	case domainFlag:
		if msg.Identifier == "" {
			t.loggers.Errorf("Received %q event without an identifier", event.Event())
			return false
		}
		e := domain.Evaluation{Flag: msg.Identifier}
		switch msg.Event {
		case eventCreate, eventPatch:
			sink(domain.EvaluationChanged(e))
		case eventDelete:
			sink(domain.EvaluationRemoved(e))
		default:
			t.loggers.Warnf("Ignoring unknown flag event %q", msg.Event)
		}
	case domainSegment:
		t.loggers.Debugf("Ignoring segment event for %s", msg.Identifier)
	default:
		t.loggers.Debugf("Ignoring event for unknown domain %q", msg.Domain)
	}
	return true
}
