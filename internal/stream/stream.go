package stream

import (
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Sink receives transport events
type Sink func(event domain.StatusEvent)

// Config describes one push connection
type Config struct {
	URL         string
	APIKey      string
	Token       string
	Environment string
	Cluster     string
}

// Validate checks the fields a connection cannot be opened without
func (c Config) Validate() error {
	if c.URL == "" {
		return domain.NewConfigError("stream.url", "is required")
	}
	if c.Token == "" {
		return domain.NewConfigError("stream.token", "is required")
	}
	return nil
}

// Transport is a server push connection. Start delivers stream-started,
// stream-ended, evaluation-changed and evaluation-removed events to sink
// until Stop is called. Stop does not emit stream-ended.
type Transport interface {
	Start(cfg Config, sink Sink) error
	Stop()
}

// Controller owns the single active push connection of a session
type Controller struct {
	transport Transport
	loggers   ldlog.Loggers

	mu      sync.Mutex
	running bool
}

// NewController creates a stopped controller over transport
func NewController(transport Transport, loggers ldlog.Loggers) *Controller {
	loggers.SetPrefix("[pennant.stream]")
	return &Controller{transport: transport, loggers: loggers}
}

// Start stops any active connection and opens a new one forwarding every
// event to listener
func (c *Controller) Start(cfg Config, listener Sink) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.transport.Stop()
		c.running = false
	}
	if err := c.transport.Start(cfg, listener); err != nil {
		return err
	}
	c.running = true
	c.loggers.Info("Stream started")
	return nil
}

// Stop closes the active connection, if any
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.transport.Stop()
	c.running = false
	c.loggers.Info("Stream stopped")
}

// Running reports whether a connection has been started and not stopped
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
