package syncer

import (
	"net/url"
	"time"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const (
	DefaultBaseURL      = "https://config.ff.harness.io/api/1.0"
	DefaultEventURL     = "https://config.ff.harness.io/api/1.0/stream"
	DefaultPollInterval = 60 * time.Second
)

// Config holds the settings of one client session
type Config struct {
	// APIKey authenticates the client
	APIKey string

	// BaseURL is the client API root
	BaseURL string

	// EventURL is the server-sent events endpoint
	EventURL string

	// StreamEnabled selects push updates when the network is available
	StreamEnabled bool

	// PollInterval is the period of full resynchronization while polling
	PollInterval time.Duration

	// AnalyticsEnabled forwards variation reads to the analytics queue
	AnalyticsEnabled bool

	// RequestTimeout bounds every backend request
	RequestTimeout time.Duration

	// MaxRetries is the number of retries for retryable request failures
	MaxRetries int

	// CircuitMaxFailures opens the remote circuit after this many
	// consecutive failures. Zero disables the breaker.
	CircuitMaxFailures int

	// CircuitTimeout is how long the circuit stays open
	CircuitTimeout time.Duration
}

// DefaultConfig returns the default configuration for apiKey
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:             apiKey,
		BaseURL:            DefaultBaseURL,
		EventURL:           DefaultEventURL,
		StreamEnabled:      true,
		PollInterval:       DefaultPollInterval,
		AnalyticsEnabled:   true,
		RequestTimeout:     30 * time.Second,
		MaxRetries:         2,
		CircuitMaxFailures: 5,
		CircuitTimeout:     30 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.APIKey == "" {
		return domain.NewConfigError("api_key", "is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return domain.NewConfigError("base_url", err.Error())
	}
	if c.StreamEnabled {
		if _, err := url.ParseRequestURI(c.EventURL); err != nil {
			return domain.NewConfigError("event_url", err.Error())
		}
	}
	if c.PollInterval <= 0 {
		return domain.NewConfigError("poll_interval", "must be positive")
	}
	if c.RequestTimeout < 0 {
		return domain.NewConfigError("request_timeout", "must not be negative")
	}
	if c.MaxRetries < 0 {
		return domain.NewConfigError("max_retries", "must not be negative")
	}
	if c.CircuitMaxFailures < 0 {
		return domain.NewConfigError("circuit_max_failures", "must not be negative")
	}
	return nil
}
