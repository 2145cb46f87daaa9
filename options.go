package pennant

import (
	"fmt"
	"net/http"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/network"
	"github.com/OrlandoBitencourt/pennant/internal/remote"
	"github.com/OrlandoBitencourt/pennant/internal/stream"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
	"github.com/OrlandoBitencourt/pennant/internal/telemetry"
)

// Option configures a Pennant client.
type Option func(*clientConfig) error

// clientConfig holds internal configuration.
type clientConfig struct {
	config Config

	loggers    ldlog.Loggers
	hasLoggers bool
	telemetry  telemetry.Provider
	httpClient *http.Client

	// Test hooks
	sources    syncer.SourceFactory
	transports syncer.TransportFactory
	network    *network.Manual
}

func newClientConfig() *clientConfig {
	return &clientConfig{config: DefaultConfig()}
}

// WithConfig applies a full Config struct.
// This is an alternative to using individual options.
func WithConfig(cfg Config) Option {
	return func(c *clientConfig) error {
		c.config = cfg
		return nil
	}
}

// WithAPIKey sets the client SDK key.
// This is required.
func WithAPIKey(apiKey string) Option {
	return func(c *clientConfig) error {
		if apiKey == "" {
			return fmt.Errorf("api key cannot be empty")
		}
		c.config.APIKey = apiKey
		return nil
	}
}

// WithBaseURL sets the client API root.
//
// Example: pennant.WithBaseURL("http://localhost:7000/api/1.0")
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) error {
		if baseURL == "" {
			return fmt.Errorf("base url cannot be empty")
		}
		c.config.Remote.BaseURL = baseURL
		return nil
	}
}

// WithEventURL sets the server-sent events endpoint.
func WithEventURL(eventURL string) Option {
	return func(c *clientConfig) error {
		if eventURL == "" {
			return fmt.Errorf("event url cannot be empty")
		}
		c.config.Remote.EventURL = eventURL
		return nil
	}
}

// WithStreaming enables or disables push updates.
// Default: enabled
func WithStreaming(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.Sync.StreamEnabled = enabled
		return nil
	}
}

// WithPollInterval sets how often evaluations are refetched while polling.
// Default: 60 seconds
//
// Example: pennant.WithPollInterval(30 * time.Second)
func WithPollInterval(interval time.Duration) Option {
	return func(c *clientConfig) error {
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive")
		}
		c.config.Sync.PollInterval = interval
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout for backend requests.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.Remote.Timeout = timeout
		return nil
	}
}

// WithMaxRetries sets the maximum number of retries for failed requests.
func WithMaxRetries(maxRetries int) Option {
	return func(c *clientConfig) error {
		c.config.Remote.MaxRetries = maxRetries
		return nil
	}
}

// WithCircuitBreaker configures the circuit breaker.
//
// Example: pennant.WithCircuitBreaker(3, 30*time.Second)
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.CircuitBreaker.Threshold = threshold
		c.config.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithAnalytics enables or disables evaluation analytics.
func WithAnalytics(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.Analytics.Enabled = enabled
		return nil
	}
}

// WithDiskCache persists evaluations under dir so they survive restarts.
func WithDiskCache(dir string) Option {
	return func(c *clientConfig) error {
		if dir == "" {
			return fmt.Errorf("disk cache directory cannot be empty")
		}
		c.config.Cache.Dir = dir
		return nil
	}
}

// WithNetworkProbe checks connectivity to the backend host every interval.
func WithNetworkProbe(interval time.Duration) Option {
	return func(c *clientConfig) error {
		if interval <= 0 {
			return fmt.Errorf("network probe interval must be positive")
		}
		c.config.Sync.NetworkProbeInterval = interval
		return nil
	}
}

// WithLoggers sets the loggers used by every component.
func WithLoggers(loggers ldlog.Loggers) Option {
	return func(c *clientConfig) error {
		c.loggers = loggers
		c.hasLoggers = true
		return nil
	}
}

// WithOpenTelemetry records traces and metrics through the global
// OpenTelemetry providers.
func WithOpenTelemetry() Option {
	return func(c *clientConfig) error {
		provider, err := telemetry.NewOTel()
		if err != nil {
			return fmt.Errorf("failed to create telemetry provider: %w", err)
		}
		c.telemetry = provider
		return nil
	}
}

// WithHTTPClient sets the HTTP client of the event stream. It must not
// set a response timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) error {
		c.httpClient = client
		return nil
	}
}

func withSource(source remote.Source) Option {
	return func(c *clientConfig) error {
		c.sources = func(syncer.Config, Target) remote.Source { return source }
		return nil
	}
}

func withTransport(transport stream.Transport) Option {
	return func(c *clientConfig) error {
		c.transports = func(syncer.Config) stream.Transport { return transport }
		return nil
	}
}

func withNetwork(provider *network.Manual) Option {
	return func(c *clientConfig) error {
		c.network = provider
		return nil
	}
}
