package pennant

import (
	"time"

	"github.com/OrlandoBitencourt/pennant/internal/syncer"
)

// Config holds all configuration for a Pennant client.
type Config struct {
	// APIKey is the client SDK key of the environment
	APIKey string

	// Remote configuration
	Remote RemoteConfig

	// Sync configuration
	Sync SyncConfig

	// Analytics configuration
	Analytics AnalyticsConfig

	// Circuit breaker configuration
	CircuitBreaker CircuitBreakerConfig

	// Cache configuration
	Cache CacheConfig
}

// RemoteConfig configures the connection to the backend.
type RemoteConfig struct {
	// BaseURL is the root of the client API
	// Example: "https://config.ff.harness.io/api/1.0"
	BaseURL string

	// EventURL is the server-sent events endpoint
	EventURL string

	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxRetries for failed requests
	MaxRetries int
}

// SyncConfig configures how evaluations are kept up to date.
type SyncConfig struct {
	// StreamEnabled selects push updates whenever the network is available
	StreamEnabled bool

	// PollInterval determines how often evaluations are refetched while polling
	PollInterval time.Duration

	// NetworkProbeInterval enables connectivity probing of the backend host.
	// Zero leaves availability to SetNetworkAvailable.
	NetworkProbeInterval time.Duration
}

// AnalyticsConfig configures evaluation analytics.
type AnalyticsConfig struct {
	// Enabled records every served variation
	Enabled bool

	// Capacity is the size of the analytics buffer
	Capacity int
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before opening.
	// Zero disables the breaker.
	Threshold int

	// Timeout is how long to wait before attempting recovery
	Timeout time.Duration
}

// CacheConfig configures evaluation and feature config caching.
type CacheConfig struct {
	// Dir persists evaluations as JSON files. Empty keeps them in memory.
	Dir string

	// FeatureConfigSize bounds the feature config cache
	FeatureConfigSize int64
}

// DefaultConfig returns recommended default configuration.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:    syncer.DefaultBaseURL,
			EventURL:   syncer.DefaultEventURL,
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Sync: SyncConfig{
			StreamEnabled: true,
			PollInterval:  syncer.DefaultPollInterval,
		},
		Analytics: AnalyticsConfig{
			Enabled:  true,
			Capacity: 1024,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Threshold: 5,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			FeatureConfigSize: 10000,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.session().Validate(); err != nil {
		return err
	}
	if c.Sync.NetworkProbeInterval < 0 {
		return &ConfigError{Field: "network_probe_interval", Reason: "must not be negative"}
	}
	if c.Analytics.Capacity < 0 {
		return &ConfigError{Field: "analytics.capacity", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) session() syncer.Config {
	return syncer.Config{
		APIKey:             c.APIKey,
		BaseURL:            c.Remote.BaseURL,
		EventURL:           c.Remote.EventURL,
		StreamEnabled:      c.Sync.StreamEnabled,
		PollInterval:       c.Sync.PollInterval,
		AnalyticsEnabled:   c.Analytics.Enabled,
		RequestTimeout:     c.Remote.Timeout,
		MaxRetries:         c.Remote.MaxRetries,
		CircuitMaxFailures: c.CircuitBreaker.Threshold,
		CircuitTimeout:     c.CircuitBreaker.Timeout,
	}
}
