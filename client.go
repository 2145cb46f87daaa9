// Package pennant keeps the server-computed feature flag evaluations of one
// target synchronized in memory, over server-sent events or polling, and
// notifies listeners whenever they change.
package pennant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/analytics"
	"github.com/OrlandoBitencourt/pennant/internal/network"
	"github.com/OrlandoBitencourt/pennant/internal/storage"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
	"github.com/OrlandoBitencourt/pennant/internal/telemetry"
)

// Client is the main entry point for Pennant.
// It serves cached evaluations and keeps them synchronized in the background.
type Client struct {
	syncer  *syncer.Syncer
	config  Config
	loggers ldlog.Loggers

	network   *network.Manual
	prober    *network.Prober
	summary   *analytics.Summary
	telemetry telemetry.Provider
	cache     interface{ Metrics() storage.Metrics }

	closeOnce sync.Once
}

// New creates a new Pennant client with the given options.
//
// Example:
//
//	client, err := pennant.New(
//	    pennant.WithAPIKey("sdk-key"),
//	    pennant.WithPollInterval(30 * time.Second),
//	    pennant.WithDiskCache("/var/cache/pennant"),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.config.Validate(); err != nil {
		return nil, err
	}

	loggers := cfg.loggers
	if !cfg.hasLoggers {
		loggers = ldlog.NewDefaultLoggers()
	}

	c := &Client{
		config:    cfg.config,
		loggers:   loggers,
		telemetry: cfg.telemetry,
	}
	if c.telemetry == nil {
		c.telemetry = telemetry.NewNoOp()
	}

	var evaluations storage.Cache
	if dir := cfg.config.Cache.Dir; dir != "" {
		disk, err := storage.NewDiskCache(dir, loggers)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk cache: %w", err)
		}
		evaluations, c.cache = disk, disk
	} else {
		mem := storage.NewMemoryCache()
		evaluations, c.cache = mem, mem
	}

	switch {
	case cfg.network != nil:
		c.network = cfg.network
	case cfg.config.Sync.NetworkProbeInterval > 0:
		prober, err := network.NewProber(cfg.config.Remote.BaseURL, cfg.config.Sync.NetworkProbeInterval, loggers)
		if err != nil {
			return nil, fmt.Errorf("failed to create network prober: %w", err)
		}
		c.prober = prober
		c.network = prober.Manual
	default:
		c.network = network.NewManual(true)
	}

	var queue analytics.Queue
	if cfg.config.Analytics.Enabled {
		c.summary = analytics.NewSummary(cfg.config.Analytics.Capacity, loggers)
		queue = c.summary
	}

	sources := cfg.sources
	if sources == nil {
		sources = syncer.HTTPSources(loggers)
	}
	transports := cfg.transports
	if transports == nil {
		transports = syncer.SSETransports(cfg.httpClient, loggers)
	}

	s, err := syncer.New(syncer.Options{
		Loggers:          loggers,
		Cache:            evaluations,
		Network:          c.network,
		Sources:          sources,
		Transports:       transports,
		Analytics:        queue,
		Telemetry:        c.telemetry,
		FeatureCacheSize: cfg.config.Cache.FeatureConfigSize,
	})
	if err != nil {
		if c.summary != nil {
			c.summary.Close()
		}
		return nil, err
	}
	c.syncer = s

	if c.prober != nil {
		c.prober.Start()
	}
	return c, nil
}

// Initialize starts a session for target in the background and reports the
// authentication outcome to callback exactly once. A nil cfg uses the
// configuration the client was created with.
//
// Invalid arguments are returned immediately as well as reported to the
// callback. Calling Initialize again tears down the previous session.
func (c *Client) Initialize(target *Target, cfg *Config, callback AuthCallback) error {
	if cfg == nil {
		cfg = &c.config
	}
	session := cfg.session()
	return c.syncer.Initialize(target, &session, callback)
}

// Start initializes a session for target and blocks until it has
// authenticated and loaded its evaluations, or ctx is done.
func (c *Client) Start(ctx context.Context, target Target) (AuthInfo, error) {
	type outcome struct {
		info   *AuthInfo
		result AuthResult
	}
	done := make(chan outcome, 1)

	err := c.Initialize(&target, nil, func(info *AuthInfo, result AuthResult) {
		done <- outcome{info: info, result: result}
	})
	if err != nil {
		return AuthInfo{}, err
	}

	select {
	case o := <-done:
		if !o.result.Success {
			return AuthInfo{}, o.result.Err
		}
		return *o.info, nil
	case <-ctx.Done():
		return AuthInfo{}, ctx.Err()
	}
}

// BoolVariation returns the evaluation of flag as a bool, or defaultValue.
//
// Example:
//
//	if client.BoolVariation("new-checkout", false) {
//	    // ...
//	}
func (c *Client) BoolVariation(flag string, defaultValue bool) bool {
	return c.syncer.BoolVariation(flag, defaultValue)
}

// StringVariation returns the evaluation of flag as a string, or defaultValue.
func (c *Client) StringVariation(flag string, defaultValue string) string {
	return c.syncer.StringVariation(flag, defaultValue)
}

// NumberVariation returns the evaluation of flag as a number, or defaultValue.
func (c *Client) NumberVariation(flag string, defaultValue float64) float64 {
	return c.syncer.NumberVariation(flag, defaultValue)
}

// JSONVariation returns the evaluation of flag as a JSON object, or defaultValue.
func (c *Client) JSONVariation(flag string, defaultValue map[string]interface{}) map[string]interface{} {
	return c.syncer.JSONVariation(flag, defaultValue)
}

// Evaluations returns every cached evaluation of the current session.
func (c *Client) Evaluations() []Evaluation {
	return c.syncer.Evaluations()
}

// Refresh resynchronizes all evaluations in the background.
func (c *Client) Refresh() {
	c.syncer.Reschedule()
}

// SetNetworkAvailable reports a connectivity change. Losing the network
// stops polling; regaining it triggers one resynchronization.
func (c *Client) SetNetworkAvailable(available bool) {
	c.network.Set(available)
}

// State returns the lifecycle state of the client.
func (c *Client) State() State {
	return c.syncer.State()
}

// Ready reports whether the current session has authenticated.
func (c *Client) Ready() bool {
	return c.syncer.Ready()
}

// AuthInfo returns the authentication of the current session.
func (c *Client) AuthInfo() (AuthInfo, bool) {
	return c.syncer.AuthInfo()
}

// RegisterEvaluationListener notifies l whenever the evaluation of flag
// changes. It returns false if l is already registered for flag.
func (c *Client) RegisterEvaluationListener(flag string, l EvaluationListener) bool {
	return c.syncer.RegisterEvaluationListener(flag, l)
}

// UnregisterEvaluationListener stops notifying l about flag.
func (c *Client) UnregisterEvaluationListener(flag string, l EvaluationListener) bool {
	return c.syncer.UnregisterEvaluationListener(flag, l)
}

// RegisterEventsListener notifies l of every status event.
func (c *Client) RegisterEventsListener(l EventsListener) bool {
	return c.syncer.RegisterEventsListener(l)
}

// UnregisterEventsListener stops notifying l.
func (c *Client) UnregisterEventsListener(l EventsListener) bool {
	return c.syncer.UnregisterEventsListener(l)
}

// Metrics returns current client metrics.
func (c *Client) Metrics() Metrics {
	cm := c.cache.Metrics()
	m := Metrics{
		State:       c.syncer.State(),
		Ready:       c.syncer.Ready(),
		Evaluations: len(c.syncer.Evaluations()),
		Cache: CacheMetrics{
			Hits:        cm.Hits,
			Misses:      cm.Misses,
			KeysAdded:   cm.KeysAdded,
			KeysDeleted: cm.KeysDeleted,
			WriteErrors: cm.WriteErrors,
			HitRatio:    cm.HitRatio(),
		},
		FeatureConfigHitRatio: c.syncer.FeatureCacheHitRatio(),
	}

	if c.summary != nil {
		counters, dropped := c.summary.Snapshot()
		m.Analytics.Counters = len(counters)
		m.Analytics.Dropped = dropped
		for _, n := range counters {
			m.Analytics.Evaluations += n
		}
	}
	return m
}

// Destroy ends the current session and drops every listener. Cached
// evaluations are kept and Initialize may be called again.
func (c *Client) Destroy() {
	c.syncer.Destroy()
}

// Close gracefully shuts down the client and its background processes.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.prober != nil {
			c.prober.Stop()
		}
		c.syncer.Close()
		if c.summary != nil {
			c.summary.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.telemetry.Shutdown(ctx)
	})
	return err
}
