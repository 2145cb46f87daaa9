package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/analytics"
	"github.com/OrlandoBitencourt/pennant/internal/circuit"
	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/executor"
	"github.com/OrlandoBitencourt/pennant/internal/listeners"
	"github.com/OrlandoBitencourt/pennant/internal/network"
	"github.com/OrlandoBitencourt/pennant/internal/poll"
	"github.com/OrlandoBitencourt/pennant/internal/remote"
	"github.com/OrlandoBitencourt/pennant/internal/repository"
	"github.com/OrlandoBitencourt/pennant/internal/storage"
	"github.com/OrlandoBitencourt/pennant/internal/stream"
	"github.com/OrlandoBitencourt/pennant/internal/telemetry"
)

// AuthResult is the outcome of one Initialize call
type AuthResult struct {
	Success bool
	Err     error
}

// AuthCallback is invoked exactly once per Initialize call. info is nil
// unless the result is successful.
type AuthCallback func(info *domain.AuthInfo, result AuthResult)

// SourceFactory builds the remote source of a session
type SourceFactory func(cfg Config, target domain.Target) remote.Source

// TransportFactory builds the push transport of a session
type TransportFactory func(cfg Config) stream.Transport

// Options carries the collaborators of a Syncer. Nil fields get defaults.
type Options struct {
	Loggers          ldlog.Loggers
	Cache            storage.Cache
	Network          network.Provider
	Sources          SourceFactory
	Transports       TransportFactory
	Analytics        analytics.Queue
	Telemetry        telemetry.Provider
	FeatureCacheSize int64
}

// HTTPSources builds sources talking to the client API over HTTP, each
// guarded by its own circuit breaker when one is configured
func HTTPSources(loggers ldlog.Loggers) SourceFactory {
	return func(cfg Config, target domain.Target) remote.Source {
		var breaker *circuit.Breaker
		if cfg.CircuitMaxFailures > 0 {
			bc := circuit.DefaultConfig()
			bc.MaxFailures = cfg.CircuitMaxFailures
			if cfg.CircuitTimeout > 0 {
				bc.Timeout = cfg.CircuitTimeout
			}
			bc.IsFailure = remote.IsBreakerFailure
			breaker = circuit.New(bc, loggers)
		}

		return remote.NewHTTPSource(remote.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Target:     target,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
		}, breaker, loggers)
	}
}

// SSETransports builds server-sent event transports sharing client
func SSETransports(client *http.Client, loggers ldlog.Loggers) TransportFactory {
	return func(Config) stream.Transport {
		return stream.NewSSETransport(client, loggers)
	}
}

// Syncer keeps the evaluations of one target synchronized with the
// backend and notifies listeners of every change.
//
// Authentication, resynchronization and push event reconciliation run on
// one serial executor; listener callbacks run on another, so a listener
// may call back into the Syncer.
type Syncer struct {
	loggers    ldlog.Loggers
	cache      storage.Cache
	network    network.Provider
	sources    SourceFactory
	transports TransportFactory
	analytics  analytics.Queue
	telemetry  telemetry.Provider

	registry *listeners.Registry
	features *storage.FeatureCache
	work     *executor.Serial
	dispatch *executor.Serial

	// mu orders session swaps against generation bumps
	mu      sync.Mutex
	gen     atomic.Uint64
	current atomic.Pointer[session]

	state  atomic.Int32
	online atomic.Bool
	closed atomic.Bool
}

// New creates an uninitialized Syncer
func New(opts Options) (*Syncer, error) {
	loggers := opts.Loggers
	loggers.SetPrefix("[pennant.syncer]")

	if opts.Cache == nil {
		opts.Cache = storage.NewMemoryCache()
	}
	if opts.Network == nil {
		opts.Network = network.NewManual(true)
	}
	if opts.Sources == nil {
		opts.Sources = HTTPSources(opts.Loggers)
	}
	if opts.Transports == nil {
		opts.Transports = SSETransports(nil, opts.Loggers)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNoOp()
	}
	if opts.FeatureCacheSize <= 0 {
		opts.FeatureCacheSize = storage.DefaultFeatureCacheSize
	}

	features, err := storage.NewFeatureCache(opts.FeatureCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature cache: %w", err)
	}

	return &Syncer{
		loggers:    loggers,
		cache:      opts.Cache,
		network:    opts.Network,
		sources:    opts.Sources,
		transports: opts.Transports,
		analytics:  opts.Analytics,
		telemetry:  opts.Telemetry,
		registry:   listeners.NewRegistry(opts.Loggers),
		features:   features,
		work:       executor.NewSerial("sync", opts.Loggers),
		dispatch:   executor.NewSerial("dispatch", opts.Loggers),
	}, nil
}

// Initialize starts a new session for target. Validation and submission
// failures are returned and also reported to callback; otherwise callback
// receives the authentication outcome once the background work finishes.
// A newer Initialize or a Destroy supersedes any session still
// authenticating.
func (s *Syncer) Initialize(target *domain.Target, cfg *Config, callback AuthCallback) error {
	if err := s.validate(target, cfg); err != nil {
		report(callback, nil, err)
		return err
	}

	t, c := *target, *cfg
	gen := s.gen.Add(1)

	err := s.work.Submit(func() {
		s.initialize(gen, t, c, callback)
	})
	if err != nil {
		report(callback, nil, err)
		return err
	}
	return nil
}

func (s *Syncer) validate(target *domain.Target, cfg *Config) error {
	if s.closed.Load() {
		return domain.ErrClientClosed
	}
	if target == nil {
		return domain.NewConfigError("target", "is required")
	}
	if !target.Valid() {
		return domain.NewConfigError("target.identifier", "is required")
	}
	if cfg == nil {
		return domain.NewConfigError("config", "is required")
	}
	return cfg.Validate()
}

func report(callback AuthCallback, info *domain.AuthInfo, err error) {
	if callback == nil {
		return
	}
	if err != nil {
		callback(nil, AuthResult{Err: err})
		return
	}
	callback(info, AuthResult{Success: true})
}

func (s *Syncer) initialize(gen uint64, target domain.Target, cfg Config, callback AuthCallback) {
	ctx, span := s.telemetry.StartSpan(context.Background(), "pennant.initialize",
		telemetry.String("target", target.Identifier))
	defer span.End()

	sess := s.newSession(gen, target, cfg)

	s.mu.Lock()
	if s.gen.Load() != gen {
		s.mu.Unlock()
		sess.source.Close()
		report(callback, nil, domain.ErrSessionSuperseded)
		return
	}
	prev := s.current.Swap(sess)
	s.setState(ctx, StateAuthenticating)
	s.mu.Unlock()

	if prev != nil {
		prev.close(true)
	}

	// register before sampling so a transition in between is not lost
	s.network.UnregisterAll()
	s.network.OnChange(s.onNetworkChange)
	s.online.Store(s.network.IsAvailable())

	info, err := sess.source.Authenticate(ctx)
	if !s.isCurrent(sess) {
		report(callback, nil, domain.ErrSessionSuperseded)
		return
	}
	if err != nil {
		span.RecordError(err)
		s.loggers.Errorf("Authentication failed: %v", err)
		s.setState(ctx, StateUninitialized)
		report(callback, nil, err)
		return
	}

	sess.auth.Store(&info)
	sess.ready.Store(true)
	s.loggers.Infof("Authenticated in environment %s", info.EnvironmentIdentifier)

	if err := s.resync(ctx, sess); err != nil {
		report(callback, nil, err)
		return
	}
	s.enterMode(ctx, sess)

	report(callback, &info, nil)
}

func (s *Syncer) newSession(gen uint64, target domain.Target, cfg Config) *session {
	source := s.sources(cfg, target)
	return &session{
		gen:    gen,
		target: target,
		cfg:    cfg,
		source: source,
		repo:   repository.New(source, s.cache, s.network, s.telemetry, s.loggers),
		poller: poll.NewScheduler(cfg.PollInterval, s.loggers),
		stream: stream.NewController(s.transports(cfg), s.loggers),
	}
}

func (s *Syncer) isCurrent(sess *session) bool {
	return s.current.Load() == sess && s.gen.Load() == sess.gen
}

// resync refreshes the feature configs, reads the full evaluation set and
// broadcasts it as a reload
func (s *Syncer) resync(ctx context.Context, sess *session) error {
	start := time.Now()
	scope, ok := sess.scope()
	if !ok {
		return errors.New("session is not authenticated")
	}

	s.loadFeatureConfigs(ctx, sess, scope)
	evaluations := sess.repo.GetAllEvaluations(ctx, scope)
	if !s.isCurrent(sess) {
		return domain.ErrSessionSuperseded
	}

	s.broadcast(domain.EvaluationReload(evaluations))
	s.telemetry.RecordResync(ctx, true, time.Since(start), len(evaluations))
	return nil
}

func (s *Syncer) loadFeatureConfigs(ctx context.Context, sess *session, scope domain.Scope) {
	if !s.network.IsAvailable() {
		return
	}

	configs, err := sess.source.FetchFeatureConfigs(ctx, scope.Environment, scope.Cluster)
	if err != nil {
		s.loggers.Warnf("Failed to fetch feature configs: %v", err)
		return
	}
	s.features.Clear()
	s.features.PutAll(scope.Environment, scope.Cluster, configs)
}

// enterMode opens the push connection when streaming is enabled and the
// network is available, and falls back to polling otherwise
func (s *Syncer) enterMode(ctx context.Context, sess *session) {
	if sess.cfg.StreamEnabled && s.network.IsAvailable() {
		err := s.startStream(sess)
		if err == nil {
			s.setState(ctx, StateStreaming)
			return
		}
		if errors.Is(err, domain.ErrSessionSuperseded) {
			return
		}
		s.loggers.Errorf("Failed to start stream, polling instead: %v", err)
	}

	s.startPolling(ctx, sess)
}

// startPolling arms the poll timer while the network is available. The
// state reflects the selected mode either way.
func (s *Syncer) startPolling(ctx context.Context, sess *session) {
	if s.network.IsAvailable() {
		if !sess.startPolling(s.Reschedule) {
			return
		}
	} else if !s.isCurrent(sess) {
		return
	}
	s.setState(ctx, StatePolling)
}

func (s *Syncer) startStream(sess *session) error {
	auth := sess.auth.Load()
	cfg := stream.Config{
		URL:         sess.cfg.EventURL,
		APIKey:      sess.cfg.APIKey,
		Token:       auth.Token,
		Environment: auth.Environment,
		Cluster:     auth.Cluster,
	}
	return sess.startStreaming(cfg, func(conn uint64, event domain.StatusEvent) {
		s.onStreamEvent(sess, conn, event)
	})
}

// Reschedule resynchronizes the current session, authenticating again
// first when the session is not ready. Safe to call from any goroutine.
func (s *Syncer) Reschedule() {
	sess := s.current.Load()
	if sess == nil {
		return
	}
	if err := s.work.Submit(func() { s.reschedule(sess) }); err != nil {
		s.loggers.Debugf("Reschedule dropped: %v", err)
	}
}

func (s *Syncer) reschedule(sess *session) {
	if !s.isCurrent(sess) {
		return
	}

	ctx, span := s.telemetry.StartSpan(context.Background(), "pennant.reschedule")
	defer span.End()

	start := time.Now()
	err := s.rescheduleOnce(ctx, sess)
	if err == nil || errors.Is(err, domain.ErrSessionSuperseded) {
		return
	}

	span.RecordError(err)
	s.loggers.Errorf("Resynchronization failed: %v", err)
	s.telemetry.RecordResync(ctx, false, time.Since(start), 0)

	if s.isCurrent(sess) {
		s.startPolling(ctx, sess)
	}
}

func (s *Syncer) rescheduleOnce(ctx context.Context, sess *session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resync panicked: %v", r)
		}
	}()

	if !sess.ready.Load() {
		s.setState(ctx, StateReauthenticating)
		info, err := sess.source.Authenticate(ctx)
		if !s.isCurrent(sess) {
			return domain.ErrSessionSuperseded
		}
		if err != nil {
			return fmt.Errorf("reauthenticate: %w", err)
		}
		sess.auth.Store(&info)
		sess.ready.Store(true)
		s.loggers.Infof("Reauthenticated in environment %s", info.EnvironmentIdentifier)
	}

	if err := s.resync(ctx, sess); err != nil {
		return err
	}
	s.enterMode(ctx, sess)
	return nil
}

func (s *Syncer) onNetworkChange(status network.Status) {
	switch status {
	case network.Connected:
		if s.online.CompareAndSwap(false, true) {
			s.loggers.Info("Network available, resynchronizing")
			s.Reschedule()
		}
	case network.Disconnected:
		if s.online.CompareAndSwap(true, false) {
			s.loggers.Info("Network lost, polling stopped")
			sess := s.current.Load()
			if sess == nil {
				return
			}
			_ = s.work.Submit(func() {
				if s.isCurrent(sess) {
					sess.stopPolling()
				}
			})
		}
	}
}

func (s *Syncer) onStreamEvent(sess *session, conn uint64, event domain.StatusEvent) {
	if err := s.work.Submit(func() { s.handleStreamEvent(sess, conn, event) }); err != nil {
		s.loggers.Debugf("Dropped %s event: %v", event.Type, err)
	}
}

func (s *Syncer) handleStreamEvent(sess *session, conn uint64, event domain.StatusEvent) {
	if !s.isCurrent(sess) || !sess.ready.Load() {
		s.loggers.Debugf("Ignoring %s event, session not ready", event.Type)
		return
	}
	if !sess.currentConn(conn) {
		s.loggers.Debugf("Ignoring %s event from a replaced connection", event.Type)
		return
	}
	scope, _ := sess.scope()

	ctx := context.Background()
	s.telemetry.RecordStreamEvent(ctx, event.Type.String())

	switch event.Type {
	case domain.EventStreamStarted:
		sess.stopPolling()
		s.setState(ctx, StateStreaming)
		s.broadcast(event)

	case domain.EventStreamEnded:
		sess.stopStreaming()
		if s.network.IsAvailable() {
			if err := s.resync(ctx, sess); err != nil {
				return
			}
			s.startPolling(ctx, sess)
		}
		s.broadcast(event)

	case domain.EventEvaluationChanged:
		if event.Evaluation == nil {
			return
		}
		pushed := *event.Evaluation
		fresh, ok := sess.repo.GetEvaluation(ctx, scope, pushed.Flag, false)
		if !s.isCurrent(sess) {
			return
		}
		if !ok {
			s.loggers.Warnf("No evaluation for %s after change, forwarding pushed payload", pushed.Flag)
			fresh = pushed
		}
		s.notify(fresh, domain.EvaluationChanged(fresh))

	case domain.EventEvaluationRemoved:
		if event.Evaluation == nil {
			return
		}
		sess.repo.Remove(scope, event.Evaluation.Flag)
		s.broadcast(event)

	default:
		s.broadcast(event)
	}
}

// broadcast hands event to every events listener on the dispatch executor
func (s *Syncer) broadcast(event domain.StatusEvent) {
	if err := s.dispatch.Submit(func() { s.registry.Broadcast(event) }); err != nil {
		s.loggers.Debugf("Dropped %s broadcast: %v", event.Type, err)
	}
}

// notify runs the per-evaluation listeners of e, then the broadcast of event
func (s *Syncer) notify(e domain.Evaluation, event domain.StatusEvent) {
	err := s.dispatch.Submit(func() {
		s.registry.NotifyEvaluation(e)
		s.registry.Broadcast(event)
	})
	if err != nil {
		s.loggers.Debugf("Dropped %s notification: %v", e.Flag, err)
	}
}

func (s *Syncer) setState(ctx context.Context, state State) {
	if State(s.state.Swap(int32(state))) != state {
		s.loggers.Debugf("State -> %s", state)
		s.telemetry.RecordState(ctx, state.String())
	}
}

// State returns the current lifecycle state
func (s *Syncer) State() State {
	return State(s.state.Load())
}

// Ready reports whether the current session has authenticated
func (s *Syncer) Ready() bool {
	sess := s.current.Load()
	return sess != nil && sess.ready.Load()
}

// AuthInfo returns the authentication of the current session
func (s *Syncer) AuthInfo() (domain.AuthInfo, bool) {
	sess := s.current.Load()
	if sess == nil {
		return domain.AuthInfo{}, false
	}
	auth := sess.auth.Load()
	if auth == nil {
		return domain.AuthInfo{}, false
	}
	return *auth, true
}

// Evaluation returns the cached evaluation of id for the current session
// and records the read for analytics
func (s *Syncer) Evaluation(id string) (domain.Evaluation, bool) {
	r := s.lookup(id)
	if r.found {
		s.pushAnalytics(r.sess, r.scope, r.evaluation)
	}
	return r.evaluation, r.found
}

// read is one cached evaluation lookup. sess is nil when no session is
// ready.
type read struct {
	sess       *session
	scope      domain.Scope
	evaluation domain.Evaluation
	found      bool
}

func (s *Syncer) lookup(id string) read {
	sess := s.current.Load()
	if sess == nil || !sess.ready.Load() {
		return read{}
	}
	scope, ok := sess.scope()
	if !ok {
		return read{}
	}

	e, ok := sess.repo.GetEvaluation(context.Background(), scope, id, true)
	return read{sess: sess, scope: scope, evaluation: e, found: ok}
}

// Evaluations returns every cached evaluation of the current session
func (s *Syncer) Evaluations() []domain.Evaluation {
	sess := s.current.Load()
	if sess == nil {
		return []domain.Evaluation{}
	}
	scope, ok := sess.scope()
	if !ok {
		return []domain.Evaluation{}
	}
	return s.cache.GetAll(scope.CacheKey())
}

func (s *Syncer) pushAnalytics(sess *session, scope domain.Scope, e domain.Evaluation) {
	if s.analytics == nil || !sess.cfg.AnalyticsEnabled {
		return
	}
	if sess.target.Private || !sess.target.Valid() {
		return
	}
	feature, ok := s.features.Get(scope.Environment, scope.Cluster, e.Flag)
	if !ok {
		s.loggers.Debugf("No feature config for %s, analytics skipped", e.Flag)
		return
	}
	s.analytics.Enqueue(sess.target, feature, e)
}

// RegisterEvaluationListener registers l for changes of evaluation id
func (s *Syncer) RegisterEvaluationListener(id string, l listeners.EvaluationListener) bool {
	return s.registry.RegisterEvaluation(id, l)
}

// UnregisterEvaluationListener removes l from the listeners of id
func (s *Syncer) UnregisterEvaluationListener(id string, l listeners.EvaluationListener) bool {
	return s.registry.UnregisterEvaluation(id, l)
}

// RegisterEventsListener registers l for every status event
func (s *Syncer) RegisterEventsListener(l listeners.EventsListener) bool {
	return s.registry.RegisterEvents(l)
}

// UnregisterEventsListener removes l from the events listeners
func (s *Syncer) UnregisterEventsListener(l listeners.EventsListener) bool {
	return s.registry.UnregisterEvents(l)
}

// Destroy ends the current session: the stream and the poll timer stop,
// listeners are dropped and the remote source is released. Cached
// evaluations survive. Initialize may be called again afterwards.
func (s *Syncer) Destroy() {
	s.mu.Lock()
	s.gen.Add(1)
	sess := s.current.Swap(nil)
	s.mu.Unlock()

	s.network.UnregisterAll()
	if sess != nil {
		sess.close(false)
	}
	s.registry.Clear()
	s.setState(context.Background(), StateDestroyed)
}

// Close destroys the session and stops the executors. The Syncer cannot
// be initialized again.
func (s *Syncer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Destroy()
	s.work.Shutdown()
	s.dispatch.Shutdown()
	s.features.Close()
}

// FeatureCacheHitRatio reports the hit ratio of the feature config cache
func (s *Syncer) FeatureCacheHitRatio() float64 {
	return s.features.HitRatio()
}
