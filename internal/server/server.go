package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
)

// Flags defines what the wrapper server needs from the client
type Flags interface {
	BoolVariation(flag string, defaultValue bool) bool
	StringVariation(flag string, defaultValue string) string
	NumberVariation(flag string, defaultValue float64) float64
	JSONVariation(flag string, defaultValue map[string]interface{}) map[string]interface{}
	Evaluations() []domain.Evaluation
	State() syncer.State
	Ready() bool
	Refresh()
}

// Config configures the wrapper server
type Config struct {
	// Addr is the listen address, e.g. ":4000"
	Addr string

	// ServiceName names the server in traces
	ServiceName string
}

// WrapperServer exposes a client over HTTP
type WrapperServer struct {
	flags    Flags
	loggers  ldlog.Loggers
	registry *prometheus.Registry
	checks   *prometheus.CounterVec
	handler  http.Handler
	server   *http.Server
}

// CheckFlagRequest is the body of POST /api/1.0/check_flag
type CheckFlagRequest struct {
	FlagKey  string `json:"flag_key"`
	FlagKind string `json:"flag_kind"`
}

// CheckFlagResponse is the answer of POST /api/1.0/check_flag
type CheckFlagResponse struct {
	FlagKey   string      `json:"flag_key"`
	FlagValue interface{} `json:"flag_value"`
}

// StateResponse is the answer of GET /api/1.0/state
type StateResponse struct {
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
	Evaluations int    `json:"evaluations"`
}

// NewWrapperServer creates a wrapper server for flags
func NewWrapperServer(flags Flags, cfg Config, loggers ldlog.Loggers) *WrapperServer {
	loggers.SetPrefix("[pennant.server]")
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pennant-wrapper"
	}

	s := &WrapperServer{
		flags:    flags,
		loggers:  loggers,
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennant_wrapper_flag_checks_total",
			Help: "Flag checks served, by kind.",
		}, []string{"kind"}),
	}
	s.registry.MustRegister(
		s.checks,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pennant_ready",
			Help: "Whether the client session is authenticated.",
		}, func() float64 {
			if flags.Ready() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pennant_evaluations",
			Help: "Number of cached evaluations.",
		}, func() float64 {
			return float64(len(flags.Evaluations()))
		}),
	)

	router := mux.NewRouter()
	router.Use(otelmux.Middleware(cfg.ServiceName))

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/1.0").Subrouter()
	api.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	api.HandleFunc("/check_flag", s.handleCheckFlag).Methods(http.MethodPost)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	// Metrics
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	middleware := NewMiddleware(flags, s.registry, loggers)
	s.handler = middleware.Chain().Then(router)
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with every middleware applied
func (s *WrapperServer) Handler() http.Handler {
	return s.handler
}

// Start listens until Shutdown is called
func (s *WrapperServer) Start() error {
	s.loggers.Infof("Listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones
func (s *WrapperServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *WrapperServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *WrapperServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"pong": true})
}

func (s *WrapperServer) handleCheckFlag(w http.ResponseWriter, r *http.Request) {
	var req CheckFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.FlagKey == "" {
		http.Error(w, "flag_key is required", http.StatusBadRequest)
		return
	}

	flags, ok := GetFlags(r.Context())
	if !ok {
		flags = s.flags
	}

	var value interface{}
	switch domain.Kind(req.FlagKind) {
	case domain.KindBoolean:
		value = flags.BoolVariation(req.FlagKey, false)
	case domain.KindString:
		value = flags.StringVariation(req.FlagKey, "")
	case domain.KindInt:
		value = int64(flags.NumberVariation(req.FlagKey, 0))
	case domain.KindNumber:
		value = flags.NumberVariation(req.FlagKey, 0)
	case domain.KindJSON:
		value = flags.JSONVariation(req.FlagKey, map[string]interface{}{})
	default:
		http.Error(w, "unsupported flag_kind", http.StatusBadRequest)
		return
	}
	s.checks.WithLabelValues(req.FlagKind).Inc()

	writeJSON(w, http.StatusOK, CheckFlagResponse{FlagKey: req.FlagKey, FlagValue: value})
}

func (s *WrapperServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		State:       s.flags.State().String(),
		Ready:       s.flags.Ready(),
		Evaluations: len(s.flags.Evaluations()),
	})
}

func (s *WrapperServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.flags.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
