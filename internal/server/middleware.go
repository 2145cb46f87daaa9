package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/justinas/alice"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const contextKeyFlags contextKey = "pennant_flags"

// Middleware provides the HTTP middleware of the wrapper server
type Middleware struct {
	flags   Flags
	loggers ldlog.Loggers

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMiddleware creates middleware registering its collectors in registry
func NewMiddleware(flags Flags, registry prometheus.Registerer, loggers ldlog.Loggers) *Middleware {
	m := &Middleware{
		flags:   flags,
		loggers: loggers,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennant_wrapper_requests_total",
			Help: "Requests served by the wrapper server.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pennant_wrapper_request_duration_seconds",
			Help:    "Latency of wrapper server requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	registry.MustRegister(m.requests, m.latency)
	return m
}

// Chain returns the middleware every route passes through
func (m *Middleware) Chain() alice.Chain {
	return alice.New(m.recoverPanics, m.instrument, m.inject, m.log)
}

func (m *Middleware) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.loggers.Errorf("Handler panicked on %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests,
		promhttp.InstrumentHandlerDuration(m.latency, next))
}

func (m *Middleware) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyFlags, m.flags)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.loggers.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

// GetFlags extracts the flags from request context
func GetFlags(ctx context.Context) (Flags, bool) {
	flags, ok := ctx.Value(contextKeyFlags).(Flags)
	return flags, ok
}
