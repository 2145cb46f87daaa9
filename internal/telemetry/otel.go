package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/OrlandoBitencourt/pennant"

// stateValues maps client states to the gauge value
var stateValues = map[string]int64{
	"uninitialized":    0,
	"authenticating":   1,
	"streaming":        2,
	"polling":          3,
	"reauthenticating": 4,
	"destroyed":        5,
}

// OTelProvider implements Provider using OpenTelemetry
type OTelProvider struct {
	tracer trace.Tracer
	meter  metric.Meter

	resyncs        metric.Int64Counter
	resyncDuration metric.Float64Histogram
	streamEvents   metric.Int64Counter
	variations     metric.Int64Counter
	fallbacks      metric.Int64Counter
	state          metric.Int64ObservableGauge

	currentState atomic.Value
}

// NewOTel creates a provider on the global tracer and meter providers
func NewOTel() (*OTelProvider, error) {
	return NewOTelWith(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewOTelWith creates a provider on explicit tracer and meter providers
func NewOTelWith(tp trace.TracerProvider, mp metric.MeterProvider) (*OTelProvider, error) {
	provider := &OTelProvider{
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
	}
	provider.currentState.Store("uninitialized")

	if err := provider.initMetrics(); err != nil {
		return nil, err
	}
	return provider, nil
}

func (o *OTelProvider) initMetrics() error {
	var err error

	o.resyncs, err = o.meter.Int64Counter(
		"pennant.resync",
		metric.WithDescription("Number of resynchronization cycles"),
	)
	if err != nil {
		return err
	}

	o.resyncDuration, err = o.meter.Float64Histogram(
		"pennant.resync.duration",
		metric.WithDescription("Duration of resynchronization cycles"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	o.streamEvents, err = o.meter.Int64Counter(
		"pennant.stream.events",
		metric.WithDescription("Number of push events handled"),
	)
	if err != nil {
		return err
	}

	o.variations, err = o.meter.Int64Counter(
		"pennant.variations",
		metric.WithDescription("Number of variation reads"),
	)
	if err != nil {
		return err
	}

	o.fallbacks, err = o.meter.Int64Counter(
		"pennant.repository.fallbacks",
		metric.WithDescription("Number of reads served from cache after a failed network read"),
	)
	if err != nil {
		return err
	}

	o.state, err = o.meter.Int64ObservableGauge(
		"pennant.state",
		metric.WithDescription("Client state (0=uninitialized, 1=authenticating, 2=streaming, 3=polling, 4=reauthenticating, 5=destroyed)"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(o.stateValue())
			return nil
		}),
	)
	return err
}

func (o *OTelProvider) stateValue() int64 {
	state, _ := o.currentState.Load().(string)
	return stateValues[state]
}

// StartSpan creates a new trace span
func (o *OTelProvider) StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(convertAttributes(attrs)...))
	return ctx, &OTelSpan{span: span}
}

func convertAttribute(attr Attribute) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	default:
		return attribute.String(attr.Key, "")
	}
}

func convertAttributes(attrs []Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		out[i] = convertAttribute(attr)
	}
	return out
}

// RecordResync records one resynchronization cycle
func (o *OTelProvider) RecordResync(ctx context.Context, success bool, duration time.Duration, evaluationCount int) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	o.resyncDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", outcome)))
	o.resyncs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("evaluation.count", evaluationCount),
	))
}

// RecordStreamEvent records a handled push event
func (o *OTelProvider) RecordStreamEvent(ctx context.Context, eventType string) {
	o.streamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordVariation records a variation read. served is false when the
// caller's default was returned.
func (o *OTelProvider) RecordVariation(ctx context.Context, kind string, served bool) {
	o.variations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("served", served),
	))
}

// RecordFallback records a cache fallback
func (o *OTelProvider) RecordFallback(ctx context.Context, op string) {
	o.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordState stores the state reported by the gauge
func (o *OTelProvider) RecordState(ctx context.Context, state string) {
	o.currentState.Store(state)
}

// Shutdown shuts down the provider
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	// SDK providers are owned and shut down by the caller
	return nil
}

// OTelSpan wraps an OpenTelemetry span
type OTelSpan struct {
	span trace.Span
}

func (s *OTelSpan) End() {
	s.span.End()
}

func (s *OTelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(convertAttributes(attrs)...)
}

func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
