package telemetry

import (
	"context"
	"time"
)

// NoOpProvider is a telemetry provider that does nothing
type NoOpProvider struct{}

// NewNoOp creates a new no-op telemetry provider
func NewNoOp() *NoOpProvider {
	return &NoOpProvider{}
}

func (n *NoOpProvider) StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	return ctx, noOpSpan{}
}

func (n *NoOpProvider) RecordResync(ctx context.Context, success bool, duration time.Duration, evaluationCount int) {
}

func (n *NoOpProvider) RecordStreamEvent(ctx context.Context, eventType string) {}

func (n *NoOpProvider) RecordVariation(ctx context.Context, kind string, served bool) {}

func (n *NoOpProvider) RecordFallback(ctx context.Context, op string) {}

func (n *NoOpProvider) RecordState(ctx context.Context, state string) {}

func (n *NoOpProvider) Shutdown(ctx context.Context) error { return nil }

type noOpSpan struct{}

func (noOpSpan) End() {}

func (noOpSpan) SetAttributes(...Attribute) {}

func (noOpSpan) RecordError(error) {}
