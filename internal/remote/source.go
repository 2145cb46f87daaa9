package remote

import (
	"context"
	"time"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Source is the backend API the client synchronizes from
type Source interface {
	// Authenticate exchanges the API key for an auth token
	Authenticate(ctx context.Context) (domain.AuthInfo, error)

	// FetchEvaluation fetches one flag evaluation for target
	FetchEvaluation(ctx context.Context, environment string, target domain.Target, id, cluster string) (domain.Evaluation, error)

	// FetchAllEvaluations fetches every evaluation for target in the
	// authenticated environment
	FetchAllEvaluations(ctx context.Context, target domain.Target, cluster string) ([]domain.Evaluation, error)

	// FetchFeatureConfigs fetches feature definitions
	FetchFeatureConfigs(ctx context.Context, environment, cluster string) ([]domain.FeatureConfig, error)

	// Close releases resources held by the source
	Close()
}

// Config holds remote source configuration
type Config struct {
	BaseURL    string
	APIKey     string
	Target     domain.Target
	Timeout    time.Duration
	MaxRetries int
}
