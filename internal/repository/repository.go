package repository

import (
	"context"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/network"
	"github.com/OrlandoBitencourt/pennant/internal/remote"
	"github.com/OrlandoBitencourt/pennant/internal/storage"
)

// FallbackRecorder is notified whenever a read is served from the cache
// because the network read could not be used
type FallbackRecorder interface {
	RecordFallback(ctx context.Context, op string)
}

// Repository reads evaluations network-first and falls back to the cache
type Repository struct {
	source   remote.Source
	cache    storage.Cache
	network  network.Provider
	loggers  ldlog.Loggers
	fallback FallbackRecorder
}

// New creates a repository. fallback may be nil.
func New(source remote.Source, cache storage.Cache, provider network.Provider, fallback FallbackRecorder, loggers ldlog.Loggers) *Repository {
	loggers.SetPrefix("[pennant.repository]")
	return &Repository{
		source:   source,
		cache:    cache,
		network:  provider,
		loggers:  loggers,
		fallback: fallback,
	}
}

// GetEvaluation returns the evaluation of id in scope. With preferCache
// set, or with the network unavailable, only the cache is consulted. A
// successful network read is written to the cache first.
func (r *Repository) GetEvaluation(ctx context.Context, scope domain.Scope, id string, preferCache bool) (domain.Evaluation, bool) {
	key := scope.CacheKey()

	if preferCache || !r.network.IsAvailable() {
		return r.cache.Get(key, id)
	}

	e, err := r.source.FetchEvaluation(ctx, scope.Environment, scope.Target, id, scope.Cluster)
	if err == nil {
		r.cache.Put(key, id, e)
		return e, true
	}

	if domain.IsNotFound(err) {
		r.loggers.Debugf("Evaluation %s not found remotely, using cache", id)
	} else {
		r.loggers.Warnf("Failed to fetch evaluation %s (status %d), using cache: %v", id, domain.StatusCode(err), err)
	}
	r.recordFallback(ctx, "get_evaluation")
	return r.cache.Get(key, id)
}

// GetAllEvaluations returns every evaluation in scope, never nil
func (r *Repository) GetAllEvaluations(ctx context.Context, scope domain.Scope) []domain.Evaluation {
	key := scope.CacheKey()

	if !r.network.IsAvailable() {
		return r.cache.GetAll(key)
	}

	evaluations, err := r.source.FetchAllEvaluations(ctx, scope.Target, scope.Cluster)
	if err != nil {
		r.loggers.Warnf("Failed to fetch evaluations (status %d), using cache: %v", domain.StatusCode(err), err)
		r.recordFallback(ctx, "get_all_evaluations")
		return r.cache.GetAll(key)
	}

	if len(evaluations) == 0 {
		r.loggers.Warn("Remote source returned no evaluations")
		r.cache.PutAll(key, nil)
		return []domain.Evaluation{}
	}

	r.cache.PutAll(key, evaluations)
	r.loggers.Debugf("Cached %d evaluations for %s", len(evaluations), key)
	return evaluations
}

// Remove deletes one evaluation from the cache
func (r *Repository) Remove(scope domain.Scope, id string) {
	r.cache.Remove(scope.CacheKey(), id)
}

// Clear empties the cache
func (r *Repository) Clear() {
	r.cache.Clear()
}

func (r *Repository) recordFallback(ctx context.Context, op string) {
	if r.fallback != nil {
		r.fallback.RecordFallback(ctx, op)
	}
}
