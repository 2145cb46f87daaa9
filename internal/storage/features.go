package storage

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// DefaultFeatureCacheSize bounds the number of cached feature configs
const DefaultFeatureCacheSize = 10000

// FeatureCache is a size-bounded store of feature configs keyed by
// environment, cluster and feature. Entries may be evicted at any time.
type FeatureCache struct {
	cache *ristretto.Cache
}

// NewFeatureCache creates a cache holding at most maxEntries configs
func NewFeatureCache(maxEntries int64) (*FeatureCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultFeatureCacheSize
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feature cache: %w", err)
	}

	return &FeatureCache{cache: cache}, nil
}

func featureKey(environment, cluster, feature string) string {
	return fmt.Sprintf("%s/%s/%s", environment, cluster, feature)
}

// Get returns the config for feature, if still cached
func (f *FeatureCache) Get(environment, cluster, feature string) (domain.FeatureConfig, bool) {
	value, found := f.cache.Get(featureKey(environment, cluster, feature))
	if !found {
		return domain.FeatureConfig{}, false
	}
	fc, ok := value.(domain.FeatureConfig)
	return fc, ok
}

// PutAll stores every config and waits for the writes to be applied
func (f *FeatureCache) PutAll(environment, cluster string, configs []domain.FeatureConfig) {
	for _, fc := range configs {
		f.cache.Set(featureKey(environment, cluster, fc.Feature), fc, 1)
	}
	f.cache.Wait()
}

// Clear removes all entries
func (f *FeatureCache) Clear() {
	f.cache.Clear()
}

// HitRatio reports the cache hit ratio since creation
func (f *FeatureCache) HitRatio() float64 {
	return f.cache.Metrics.Ratio()
}

// Close stops the cache's background goroutines
func (f *FeatureCache) Close() {
	f.cache.Close()
}
