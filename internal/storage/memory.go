package storage

import (
	"sort"
	"sync"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// MemoryCache keeps evaluations in process memory
type MemoryCache struct {
	mu      sync.RWMutex
	scopes  map[string]map[string]domain.Evaluation
	metrics Metrics
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{scopes: make(map[string]map[string]domain.Evaluation)}
}

func (m *MemoryCache) Get(key, id string) (domain.Evaluation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.scopes[key][id]
	if ok {
		m.metrics.Hits++
	} else {
		m.metrics.Misses++
	}
	return e, ok
}

func (m *MemoryCache) GetAll(key string) []domain.Evaluation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedValues(m.scopes[key])
}

func (m *MemoryCache) Put(key, id string, evaluation domain.Evaluation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[key]
	if !ok {
		scope = make(map[string]domain.Evaluation)
		m.scopes[key] = scope
	}
	if _, exists := scope[id]; exists {
		m.metrics.KeysUpdated++
	} else {
		m.metrics.KeysAdded++
	}
	scope[id] = evaluation
}

func (m *MemoryCache) PutAll(key string, evaluations []domain.Evaluation) {
	scope := make(map[string]domain.Evaluation, len(evaluations))
	for _, e := range evaluations {
		scope[e.Flag] = e
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.scopes[key] = scope
	m.metrics.KeysAdded += uint64(len(scope))
}

func (m *MemoryCache) Remove(key, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scopes[key][id]; ok {
		delete(m.scopes[key], id)
		m.metrics.KeysDeleted++
	}
}

func (m *MemoryCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scopes = make(map[string]map[string]domain.Evaluation)
}

// Metrics returns a copy of the cache counters
func (m *MemoryCache) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// sortedValues flattens a scope ordered by flag identifier
func sortedValues(scope map[string]domain.Evaluation) []domain.Evaluation {
	out := make([]domain.Evaluation, 0, len(scope))
	for _, e := range scope {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
	return out
}
