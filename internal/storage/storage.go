package storage

import (
	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Cache is the persisted evaluation store consulted when the network is
// unavailable. Implementations are internally synchronized and never fail
// on a miss.
type Cache interface {
	// Get returns the evaluation stored for flag id under key
	Get(key, id string) (domain.Evaluation, bool)

	// GetAll returns every evaluation stored under key, never nil
	GetAll(key string) []domain.Evaluation

	// Put stores one evaluation under key
	Put(key, id string, evaluation domain.Evaluation)

	// PutAll replaces the evaluation set stored under key
	PutAll(key string, evaluations []domain.Evaluation)

	// Remove deletes one evaluation under key
	Remove(key, id string)

	// Clear removes everything
	Clear()
}

// Metrics represents cache metrics
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysUpdated uint64
	KeysDeleted uint64
	WriteErrors uint64
}

// HitRatio returns hits over total lookups
func (m Metrics) HitRatio() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}
