package analytics

import (
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Queue accepts evaluation records. Enqueue must never block.
type Queue interface {
	Enqueue(target domain.Target, feature domain.FeatureConfig, variation domain.Evaluation)
}

// Key identifies one summary counter
type Key struct {
	Feature   string
	Variation string
	Target    string
}

type record struct {
	target    domain.Target
	feature   domain.FeatureConfig
	variation domain.Evaluation
}

// Summary aggregates evaluation counts in memory. Records arriving while
// the buffer is full are dropped and counted.
type Summary struct {
	loggers ldlog.Loggers
	records chan record
	done    chan struct{}

	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	counts  map[Key]int
	dropped int
}

// NewSummary creates a summary with the given buffer capacity
func NewSummary(capacity int, loggers ldlog.Loggers) *Summary {
	if capacity <= 0 {
		capacity = 1024
	}
	loggers.SetPrefix("[pennant.analytics]")

	s := &Summary{
		loggers: loggers,
		records: make(chan record, capacity),
		done:    make(chan struct{}),
		counts:  make(map[Key]int),
	}
	go s.run()
	return s
}

// Enqueue records one evaluation without blocking
func (s *Summary) Enqueue(target domain.Target, feature domain.FeatureConfig, variation domain.Evaluation) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		s.drop()
		return
	}
	select {
	case s.records <- record{target: target, feature: feature, variation: variation}:
	default:
		s.drop()
	}
}

func (s *Summary) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
	if s.dropped == 1 {
		s.loggers.Warn("Analytics buffer unavailable, dropping evaluations")
	}
}

func (s *Summary) run() {
	defer close(s.done)
	for r := range s.records {
		key := Key{Feature: r.feature.Feature, Variation: r.variation.Identifier, Target: r.target.Identifier}
		s.mu.Lock()
		s.counts[key]++
		s.mu.Unlock()
	}
}

// Snapshot returns the current counts and the number of dropped records
func (s *Summary) Snapshot() (map[Key]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, s.dropped
}

// Close stops accepting records and waits for buffered ones to be counted
func (s *Summary) Close() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.closeMu.Unlock()
	<-s.done
}
