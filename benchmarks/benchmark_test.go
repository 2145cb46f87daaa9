package benchmarks

import (
	"fmt"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/listeners"
	"github.com/OrlandoBitencourt/pennant/internal/network"
	"github.com/OrlandoBitencourt/pennant/internal/remote"
	"github.com/OrlandoBitencourt/pennant/internal/storage"
	"github.com/OrlandoBitencourt/pennant/internal/stream"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
)

var benchScope = domain.Scope{
	Environment:           "env-1",
	EnvironmentIdentifier: "dev",
	Target:                domain.Target{Identifier: "user-123", Name: "user-123"},
	Cluster:               "1",
}

func benchEvaluations(n int) []domain.Evaluation {
	out := make([]domain.Evaluation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Evaluation{
			Flag:       fmt.Sprintf("flag_%d", i),
			Identifier: "true",
			Kind:       domain.KindBoolean,
			Value:      true,
		})
	}
	return out
}

// setupSyncer returns a ready syncer serving n evaluations
func setupSyncer(b *testing.B, n int) *syncer.Syncer {
	b.Helper()

	source := remote.NewMockSource(domain.AuthInfo{
		Environment:           "env-1",
		EnvironmentIdentifier: "dev",
		Cluster:               "1",
		Token:                 "token",
	})
	for _, e := range benchEvaluations(n) {
		source.SetEvaluation(e)
	}

	s, err := syncer.New(syncer.Options{
		Loggers: ldlog.NewDisabledLoggers(),
		Cache:   storage.NewMemoryCache(),
		Network: network.NewManual(true),
		Sources: func(syncer.Config, domain.Target) remote.Source {
			return source
		},
		Transports: func(syncer.Config) stream.Transport {
			return stream.NewMockTransport()
		},
	})
	if err != nil {
		b.Fatalf("failed to create syncer: %v", err)
	}
	b.Cleanup(s.Close)

	cfg := syncer.DefaultConfig("api-key")
	cfg.StreamEnabled = false
	cfg.PollInterval = time.Hour
	cfg.AnalyticsEnabled = false

	done := make(chan syncer.AuthResult, 1)
	target := benchScope.Target
	if err := s.Initialize(&target, &cfg, func(_ *domain.AuthInfo, r syncer.AuthResult) {
		done <- r
	}); err != nil {
		b.Fatalf("failed to initialize: %v", err)
	}

	select {
	case r := <-done:
		if !r.Success {
			b.Fatalf("authentication failed: %v", r.Err)
		}
	case <-time.After(5 * time.Second):
		b.Fatal("authentication timed out")
	}
	return s
}

// BenchmarkBoolVariation benchmarks a cached variation read
func BenchmarkBoolVariation(b *testing.B) {
	s := setupSyncer(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.BoolVariation("flag_42", false)
	}
}

// BenchmarkBoolVariation_Parallel benchmarks concurrent variation reads
func BenchmarkBoolVariation_Parallel(b *testing.B) {
	s := setupSyncer(b, 100)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = s.BoolVariation("flag_42", false)
		}
	})
}

// BenchmarkBoolVariation_Missing benchmarks the default path
func BenchmarkBoolVariation_Missing(b *testing.B) {
	s := setupSyncer(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.BoolVariation("unknown", false)
	}
}

// BenchmarkEvaluations benchmarks listing every cached evaluation
func BenchmarkEvaluations(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("flags=%d", n), func(b *testing.B) {
			s := setupSyncer(b, n)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = s.Evaluations()
			}
		})
	}
}

// BenchmarkMemoryCache_Put benchmarks evaluation writes
func BenchmarkMemoryCache_Put(b *testing.B) {
	cache := storage.NewMemoryCache()
	key := benchScope.CacheKey()
	e := benchEvaluations(1)[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(key, e.Flag, e)
	}
}

// BenchmarkDiskCache_Get benchmarks reads of persisted evaluations
func BenchmarkDiskCache_Get(b *testing.B) {
	cache, err := storage.NewDiskCache(b.TempDir(), ldlog.NewDisabledLoggers())
	if err != nil {
		b.Fatalf("failed to create disk cache: %v", err)
	}
	key := benchScope.CacheKey()
	cache.PutAll(key, benchEvaluations(100))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.Get(key, "flag_42")
	}
}

// BenchmarkFeatureCache_Get benchmarks feature config lookups
func BenchmarkFeatureCache_Get(b *testing.B) {
	cache, err := storage.NewFeatureCache(10000)
	if err != nil {
		b.Fatalf("failed to create feature cache: %v", err)
	}
	defer cache.Close()

	configs := make([]domain.FeatureConfig, 0, 100)
	for i := 0; i < 100; i++ {
		configs = append(configs, domain.FeatureConfig{Feature: fmt.Sprintf("flag_%d", i)})
	}
	cache.PutAll("env-1", "1", configs)
	time.Sleep(10 * time.Millisecond) // ristretto applies writes asynchronously

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.Get("env-1", "1", "flag_42")
	}
}

type nopListener struct{ id int }

func (nopListener) OnEvaluation(domain.Evaluation) {}

// BenchmarkRegistry_NotifyEvaluation benchmarks listener fan-out
func BenchmarkRegistry_NotifyEvaluation(b *testing.B) {
	registry := listeners.NewRegistry(ldlog.NewDisabledLoggers())
	for i := 0; i < 10; i++ {
		registry.RegisterEvaluation("flag_42", &nopListener{id: i})
	}
	e := benchEvaluations(43)[42]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		registry.NotifyEvaluation(e)
	}
}
