package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// MockSource is an in-memory Source for tests
type MockSource struct {
	mu sync.RWMutex

	// Stored data
	authInfo    domain.AuthInfo
	evaluations map[string]domain.Evaluation
	features    []domain.FeatureConfig

	// Mock behaviors
	AuthenticateFunc        func(ctx context.Context) (domain.AuthInfo, error)
	FetchEvaluationFunc     func(ctx context.Context, environment string, target domain.Target, id, cluster string) (domain.Evaluation, error)
	FetchAllEvaluationsFunc func(ctx context.Context, target domain.Target, cluster string) ([]domain.Evaluation, error)
	FetchFeatureConfigsFunc func(ctx context.Context, environment, cluster string) ([]domain.FeatureConfig, error)

	// Call tracking
	AuthenticateCalls        int
	FetchEvaluationCalls     int
	FetchAllEvaluationsCalls int
	FetchFeatureConfigsCalls int
	CloseCalls               int
}

// NewMockSource creates a mock that authenticates as auth
func NewMockSource(auth domain.AuthInfo) *MockSource {
	return &MockSource{
		authInfo:    auth,
		evaluations: make(map[string]domain.Evaluation),
	}
}

// Update runs fn with the mock locked, for swapping behaviors while the
// mock is in use
func (m *MockSource) Update(fn func(m *MockSource)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// SetEvaluation adds or replaces an evaluation served by the mock
func (m *MockSource) SetEvaluation(e domain.Evaluation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.Flag] = e
}

// DeleteEvaluation removes an evaluation served by the mock
func (m *MockSource) DeleteEvaluation(flag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.evaluations, flag)
}

// SetFeatureConfigs replaces the feature configs served by the mock
func (m *MockSource) SetFeatureConfigs(configs []domain.FeatureConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = configs
}

func (m *MockSource) Authenticate(ctx context.Context) (domain.AuthInfo, error) {
	m.mu.Lock()
	m.AuthenticateCalls++
	fn := m.AuthenticateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authInfo, nil
}

func (m *MockSource) FetchEvaluation(ctx context.Context, environment string, target domain.Target, id, cluster string) (domain.Evaluation, error) {
	m.mu.Lock()
	m.FetchEvaluationCalls++
	fn := m.FetchEvaluationFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, environment, target, id, cluster)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.evaluations[id]
	if !ok {
		return domain.Evaluation{}, domain.NewNotFoundError(id)
	}
	return e, nil
}

func (m *MockSource) FetchAllEvaluations(ctx context.Context, target domain.Target, cluster string) ([]domain.Evaluation, error) {
	m.mu.Lock()
	m.FetchAllEvaluationsCalls++
	fn := m.FetchAllEvaluationsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, target, cluster)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Evaluation, 0, len(m.evaluations))
	for _, e := range m.evaluations {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
	return out, nil
}

func (m *MockSource) FetchFeatureConfigs(ctx context.Context, environment, cluster string) ([]domain.FeatureConfig, error) {
	m.mu.Lock()
	m.FetchFeatureConfigsCalls++
	fn := m.FetchFeatureConfigsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, environment, cluster)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.FeatureConfig(nil), m.features...), nil
}

func (m *MockSource) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
}

// Calls returns the call count for method
func (m *MockSource) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch method {
	case "Authenticate":
		return m.AuthenticateCalls
	case "FetchEvaluation":
		return m.FetchEvaluationCalls
	case "FetchAllEvaluations":
		return m.FetchAllEvaluationsCalls
	case "FetchFeatureConfigs":
		return m.FetchFeatureConfigsCalls
	case "Close":
		return m.CloseCalls
	default:
		return 0
	}
}

// Reset clears call counters
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AuthenticateCalls = 0
	m.FetchEvaluationCalls = 0
	m.FetchAllEvaluationsCalls = 0
	m.FetchFeatureConfigsCalls = 0
	m.CloseCalls = 0
}

// AssertCalled asserts method was called the expected number of times
func (m *MockSource) AssertCalled(t interface{ Errorf(string, ...interface{}) }, method string, expected int) {
	if actual := m.Calls(method); actual != expected {
		t.Errorf("expected %s to be called %d times, but was called %d times", method, expected, actual)
	}
}
