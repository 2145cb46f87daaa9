package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/circuit"
	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const userAgent = "pennant-go/1.0"

// HTTPSource implements Source over the client HTTP API
type HTTPSource struct {
	baseURL    string
	apiKey     string
	target     domain.Target
	httpClient *http.Client
	maxRetries int
	breaker    *circuit.Breaker
	loggers    ldlog.Loggers

	mu   sync.RWMutex
	auth *domain.AuthInfo
}

// NewHTTPSource creates a new HTTP source. breaker may be nil.
func NewHTTPSource(cfg Config, breaker *circuit.Breaker, loggers ldlog.Loggers) *HTTPSource {
	loggers.SetPrefix("[pennant.remote]")
	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		target:  cfg.Target,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		breaker:    breaker,
		loggers:    loggers,
	}
}

// Authenticate exchanges the API key for a token and decodes its claims
func (s *HTTPSource) Authenticate(ctx context.Context) (domain.AuthInfo, error) {
	endpoint := fmt.Sprintf("%s/client/auth", s.baseURL)
	body := AuthenticationRequest{APIKey: s.apiKey, Target: s.target}

	var resp AuthenticationResponse
	if err := s.doRequest(ctx, http.MethodPost, endpoint, "", body, &resp); err != nil {
		return domain.AuthInfo{}, domain.NewAuthError(domain.StatusCode(err), err)
	}
	if resp.AuthToken == "" {
		return domain.AuthInfo{}, domain.NewAuthError(0, errors.New("empty auth token"))
	}

	info, err := authInfoFromToken(resp.AuthToken)
	if err != nil {
		return domain.AuthInfo{}, domain.NewAuthError(0, fmt.Errorf("failed to decode auth token: %w", err))
	}

	s.mu.Lock()
	s.auth = &info
	s.mu.Unlock()

	s.loggers.Debugf("Authenticated for environment %s on cluster %s", info.EnvironmentIdentifier, info.Cluster)
	return info, nil
}

// FetchEvaluation fetches a single evaluation
func (s *HTTPSource) FetchEvaluation(ctx context.Context, environment string, target domain.Target, id, cluster string) (domain.Evaluation, error) {
	auth, err := s.authInfo()
	if err != nil {
		return domain.Evaluation{}, err
	}

	endpoint := fmt.Sprintf("%s/client/env/%s/target/%s/evaluations/%s?cluster=%s",
		s.baseURL, url.PathEscape(environment), url.PathEscape(target.Identifier),
		url.PathEscape(id), url.QueryEscape(cluster))

	var evaluation domain.Evaluation
	if err := s.guarded(ctx, endpoint, auth.Token, &evaluation); err != nil {
		if domain.StatusCode(err) == http.StatusNotFound {
			return domain.Evaluation{}, domain.NewNotFoundError(id)
		}
		return domain.Evaluation{}, fmt.Errorf("failed to fetch evaluation %s: %w", id, err)
	}
	return evaluation, nil
}

// FetchAllEvaluations fetches every evaluation for target
func (s *HTTPSource) FetchAllEvaluations(ctx context.Context, target domain.Target, cluster string) ([]domain.Evaluation, error) {
	auth, err := s.authInfo()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/client/env/%s/target/%s/evaluations?cluster=%s",
		s.baseURL, url.PathEscape(auth.Environment), url.PathEscape(target.Identifier),
		url.QueryEscape(cluster))

	var evaluations []domain.Evaluation
	if err := s.guarded(ctx, endpoint, auth.Token, &evaluations); err != nil {
		return nil, fmt.Errorf("failed to fetch evaluations: %w", err)
	}
	return evaluations, nil
}

// FetchFeatureConfigs fetches feature definitions for the environment
func (s *HTTPSource) FetchFeatureConfigs(ctx context.Context, environment, cluster string) ([]domain.FeatureConfig, error) {
	auth, err := s.authInfo()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/client/env/%s/feature-configs?cluster=%s",
		s.baseURL, url.PathEscape(environment), url.QueryEscape(cluster))

	var configs []domain.FeatureConfig
	if err := s.guarded(ctx, endpoint, auth.Token, &configs); err != nil {
		return nil, fmt.Errorf("failed to fetch feature configs: %w", err)
	}
	return configs, nil
}

// Close drops the auth token and idle connections
func (s *HTTPSource) Close() {
	s.mu.Lock()
	s.auth = nil
	s.mu.Unlock()
	s.httpClient.CloseIdleConnections()
}

func (s *HTTPSource) authInfo() (domain.AuthInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.auth == nil {
		return domain.AuthInfo{}, domain.NewAuthError(0, errors.New("not authenticated"))
	}
	return *s.auth, nil
}

// guarded performs a GET through the circuit breaker, when configured
func (s *HTTPSource) guarded(ctx context.Context, endpoint, token string, result interface{}) error {
	call := func() error {
		return s.doRequest(ctx, http.MethodGet, endpoint, token, nil, result)
	}
	if s.breaker == nil {
		return call()
	}
	return s.breaker.Call(call)
}

// doRequest performs an HTTP request with retries
func (s *HTTPSource) doRequest(ctx context.Context, method, endpoint, token string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return domain.NewTransportError(method+" "+endpoint, 0, ctx.Err())
			}
		}

		err := s.doSingleRequest(ctx, method, endpoint, token, body, result)
		if err == nil {
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return lastErr
		}
		s.loggers.Debugf("Retrying %s %s after error: %v", method, endpoint, err)
	}

	return lastErr
}

// doSingleRequest performs a single HTTP request
func (s *HTTPSource) doSingleRequest(ctx context.Context, method, endpoint, token string, body interface{}, result interface{}) error {
	op := method + " " + endpoint

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.NewTransportError(op, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewTransportError(op, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewTransportError(op, resp.StatusCode, errors.New(strings.TrimSpace(string(respBody))))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return domain.NewTransportError(op, resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err))
		}
	}

	return nil
}

// shouldRetry retries on network errors, 5xx and 429
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := domain.StatusCode(err)
	if code == 0 {
		return domain.IsTransportError(err)
	}
	return code >= 500 || code == http.StatusTooManyRequests
}

// IsBreakerFailure reports whether err should count against the circuit.
// Missing evaluations and client errors do not.
func IsBreakerFailure(err error) bool {
	if err == nil || domain.IsNotFound(err) {
		return false
	}
	code := domain.StatusCode(err)
	return code == 0 || code >= 500 || code == http.StatusTooManyRequests
}
