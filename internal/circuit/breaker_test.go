package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

var errBackend = errors.New("backend down")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	mockLog := ldlogtest.NewMockLog()
	b := New(Config{MaxFailures: 2, Timeout: time.Hour}, mockLog.Loggers)

	assert.Equal(t, errBackend, b.Call(func() error { return errBackend }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, errBackend, b.Call(func() error { return errBackend }))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(func() error { called = true; return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), b.Rejections())
	mockLog.AssertMessageMatch(t, true, ldlog.Warn, "Circuit closed -> open")
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := New(Config{MaxFailures: 1, Timeout: time.Minute}, ldlog.NewDisabledLoggers())
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Call(func() error { return errBackend })
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{MaxFailures: 1, Timeout: time.Minute}, ldlog.NewDisabledLoggers())
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Call(func() error { return errBackend })
	now = now.Add(2 * time.Minute)
	_ = b.Call(func() error { return errBackend })

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_IgnoresNonFailures(t *testing.T) {
	b := New(Config{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !domain.IsNotFound(err) },
	}, ldlog.NewDisabledLoggers())

	for i := 0; i < 5; i++ {
		err := b.Call(func() error { return domain.NewNotFoundError("flag_a") })
		assert.True(t, domain.IsNotFound(err))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{MaxFailures: 1, Timeout: time.Hour}, ldlog.NewDisabledLoggers())
	_ = b.Call(func() error { return errBackend })
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Call(func() error { return nil }))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
