package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *recorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) get() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func TestManual_SetNotifiesOnlyOnTransitions(t *testing.T) {
	m := NewManual(true)
	rec := &recorder{}
	m.OnChange(rec.record)

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)

	assert.Equal(t, []Status{Disconnected, Connected}, rec.get())
	assert.True(t, m.IsAvailable())
}

func TestManual_NotifyRepeats(t *testing.T) {
	m := NewManual(false)
	rec := &recorder{}
	m.OnChange(rec.record)

	m.Notify(Connected)
	m.Notify(Connected)

	assert.Equal(t, []Status{Connected, Connected}, rec.get())
	assert.True(t, m.IsAvailable())
}

func TestManual_UnregisterAll(t *testing.T) {
	m := NewManual(true)
	rec := &recorder{}
	m.OnChange(rec.record)
	m.OnChange(nil)

	m.UnregisterAll()
	m.Set(false)

	assert.Empty(t, rec.get())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "CONNECTED", Connected.String())
	assert.Equal(t, "DISCONNECTED", Disconnected.String())
}

func TestNewProber_Address(t *testing.T) {
	p, err := NewProber("https://config.example.com/api/1.0", time.Minute, ldlog.NewDisabledLoggers())
	require.NoError(t, err)
	assert.Equal(t, "config.example.com:443", p.address)

	p, err = NewProber("http://localhost:8080", time.Minute, ldlog.NewDisabledLoggers())
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", p.address)
}

func TestProber_TracksDialOutcome(t *testing.T) {
	p, err := NewProber("http://backend:80", 5*time.Millisecond, ldlog.NewDisabledLoggers())
	require.NoError(t, err)

	var reachable atomic.Bool
	p.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		if reachable.Load() {
			client, server := net.Pipe()
			server.Close()
			return client, nil
		}
		return nil, errors.New("connection refused")
	}

	rec := &recorder{}
	p.OnChange(rec.record)

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return !p.IsAvailable() }, time.Second, time.Millisecond)
	reachable.Store(true)
	require.Eventually(t, func() bool { return p.IsAvailable() }, time.Second, time.Millisecond)

	p.Stop()
	assert.Equal(t, []Status{Disconnected, Connected}, rec.get())
}
