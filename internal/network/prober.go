package network

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Prober detects connectivity by dialing the backend host on an interval
type Prober struct {
	*Manual

	address  string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
	loggers  ldlog.Loggers

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber creates a prober for the host of rawURL. The provider starts
// out available.
func NewProber(rawURL string, interval time.Duration, loggers ldlog.Loggers) (*Prober, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	loggers.SetPrefix("[pennant.network]")

	dialer := &net.Dialer{}
	return &Prober{
		Manual:   NewManual(true),
		address:  net.JoinHostPort(u.Hostname(), port),
		interval: interval,
		timeout:  5 * time.Second,
		dial:     dialer.DialContext,
		loggers:  loggers,
	}, nil
}

// Start begins probing; a running prober is restarted
func (p *Prober) Start() {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probe(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the probe goroutine to exit
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Prober) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		p.loggers.Debugf("Probe of %s failed: %v", p.address, err)
		p.Set(false)
		return
	}
	conn.Close()
	p.Set(true)
}
