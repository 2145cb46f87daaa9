package syncer

import (
	"sync"
	"sync/atomic"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/poll"
	"github.com/OrlandoBitencourt/pennant/internal/remote"
	"github.com/OrlandoBitencourt/pennant/internal/repository"
	"github.com/OrlandoBitencourt/pennant/internal/stream"
)

// session is everything bound to one Initialize call. Its identity never
// changes; work started for a session that is no longer current is
// discarded.
type session struct {
	gen    uint64
	target domain.Target
	cfg    Config

	source remote.Source
	repo   *repository.Repository
	poller *poll.Scheduler
	stream *stream.Controller

	auth  atomic.Pointer[domain.AuthInfo]
	ready atomic.Bool

	// conn identifies the push connection events may come from. It moves
	// on every start and stop, so events of a replaced connection are
	// recognizable.
	conn atomic.Uint64

	mu   sync.Mutex
	dead bool
}

func (s *session) scope() (domain.Scope, bool) {
	auth := s.auth.Load()
	if auth == nil {
		return domain.Scope{}, false
	}
	return domain.Scope{
		Environment:           auth.Environment,
		EnvironmentIdentifier: auth.EnvironmentIdentifier,
		Target:                s.target,
		Cluster:               auth.Cluster,
	}, true
}

// startPolling arms the poll timer unless the session was closed
func (s *session) startPolling(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return false
	}
	s.poller.Start(fn)
	return true
}

func (s *session) stopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poller.Stop()
}

// startStreaming stops the poll timer and opens the push connection
// unless the session was closed. sink receives every event tagged with
// the connection it came from.
func (s *session) startStreaming(cfg stream.Config, sink func(conn uint64, event domain.StatusEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return domain.ErrSessionSuperseded
	}
	s.poller.Stop()
	conn := s.conn.Add(1)
	return s.stream.Start(cfg, func(event domain.StatusEvent) {
		sink(conn, event)
	})
}

func (s *session) stopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Add(1)
	s.stream.Stop()
}

// currentConn reports whether conn is the active push connection
func (s *session) currentConn(conn uint64) bool {
	return s.conn.Load() == conn
}

// close stops every timer and connection of the session. Nothing can be
// restarted afterwards.
func (s *session) close(clearCache bool) {
	s.mu.Lock()
	s.dead = true
	s.ready.Store(false)
	s.conn.Add(1)
	s.stream.Stop()
	s.poller.Stop()
	s.mu.Unlock()

	if clearCache {
		s.repo.Clear()
	}
	s.source.Close()
}
