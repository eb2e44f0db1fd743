package render

import (
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
)

// MapSession is one mounted map: the scene produced by a single render
// generation. A session is replaced wholesale, never patched.
type MapSession struct {
	Generation uint64
	Window     domain.TimeWindow
	Scene      domain.Scene
	MountedAt  time.Time

	closed atomic.Bool
}

// Close marks the session as disposed. It is safe to call more than once.
func (s *MapSession) Close() {
	s.closed.Store(true)
}

// Closed reports whether a newer session has replaced this one.
func (s *MapSession) Closed() bool {
	return s.closed.Load()
}
