package realtime

import (
	"sync"
	"time"
)

// Session is the server-side record of one authenticated live connection.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	out chan Event

	mu     sync.Mutex
	closed bool

	// guarded by Hub.mu
	channels map[string]struct{}
}

func newSession(id, userID string, buffer int, now time.Time) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		ConnectedAt: now,
		out:         make(chan Event, buffer),
		channels:    make(map[string]struct{}),
	}
}

// Events is closed when the session is deregistered.
func (s *Session) Events() <-chan Event {
	return s.out
}

// deliver never blocks. It reports false when the buffer is full or the session is gone.
func (s *Session) deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- evt:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
