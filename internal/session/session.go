package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated live connection (thread-safe). The current
// room is owned by the hub, not the session; the session only carries
// identity and the outbound queue drained by the connection's write pump.
type Session struct {
	ID          string
	UserID      int64
	Nickname    string
	ConnectedAt time.Time

	mu     sync.RWMutex
	closed bool

	outbound chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a session bound to an authenticated user.
func New(userID int64, nickname string, bufferSize int) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Nickname:    nickname,
		ConnectedAt: time.Now(),
		outbound:    make(chan []byte, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context returns the session lifetime context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Outbound is drained by the connection's write pump.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Send queues a message without blocking. A full queue means the consumer
// is too slow; the message is dropped and logged rather than stalling the
// room's broadcast loop.
func (s *Session) Send(data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.outbound <- data:
		return true
	default:
		log.Printf("[Session %s] Outbound buffer full, dropping message", s.ID)
		return false
	}
}

// Duration reports how long the connection has been up.
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// IsClosed reports whether Close has run.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closed
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.cancel()
	close(s.outbound)
}
