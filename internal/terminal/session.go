package terminal

import (
	"context"
	"sync"
	"time"
)

// connectCooldown spaces out connection attempts so a dead terminal is not
// hammered every tick.
const connectCooldown = 5 * time.Second

// Session guards a shared Connector handle. Only one connection attempt is
// ever in flight; concurrent callers observe ErrConnecting or
// ErrNotConnected instead of racing the handshake.
type Session struct {
	conn Connector

	mu          sync.Mutex
	connecting  bool
	lastAttempt time.Time
	now         func() time.Time
}

// NewSession wraps a connector with the connect guard.
func NewSession(conn Connector) *Session {
	return &Session{conn: conn, now: time.Now}
}

// Connector returns the guarded handle for normal trading calls.
func (s *Session) Connector() Connector { return s.conn }

// IsConnected reports the underlying handle state.
func (s *Session) IsConnected() bool { return s.conn.IsConnected() }

// TryConnect attempts to connect, honoring the single-flight guard and the
// attempt cooldown. ErrConnecting and ErrNotConnected are expected between
// ticks and are not operator-facing failures.
func (s *Session) TryConnect(ctx context.Context) error {
	if s.conn.IsConnected() {
		return nil
	}

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrConnecting
	}
	if !s.lastAttempt.IsZero() && s.now().Sub(s.lastAttempt) < connectCooldown {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.connecting = true
	s.lastAttempt = s.now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	return s.conn.Connect(ctx)
}

// Reset clears the attempt cooldown, used after the terminal reports a
// dropped handle so the next tick may retry immediately.
func (s *Session) Reset() {
	s.mu.Lock()
	s.lastAttempt = time.Time{}
	s.mu.Unlock()
}

// Close releases the terminal handle.
func (s *Session) Close() {
	s.conn.Disconnect()
}
