package tracing

import (
	"sync/atomic"
	"time"
)

// Entry is one stored trace line.
type Entry struct {
	// Time is the wall-clock time the line was emitted.
	Time time.Time
	// Delta is the time since the session's time origin.
	Delta time.Duration
	Text  string
}

// Buffer stores entries for a session.
type Buffer interface {
	Record(e Entry)
	// Reset discards everything recorded so far.
	Reset()
}

// Session is the trace context tracers emit into.
type Session struct {
	buf   Buffer
	now   func() time.Time
	start atomic.Int64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a session over buf with its time origin set to now.
func NewSession(buf Buffer, opts ...SessionOption) *Session {
	s := &Session{buf: buf, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.start.Store(s.now().UnixNano())
	return s
}

// Reset moves the time origin to now and clears the buffer.
func (s *Session) Reset() {
	s.start.Store(s.now().UnixNano())
	s.buf.Reset()
}

// TimeStart returns the time origin.
func (s *Session) TimeStart() time.Time {
	return time.Unix(0, s.start.Load())
}

// EmitLine stamps line and records it.
func (s *Session) EmitLine(line string) {
	now := s.now()
	s.buf.Record(Entry{
		Time:  now,
		Delta: time.Duration(now.UnixNano() - s.start.Load()),
		Text:  line,
	})
}
