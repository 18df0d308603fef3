package sink

import (
	"context"
	"sync"

	"github.com/mrzor/file-tracer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span records entries as events on one span per session. Reset ends the
// current span and opens the next.
type Span struct {
	tracer trace.Tracer
	name   string

	mu     sync.Mutex
	span   trace.Span
	count  int
	closed bool
}

// NewSpan creates a span sink. The first span starts on the first Record
// or Reset.
func NewSpan(tracer trace.Tracer, name string) *Span {
	return &Span{tracer: tracer, name: name}
}

// Record implements tracing.Buffer.
func (s *Span) Record(e tracing.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.span == nil {
		s.start()
	}
	s.span.AddEvent(e.Text, trace.WithTimestamp(e.Time))
	s.count++
}

// Reset implements tracing.Buffer.
func (s *Span) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.end()
	s.start()
}

// Close ends the current span. Later records are dropped.
func (s *Span) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.end()
	s.closed = true
}

func (s *Span) start() {
	_, s.span = s.tracer.Start(context.Background(), s.name)
	s.count = 0
}

func (s *Span) end() {
	if s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.Int("filetrace.lines", s.count))
	s.span.End()
	s.span = nil
}
