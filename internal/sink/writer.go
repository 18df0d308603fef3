package sink

import (
	"bufio"
	"io"
	"sync"

	"github.com/mrzor/file-tracer/internal/tracing"
)

// Writer writes each entry as one line.
type Writer struct {
	mu         sync.Mutex
	w          *bufio.Writer
	timestamps bool
	err        error
}

// NewWriter creates a Writer. With timestamps, lines carry the
// "<seconds>.<micros>: " prefix of FormatEntry.
func NewWriter(w io.Writer, timestamps bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), timestamps: timestamps}
}

// Record implements tracing.Buffer. The first write error is kept and later
// records are dropped.
func (s *Writer) Record(e tracing.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	text := e.Text
	if s.timestamps {
		text = FormatEntry(e)
	}
	if _, err := s.w.WriteString(text); err != nil {
		s.err = err
		return
	}
	s.err = s.w.WriteByte('\n')
}

// Reset implements tracing.Buffer. Written lines cannot be taken back, so
// it only flushes.
func (s *Writer) Reset() {
	_ = s.Flush() //nolint:errcheck // Error is kept and reported by the next Flush
}

// Flush writes buffered lines.
func (s *Writer) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.err = s.w.Flush()
	return s.err
}

// Tee fans entries out to several buffers.
type Tee []tracing.Buffer

// Record implements tracing.Buffer.
func (t Tee) Record(e tracing.Entry) {
	for _, b := range t {
		b.Record(e)
	}
}

// Reset implements tracing.Buffer.
func (t Tee) Reset() {
	for _, b := range t {
		b.Reset()
	}
}
