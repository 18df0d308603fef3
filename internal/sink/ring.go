package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/mrzor/file-tracer/internal/tracing"
)

// Ring keeps the most recent entries, overwriting the oldest when full.
type Ring struct {
	mu      sync.Mutex
	entries []tracing.Entry
	next    int
	full    bool
	overrun uint64
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{entries: make([]tracing.Entry, size)}
}

// Record implements tracing.Buffer.
func (r *Ring) Record(e tracing.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		r.overrun++
	}
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Reset implements tracing.Buffer.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.entries)
	r.next = 0
	r.full = false
	r.overrun = 0
}

// Entries returns the stored entries, oldest first.
func (r *Ring) Entries() []tracing.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]tracing.Entry(nil), r.entries[:r.next]...)
	}
	out := make([]tracing.Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Overrun returns how many entries were overwritten since the last reset.
func (r *Ring) Overrun() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrun
}

// WriteTo renders the ring like the tracefs trace file.
func (r *Ring) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintf(w, "# tracer: file_trace\n#\n# entries-in-buffer/entries-written: %d/%d\n#\n",
		r.Len(), uint64(r.Len())+r.Overrun())
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, e := range r.Entries() {
		n, err := io.WriteString(w, FormatEntry(e)+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// FormatEntry renders "<seconds>.<micros>: <text>".
func FormatEntry(e tracing.Entry) string {
	us := e.Delta.Microseconds()
	return fmt.Sprintf("%6d.%06d: %s", us/1_000_000, us%1_000_000, e.Text)
}
