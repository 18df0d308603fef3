// Package inflight holds syscall-enter records until the matching exit arrives.
//
// The kernel reports a syscall as two records: one at entry carrying the
// arguments and one at exit carrying the return value. Both are stamped with
// the calling thread id, and a thread has at most one syscall in flight, so
// the thread id is the pairing key.
//
// Queries (read-only):
//   - Peek(tid) - Look at a pending record
//   - Len() - Number of pending records
//
// Commands (mutations):
//   - Put(tid, rec) - Store an enter record, replacing any stale one
//   - Take(tid) - Remove and return the pending record
//   - Cleanup(maxAge) - Drop records whose exit never came
//
// Thread-safe with RWMutex for concurrent access.
package inflight

import (
	"sync"
	"time"

	"github.com/mrzor/file-tracer/internal/bpf"
)

type pending struct {
	rec  bpf.Record
	seen time.Time
}

// Tracker pairs enter and exit records by thread id.
type Tracker struct {
	mu      sync.RWMutex
	pending map[uint32]pending // TID -> enter record
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[uint32]pending),
		now:     time.Now,
	}
}

// Put stores an enter record for tid (command).
// It reports whether a previous record was replaced; that record's exit was lost.
func (t *Tracker) Put(tid uint32, rec bpf.Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, replaced := t.pending[tid]
	t.pending[tid] = pending{rec: rec, seen: t.now()}
	return replaced
}

// Take removes and returns the enter record for tid (command).
func (t *Tracker) Take(tid uint32) (bpf.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[tid]
	if ok {
		delete(t.pending, tid)
	}
	return p.rec, ok
}

// Peek returns the enter record for tid without removing it (query).
func (t *Tracker) Peek(tid uint32) (bpf.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pending[tid]
	return p.rec, ok
}

// Len returns the number of pending records (query).
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// Cleanup drops records older than maxAge and returns how many were dropped (command).
// Threads that exit inside a syscall leave such records behind.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	dropped := 0
	for tid, p := range t.pending {
		if p.seen.Before(cutoff) {
			delete(t.pending, tid)
			dropped++
		}
	}
	return dropped
}
