package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrProbeExists is returned when a probe is registered twice on the same tracepoint.
	ErrProbeExists = errors.New("probe already registered")
	// ErrNotRegistered is returned when unregistering a probe that is not attached.
	ErrNotRegistered = errors.New("probe not registered")
	// ErrTooManyProbes is returned when a tracepoint's probe limit is reached.
	ErrTooManyProbes = errors.New("too many probes")
)

// Probe is a callback bound to one tracepoint. Probes are compared by
// identity, so the same *Probe must be passed to Register and Unregister.
type Probe[T any] struct {
	name string
	fn   func(T)
}

// NewProbe wraps fn as a probe.
func NewProbe[T any](name string, fn func(T)) *Probe[T] {
	return &Probe[T]{name: name, fn: fn}
}

// Name returns the probe name.
func (p *Probe[T]) Name() string {
	return p.name
}

// Tracepoint is a typed event with a set of attached probes.
//
// Fire is lock-free: it loads the current probe slice, which writers
// replace wholesale under mu. A probe removed by Unregister may still see
// one in-flight event.
type Tracepoint[T any] struct {
	name      string
	maxProbes int

	mu     sync.Mutex
	probes atomic.Pointer[[]*Probe[T]]
}

// TracepointOption configures a Tracepoint.
type TracepointOption func(*tracepointOptions)

type tracepointOptions struct {
	maxProbes int
}

// WithMaxProbes limits how many probes may attach at once. Zero means no limit.
func WithMaxProbes(n int) TracepointOption {
	return func(o *tracepointOptions) {
		o.maxProbes = n
	}
}

// NewTracepoint creates a tracepoint with no probes.
func NewTracepoint[T any](name string, opts ...TracepointOption) *Tracepoint[T] {
	var o tracepointOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Tracepoint[T]{name: name, maxProbes: o.maxProbes}
}

// Name returns the tracepoint name.
func (tp *Tracepoint[T]) Name() string {
	return tp.name
}

// Register attaches p.
func (tp *Tracepoint[T]) Register(p *Probe[T]) error {
	if p == nil || p.fn == nil {
		return fmt.Errorf("%s: nil probe", tp.name)
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()

	old := tp.load()
	for _, q := range old {
		if q == p {
			return fmt.Errorf("%s: %s: %w", tp.name, p.name, ErrProbeExists)
		}
	}
	if tp.maxProbes > 0 && len(old) >= tp.maxProbes {
		return fmt.Errorf("%s: %s: %w", tp.name, p.name, ErrTooManyProbes)
	}

	next := make([]*Probe[T], len(old), len(old)+1)
	copy(next, old)
	next = append(next, p)
	tp.probes.Store(&next)
	return nil
}

// Unregister detaches p.
func (tp *Tracepoint[T]) Unregister(p *Probe[T]) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	old := tp.load()
	for i, q := range old {
		if q != p {
			continue
		}
		next := make([]*Probe[T], 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		tp.probes.Store(&next)
		return nil
	}

	name := "<nil>"
	if p != nil {
		name = p.name
	}
	return fmt.Errorf("%s: %s: %w", tp.name, name, ErrNotRegistered)
}

// Fire calls every attached probe synchronously, in registration order.
func (tp *Tracepoint[T]) Fire(args T) {
	for _, p := range tp.load() {
		p.fn(args)
	}
}

// Enabled reports whether any probe is attached.
func (tp *Tracepoint[T]) Enabled() bool {
	return len(tp.load()) > 0
}

// Probes returns the names of the attached probes.
func (tp *Tracepoint[T]) Probes() []string {
	probes := tp.load()
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.name
	}
	return names
}

func (tp *Tracepoint[T]) load() []*Probe[T] {
	if p := tp.probes.Load(); p != nil {
		return *p
	}
	return nil
}
