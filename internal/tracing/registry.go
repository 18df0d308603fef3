package tracing

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrUnknownTracer is returned when selecting a tracer that is not registered.
	ErrUnknownTracer = errors.New("unknown tracer")
	// ErrTracerExists is returned when registering a duplicate tracer name.
	ErrTracerExists = errors.New("tracer already registered")
)

// NopName is the tracer selected when nothing else is.
const NopName = "nop"

// Tracer is a pluggable tracer.
type Tracer interface {
	// Name is the identity used to select the tracer.
	Name() string
	// Init is called when the tracer becomes current.
	Init(s *Session) error
	// Reset is called when another tracer replaces it.
	Reset(s *Session)
}

type nopTracer struct{}

func (nopTracer) Name() string          { return NopName }
func (nopTracer) Init(_ *Session) error { return nil }
func (nopTracer) Reset(_ *Session)      {}

// Registry holds the registered tracers and the current selection.
type Registry struct {
	mu      sync.Mutex
	session *Session
	tracers map[string]Tracer
	order   []string
	current Tracer
	logger  *zap.Logger
}

// NewRegistry creates a registry with only the nop tracer, which is current.
func NewRegistry(session *Session, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	nop := nopTracer{}
	return &Registry{
		session: session,
		tracers: map[string]Tracer{NopName: nop},
		order:   []string{NopName},
		current: nop,
		logger:  logger,
	}
}

// Session returns the registry's trace session.
func (r *Registry) Session() *Session {
	return r.session
}

// Register adds t to the available tracers.
func (r *Registry) Register(t Tracer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, ok := r.tracers[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrTracerExists)
	}
	r.tracers[name] = t
	r.order = append(r.order, name)
	r.logger.Debug("Registered tracer", zap.String("tracer", name))
	return nil
}

// Unregister removes a tracer, resetting it first if it is current.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tracers[name]
	if !ok || name == NopName {
		return fmt.Errorf("%s: %w", name, ErrUnknownTracer)
	}
	if r.current.Name() == name {
		t.Reset(r.session)
		r.current = r.tracers[NopName]
	}
	delete(r.tracers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Available lists tracer names in registration order.
func (r *Registry) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Current returns the name of the current tracer.
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Name()
}

// SetCurrent switches to the named tracer. Selecting the current tracer
// again does nothing.
func (r *Registry) SetCurrent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tracers[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownTracer)
	}
	if r.current.Name() == name {
		return nil
	}

	r.current.Reset(r.session)
	r.current = r.tracers[NopName]

	if err := t.Init(r.session); err != nil {
		r.logger.Warn("Tracer failed to initialize", zap.String("tracer", name), zap.Error(err))
		return fmt.Errorf("initializing tracer %s: %w", name, err)
	}
	r.current = t
	r.logger.Info("Switched tracer", zap.String("tracer", name))
	return nil
}
