package filetrace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/telemetry"
	"go.uber.org/zap"
)

// Binding attaches and detaches one probe.
type Binding struct {
	Name   string
	Bind   func() error
	Unbind func() error
}

// bindProbe creates the binding of fn on tp. The probe handle is created
// once so Unbind always removes what Bind attached.
func bindProbe[T any](tp *eventbus.Tracepoint[T], fn func(T)) Binding {
	p := eventbus.NewProbe(tp.Name(), fn)
	return Binding{
		Name:   tp.Name(),
		Bind:   func() error { return tp.Register(p) },
		Unbind: func() error { return tp.Unregister(p) },
	}
}

// Coordinator registers a set of bindings as one unit.
//
//	RegisterAll:   bind[0] .. bind[n-1]
//	  on bind[k] failure: unbind[k-1] .. unbind[0], return the error
//	UnregisterAll: unbind[0] .. unbind[n-1], each attempted
type Coordinator struct {
	mu       sync.Mutex
	bindings []Binding
	bound    bool
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// NewCoordinator creates a coordinator over bindings, in bind order.
func NewCoordinator(bindings []Binding, logger *zap.Logger, metrics *telemetry.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		bindings: bindings,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterAll binds every probe or none. Calling it while the set is
// already bound succeeds without binding again.
func (c *Coordinator) RegisterAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound {
		return nil
	}

	for i, b := range c.bindings {
		if err := b.Bind(); err != nil {
			c.rollback(i)
			c.metrics.RegistrationFailed(b.Name)
			return fmt.Errorf("registering %s probe: %w", b.Name, err)
		}
	}

	c.bound = true
	return nil
}

// rollback unbinds the first n bindings in reverse order.
func (c *Coordinator) rollback(n int) {
	for i := n - 1; i >= 0; i-- {
		if err := c.bindings[i].Unbind(); err != nil {
			c.logger.Warn("Failed to unregister probe during rollback",
				zap.String("probe", c.bindings[i].Name), zap.Error(err))
		}
	}
}

// UnregisterAll unbinds every probe. Probes that are not bound are skipped.
func (c *Coordinator) UnregisterAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.bindings {
		err := b.Unbind()
		if err != nil && !errors.Is(err, eventbus.ErrNotRegistered) {
			c.logger.Warn("Failed to unregister probe",
				zap.String("probe", b.Name), zap.Error(err))
		}
	}
	c.bound = false
}

// Bound reports whether the full set is registered.
func (c *Coordinator) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}
