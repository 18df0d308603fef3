package filetrace

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/payload"
	"github.com/mrzor/file-tracer/internal/telemetry"
	"github.com/mrzor/file-tracer/internal/tracing"
	"go.uber.org/zap"
)

// Name is the tracer name used to select it on the host.
const Name = "file_trace"

// Tracer is the file operation tracer. It owns the probe set, the enabled
// flag and the session it emits into.
type Tracer struct {
	enabled   atomic.Bool
	session   atomic.Pointer[tracing.Session]
	formatter *Formatter
	coord     *Coordinator
	host      *tracing.Registry
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Tracer.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *telemetry.Metrics
	alloc   payload.ChunkAllocator
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithChunkAllocator sets where payload chunks come from.
func WithChunkAllocator(alloc payload.ChunkAllocator) Option {
	return func(o *options) { o.alloc = alloc }
}

// WithChunkSize sets the payload bytes per line.
func WithChunkSize(n int) Option {
	return func(o *options) { o.alloc = payload.NewPool(n) }
}

// New creates a disabled tracer whose probes target bus. Nothing is
// registered yet.
func New(bus *eventbus.Bus, opts ...Option) *Tracer {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	t := &Tracer{
		logger:  o.logger.Named(Name),
		metrics: o.metrics,
	}
	t.formatter = NewFormatter(t, NewDumper(t, o.alloc, o.metrics))
	t.coord = NewCoordinator(t.bindings(bus), t.logger, o.metrics)
	return t
}

// Load registers the probe set on bus and makes the tracer available on
// host. The probes stay disabled until the host selects the tracer.
func Load(bus *eventbus.Bus, host *tracing.Registry, opts ...Option) (*Tracer, error) {
	t := New(bus, opts...)
	if err := t.coord.RegisterAll(); err != nil {
		return nil, err
	}
	if err := host.Register(t); err != nil {
		t.coord.UnregisterAll()
		return nil, fmt.Errorf("registering tracer: %w", err)
	}
	t.host = host
	return t, nil
}

// Unload detaches the tracer from its host and the bus.
func (t *Tracer) Unload() {
	if t.host != nil {
		if err := t.host.Unregister(Name); err != nil {
			t.logger.Warn("Failed to unregister tracer", zap.Error(err))
		}
		t.host = nil
	}
	// Unregistering the current tracer already stopped it.
	if t.coord.Bound() {
		t.Stop()
	}
}

// Name implements tracing.Tracer.
func (t *Tracer) Name() string {
	return Name
}

// Init implements tracing.Tracer. It resets the session and starts tracing.
func (t *Tracer) Init(s *tracing.Session) error {
	t.session.Store(s)
	s.Reset()
	return t.Start()
}

// Reset implements tracing.Tracer.
func (t *Tracer) Reset(_ *tracing.Session) {
	t.Stop()
}

// Start registers the probes and enables them. If registration fails the
// tracer stays disabled.
func (t *Tracer) Start() error {
	if err := t.coord.RegisterAll(); err != nil {
		t.logger.Error("Failed to register probes", zap.Error(err))
		return err
	}
	t.enabled.Store(true)
	t.logger.Info("File tracing enabled")
	return nil
}

// Stop disables the probes, then unregisters them.
func (t *Tracer) Stop() {
	t.enabled.Store(false)
	t.coord.UnregisterAll()
	t.logger.Info("File tracing disabled")
}

// Enabled reports whether probes currently trace.
func (t *Tracer) Enabled() bool {
	return t.enabled.Load()
}

// Registered reports whether the probe set is attached to the bus.
func (t *Tracer) Registered() bool {
	return t.coord.Bound()
}

// EmitLine implements LineSink by forwarding to the current session.
func (t *Tracer) EmitLine(line string) {
	s := t.session.Load()
	if s == nil {
		return
	}
	t.metrics.LineEmitted()
	s.EmitLine(line)
}

func (t *Tracer) hit(k Kind) {
	t.metrics.ProbeHit(strings.ToLower(k.String()))
}
