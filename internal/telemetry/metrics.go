// Package telemetry holds the OpenTelemetry instruments shared by the
// file tracer and its event sources.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MeterName is the instrumentation scope of every instrument here.
const MeterName = "github.com/mrzor/file-tracer"

// Metrics records tracer activity. A nil *Metrics records nothing.
type Metrics struct {
	probeHits            metric.Int64Counter
	linesEmitted         metric.Int64Counter
	dumpFaults           metric.Int64Counter
	registrationFailures metric.Int64Counter
	eventsDropped        metric.Int64Counter
}

// New creates the instruments on meter, or on the global meter provider
// when meter is nil. Instruments that fail to build are logged and skipped.
func New(meter metric.Meter, logger *zap.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{}
	var err error

	m.probeHits, err = meter.Int64Counter("filetrace_probe_hits_total",
		metric.WithDescription("Enabled probe invocations by event kind"))
	if err != nil {
		logger.Warn("Failed to create probe hits counter", zap.Error(err))
	}

	m.linesEmitted, err = meter.Int64Counter("filetrace_lines_emitted_total",
		metric.WithDescription("Trace lines handed to the sink"))
	if err != nil {
		logger.Warn("Failed to create lines emitted counter", zap.Error(err))
	}

	m.dumpFaults, err = meter.Int64Counter("filetrace_dump_faults_total",
		metric.WithDescription("Payload dumps aborted by a copy or allocation fault"))
	if err != nil {
		logger.Warn("Failed to create dump faults counter", zap.Error(err))
	}

	m.registrationFailures, err = meter.Int64Counter("filetrace_registration_failures_total",
		metric.WithDescription("Probe set registrations that were rolled back"))
	if err != nil {
		logger.Warn("Failed to create registration failures counter", zap.Error(err))
	}

	m.eventsDropped, err = meter.Int64Counter("filetrace_events_dropped_total",
		metric.WithDescription("Source events dropped before reaching the bus"))
	if err != nil {
		logger.Warn("Failed to create events dropped counter", zap.Error(err))
	}

	return m
}

// ProbeHit counts one enabled probe invocation.
func (m *Metrics) ProbeHit(kind string) {
	if m == nil || m.probeHits == nil {
		return
	}
	m.probeHits.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// LineEmitted counts one trace line.
func (m *Metrics) LineEmitted() {
	if m == nil || m.linesEmitted == nil {
		return
	}
	m.linesEmitted.Add(context.Background(), 1)
}

// DumpFault counts one aborted payload dump.
func (m *Metrics) DumpFault(direction string) {
	if m == nil || m.dumpFaults == nil {
		return
	}
	m.dumpFaults.Add(context.Background(), 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RegistrationFailed counts one rolled back registration.
func (m *Metrics) RegistrationFailed(probe string) {
	if m == nil || m.registrationFailures == nil {
		return
	}
	m.registrationFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("probe", probe)))
}

// EventDropped counts one source event that never reached the bus.
func (m *Metrics) EventDropped(reason string) {
	if m == nil || m.eventsDropped == nil {
		return
	}
	m.eventsDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
