// Package sink provides tracing.Buffer implementations: a bounded in-memory
// ring, a line writer and an OpenTelemetry span-event sink.
package sink
