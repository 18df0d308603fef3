// Package tracing is the host side of the tracer framework.
//
// A Registry holds the available tracers and the current one, the way
// available_tracers and current_tracer do in tracefs:
//
//	SetCurrent("file_trace")
//	   │
//	   ├──→ old.Reset(session)     previous tracer stops
//	   ├──→ current = nop
//	   └──→ new.Init(session)      on error current stays nop
//
// A Session is the trace context handed to tracers. It owns the time origin
// and the Buffer that stores emitted lines.
package tracing
