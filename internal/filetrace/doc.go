// Package filetrace is the file operation tracer.
//
// It attaches five probes to the eventbus file tracepoints and renders each
// event as one text line:
//
//	tracepoint ──→ probe ──→ Formatter ──→ LineSink ──→ tracing.Session
//	                             │
//	                             └──→ Dumper (read/write payloads)
//	                                  one fixed-size chunk at a time
//
// Line formats:
//
//	<pid> OPEN <file> <flags %#x> <mode %#o> SUCCESS <fd> | ERR <errno>
//	<pid> CLOSE <fd> SUCCESS | ERR <ret>
//	<pid> LSEEK <fd> <offset> <whence> SUCCESS <pos> | ERR <errno>
//	<pid> READ <fd> <size> SUCCESS <n> | EOF | ERR <errno>
//	<pid> WRITE <fd> <size> SUCCESS <n> | ERR <errno>
//	<pid> READ_DATA xx xx ...        <pid> WRITE_DATA xx xx ...
//	READ_DATA_FAULT                  WRITE_DATA_FAULT
//
// The probe set registers as a unit: if any tracepoint rejects its probe,
// the ones already attached are detached in reverse order.
package filetrace
