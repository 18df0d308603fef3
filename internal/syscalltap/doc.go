// Package syscalltap turns kernel syscall records into file tracepoint fires.
//
// The BPF programs emit one record at sys_enter and one at sys_exit for
// every openat, open, close, lseek, read and write in the system. The Tap
// pairs them by thread id, drops processes outside its scope, applies the
// optional event filter and fires the matching eventbus tracepoint:
//
//	ring buffer ──▶ eventstream ──▶ Tap.HandleRecord
//	                                    │
//	                    enter ──▶ inflight.Tracker
//	                    exit  ──▶ Take(tid) ──▶ filter ──▶ bus.FileXxx.Fire
//
// Read and write buffers are handed to the bus as payload.ProcessRegion
// values, so the data dump copies from the traced process after the call
// returned. A buffer reused or unmapped in between shows up as a fault
// marker or as newer bytes.
package syscalltap
