// Package eventbus is the publish/subscribe tracepoint mechanism that
// instrumented file operations fire into and tracers attach probes to.
//
// Each file operation has its own typed Tracepoint. Event sources (the
// instrumented files in fileops, the kernel syscall source in syscalltap)
// call Fire; tracers Register probes.
package eventbus

import "github.com/mrzor/file-tracer/internal/payload"

// OpenArgs are the arguments of the file_open tracepoint.
// Ret is the new descriptor, or a negated errno.
type OpenArgs struct {
	Pid      int32
	Filename string
	Flags    int32
	Mode     int32
	Ret      int32
}

// CloseArgs are the arguments of the file_close tracepoint.
type CloseArgs struct {
	Pid int32
	Fd  int32
	Ret int32
}

// LseekArgs are the arguments of the file_lseek tracepoint.
// Ret is the resulting offset, or a negated errno.
type LseekArgs struct {
	Pid    int32
	Fd     int32
	Offset int32
	Whence int32
	Ret    int32
}

// ReadArgs are the arguments of the file_read tracepoint.
// Buf is the caller's buffer and may fault.
type ReadArgs struct {
	Pid  int32
	Fd   int32
	Size int32
	Ret  int32
	Buf  payload.Region
}

// WriteArgs are the arguments of the file_write tracepoint.
type WriteArgs struct {
	Pid  int32
	Fd   int32
	Size int32
	Ret  int32
	Buf  payload.Region
}

// Bus groups the five file tracepoints.
type Bus struct {
	FileOpen  *Tracepoint[OpenArgs]
	FileClose *Tracepoint[CloseArgs]
	FileLseek *Tracepoint[LseekArgs]
	FileRead  *Tracepoint[ReadArgs]
	FileWrite *Tracepoint[WriteArgs]
}

// New creates a bus. The options apply to every tracepoint.
func New(opts ...TracepointOption) *Bus {
	return &Bus{
		FileOpen:  NewTracepoint[OpenArgs]("file_open", opts...),
		FileClose: NewTracepoint[CloseArgs]("file_close", opts...),
		FileLseek: NewTracepoint[LseekArgs]("file_lseek", opts...),
		FileRead:  NewTracepoint[ReadArgs]("file_read", opts...),
		FileWrite: NewTracepoint[WriteArgs]("file_write", opts...),
	}
}
