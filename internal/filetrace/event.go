package filetrace

import "github.com/mrzor/file-tracer/internal/payload"

// Kind identifies a file operation.
type Kind uint8

// Event kinds, in registration order.
const (
	KindOpen Kind = iota
	KindClose
	KindLseek
	KindRead
	KindWrite
)

var kindNames = [...]string{
	KindOpen:  "OPEN",
	KindClose: "CLOSE",
	KindLseek: "LSEEK",
	KindRead:  "READ",
	KindWrite: "WRITE",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Event is one decoded file operation. The concrete type is one of
// FileOpen, FileClose, FileSeek, FileRead or FileWrite.
type Event interface {
	Kind() Kind
	isEvent()
}

// FileOpen is an open. Ret is the descriptor, or a negated errno.
type FileOpen struct {
	Pid      int32
	Filename string
	Flags    int32
	Mode     int32
	Ret      int32
}

// FileClose is a close. Ret is zero on success.
type FileClose struct {
	Pid int32
	Fd  int32
	Ret int32
}

// FileSeek is an lseek. Ret is the new offset, or a negated errno.
type FileSeek struct {
	Pid    int32
	Fd     int32
	Offset int32
	Whence int32
	Ret    int32
}

// FileRead is a read of Size bytes into Buf. Ret is the byte count, zero at
// end of file, or a negated errno.
type FileRead struct {
	Pid  int32
	Fd   int32
	Size int32
	Ret  int32
	Buf  payload.Region
}

// FileWrite is a write of Size bytes from Buf.
type FileWrite struct {
	Pid  int32
	Fd   int32
	Size int32
	Ret  int32
	Buf  payload.Region
}

func (FileOpen) Kind() Kind  { return KindOpen }
func (FileClose) Kind() Kind { return KindClose }
func (FileSeek) Kind() Kind  { return KindLseek }
func (FileRead) Kind() Kind  { return KindRead }
func (FileWrite) Kind() Kind { return KindWrite }

func (FileOpen) isEvent()  {}
func (FileClose) isEvent() {}
func (FileSeek) isEvent()  {}
func (FileRead) isEvent()  {}
func (FileWrite) isEvent() {}

// Direction says whether a payload was read or written.
type Direction uint8

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	if d == DirectionRead {
		return "read"
	}
	return "write"
}

// DataTag is the tag of a payload line.
func (d Direction) DataTag() string {
	if d == DirectionRead {
		return "READ_DATA"
	}
	return "WRITE_DATA"
}

// FaultTag is the marker emitted when a payload cannot be copied.
func (d Direction) FaultTag() string {
	if d == DirectionRead {
		return "READ_DATA_FAULT"
	}
	return "WRITE_DATA_FAULT"
}

// LineSink receives finished trace lines. Implementations must not retain
// the caller's state and must be safe for concurrent use.
type LineSink interface {
	EmitLine(line string)
}

// LineSinkFunc adapts a function to LineSink.
type LineSinkFunc func(line string)

// EmitLine implements LineSink.
func (f LineSinkFunc) EmitLine(line string) { f(line) }
