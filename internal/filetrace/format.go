package filetrace

import (
	"strconv"
	"strings"
)

// Formatter renders events as trace lines and hands read/write payloads to
// a PayloadDumper.
type Formatter struct {
	sink   LineSink
	dumper PayloadDumper
}

// NewFormatter creates a Formatter.
func NewFormatter(sink LineSink, dumper PayloadDumper) *Formatter {
	return &Formatter{sink: sink, dumper: dumper}
}

// Format emits the lines for ev.
func (f *Formatter) Format(ev Event) {
	switch e := ev.(type) {
	case FileOpen:
		f.formatOpen(e)
	case FileClose:
		f.formatClose(e)
	case FileSeek:
		f.formatSeek(e)
	case FileRead:
		f.formatRead(e)
	case FileWrite:
		f.formatWrite(e)
	}
}

func (f *Formatter) formatOpen(e FileOpen) {
	l := newLine(e.Pid, KindOpen)
	l.str(e.Filename)
	l.str(cHex(uint32(e.Flags)))
	l.str(cOctal(uint32(e.Mode)))
	if e.Ret >= 0 {
		l.str("SUCCESS")
		l.num(int64(e.Ret))
	} else {
		l.str("ERR")
		l.num(-int64(e.Ret))
	}
	f.sink.EmitLine(l.String())
}

func (f *Formatter) formatClose(e FileClose) {
	l := newLine(e.Pid, KindClose)
	l.num(int64(e.Fd))
	if e.Ret == 0 {
		l.str("SUCCESS")
	} else {
		// Close reports the raw return value, not its negation.
		l.str("ERR")
		l.num(int64(e.Ret))
	}
	f.sink.EmitLine(l.String())
}

func (f *Formatter) formatSeek(e FileSeek) {
	l := newLine(e.Pid, KindLseek)
	l.num(int64(e.Fd))
	l.num(int64(e.Offset))
	l.num(int64(e.Whence))
	// A seek landing on offset 0 takes the ERR branch and prints "ERR 0".
	if e.Ret > 0 {
		l.str("SUCCESS")
		l.num(int64(e.Ret))
	} else {
		l.str("ERR")
		l.num(-int64(e.Ret))
	}
	f.sink.EmitLine(l.String())
}

func (f *Formatter) formatRead(e FileRead) {
	l := newLine(e.Pid, KindRead)
	l.num(int64(e.Fd))
	l.num(int64(e.Size))
	switch {
	case e.Ret > 0:
		l.str("SUCCESS")
		l.num(int64(e.Ret))
		f.sink.EmitLine(l.String())
		f.dumper.Dump(e.Pid, e.Buf, e.Ret, DirectionRead)
	case e.Ret == 0:
		l.str("EOF")
		f.sink.EmitLine(l.String())
	default:
		l.str("ERR")
		l.num(-int64(e.Ret))
		f.sink.EmitLine(l.String())
	}
}

// formatWrite dumps the requested size, not the written count, and dumps
// even when the write failed.
func (f *Formatter) formatWrite(e FileWrite) {
	l := newLine(e.Pid, KindWrite)
	l.num(int64(e.Fd))
	l.num(int64(e.Size))
	if e.Ret >= 0 {
		l.str("SUCCESS")
		l.num(int64(e.Ret))
		f.sink.EmitLine(l.String())
		if e.Ret > 0 {
			f.dumper.Dump(e.Pid, e.Buf, e.Size, DirectionWrite)
		}
		return
	}

	l.str("ERR")
	l.num(-int64(e.Ret))
	f.sink.EmitLine(l.String())
	switch {
	case e.Size > 0:
		f.dumper.Dump(e.Pid, e.Buf, e.Size, DirectionWrite)
	case e.Size < 0:
		f.sink.EmitLine(DirectionWrite.FaultTag())
	}
}

// line builds one space separated record.
type line struct {
	strings.Builder
}

func newLine(pid int32, kind Kind) *line {
	l := &line{}
	l.Grow(64)
	l.WriteString(strconv.FormatInt(int64(pid), 10))
	l.str(kind.String())
	return l
}

func (l *line) str(s string) {
	l.WriteByte(' ')
	l.WriteString(s)
}

func (l *line) num(n int64) {
	l.str(strconv.FormatInt(n, 10))
}

// cHex matches printf("%#x"): no prefix for zero.
func cHex(v uint32) string {
	if v == 0 {
		return "0"
	}
	return "0x" + strconv.FormatUint(uint64(v), 16)
}

// cOctal matches printf("%#o").
func cOctal(v uint32) string {
	if v == 0 {
		return "0"
	}
	return "0" + strconv.FormatUint(uint64(v), 8)
}
