package traceparse

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/payload"
)

// Record is one event with its payload collected.
type Record struct {
	// Line is the 1-based line number of the event line.
	Line      int
	Time      time.Duration
	Stamped   bool
	// Event is nil for data that arrived without a READ or WRITE line.
	// Read and write events carry their collected payload as Buf.
	Event     filetrace.Event
	// Dir is the payload direction of read, write and orphan data records.
	Dir       filetrace.Direction
	Data      []byte
	Truncated bool
}

// Reassembler turns a stream of lines into records. It is not safe for
// concurrent use.
type Reassembler struct {
	emit    func(Record) error
	pending map[int32]*Record
	order   []int32 // pending pids, oldest first
	last    map[filetrace.Direction]int32
}

// NewReassembler creates a reassembler delivering records to emit.
func NewReassembler(emit func(Record) error) *Reassembler {
	return &Reassembler{
		emit:    emit,
		pending: make(map[int32]*Record),
		last:    make(map[filetrace.Direction]int32),
	}
}

// Add feeds one decoded line.
func (r *Reassembler) Add(lineNo int, l Line) error {
	switch l.Kind {
	case LineSkip:
		return nil

	case LineData:
		rec, ok := r.pending[l.Pid]
		if !ok || rec.Dir != l.Dir {
			if err := r.flush(l.Pid); err != nil {
				return err
			}
			rec = &Record{Line: lineNo, Time: l.Time, Stamped: l.Stamped, Dir: l.Dir}
			r.hold(l.Pid, rec)
		}
		rec.Data = append(rec.Data, l.Data...)
		r.last[l.Dir] = l.Pid
		return nil

	case LineFault:
		pid, ok := r.last[l.Dir]
		if !ok {
			return nil
		}
		delete(r.last, l.Dir)
		rec, ok := r.pending[pid]
		if !ok || rec.Dir != l.Dir {
			return nil
		}
		rec.Truncated = true
		return r.flush(pid)

	case LineEvent:
		if err := r.flush(l.Pid); err != nil {
			return err
		}
		rec := &Record{Line: lineNo, Time: l.Time, Stamped: l.Stamped, Event: l.Event}
		if !carriesPayload(l.Event) {
			return r.emit(*rec)
		}
		rec.Dir = direction(l.Event)
		r.hold(l.Pid, rec)
		r.last[rec.Dir] = l.Pid
		return nil

	default:
		return fmt.Errorf("unknown line kind %d", l.Kind)
	}
}

// Close flushes every pending record, oldest first.
func (r *Reassembler) Close() error {
	for len(r.order) > 0 {
		if err := r.flush(r.order[0]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reassembler) hold(pid int32, rec *Record) {
	r.pending[pid] = rec
	r.order = append(r.order, pid)
}

func (r *Reassembler) flush(pid int32) error {
	rec, ok := r.pending[pid]
	if !ok {
		return nil
	}
	delete(r.pending, pid)
	for i, p := range r.order {
		if p == pid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	switch ev := rec.Event.(type) {
	case filetrace.FileRead:
		ev.Buf = payload.Bytes(rec.Data)
		rec.Event = ev
	case filetrace.FileWrite:
		ev.Buf = payload.Bytes(rec.Data)
		rec.Event = ev
	}
	return r.emit(*rec)
}

// carriesPayload reports whether data or fault lines may follow ev.
func carriesPayload(ev filetrace.Event) bool {
	switch e := ev.(type) {
	case filetrace.FileRead:
		return e.Ret > 0
	case filetrace.FileWrite:
		return e.Ret != 0 || e.Size < 0
	default:
		return false
	}
}

func direction(ev filetrace.Event) filetrace.Direction {
	if _, ok := ev.(filetrace.FileWrite); ok {
		return filetrace.DirectionWrite
	}
	return filetrace.DirectionRead
}

// Parse reads a whole trace and delivers records to emit. Records surface
// once complete, so interleaved pids may come out of input order.
func Parse(in io.Reader, emit func(Record) error) error {
	r := NewReassembler(emit)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		l, err := ParseLine(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := r.Add(lineNo, l); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	return r.Close()
}

// ParseAll collects every record of a trace.
func ParseAll(in io.Reader) ([]Record, error) {
	var out []Record
	err := Parse(in, func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}
