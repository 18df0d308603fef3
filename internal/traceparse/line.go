// Package traceparse reads file_trace output back into events.
//
// ParseLine decodes one line. Parse walks a whole trace and stitches the
// READ_DATA/WRITE_DATA chunks that follow a READ or WRITE line back into
// the payload of that event. A payload is complete when the next non-data
// line for the same pid arrives, when a fault marker ends it, or at end of
// input. Fault markers carry no pid; they close the most recent open payload
// of their direction.
//
// Lines may carry the "seconds.micros: " stamp written by the ring sink.
// Lines starting with '#' and blank lines are skipped.
package traceparse

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mrzor/file-tracer/internal/filetrace"
)

// ErrMalformed is returned for lines that are not file_trace output.
var ErrMalformed = errors.New("malformed trace line")

// LineKind classifies a decoded line.
type LineKind uint8

const (
	LineSkip LineKind = iota
	LineEvent
	LineData
	LineFault
)

// Line is one decoded trace line.
type Line struct {
	Kind    LineKind
	Time    time.Duration
	Stamped bool

	// Pid is set for event and data lines.
	Pid int32
	// Event is set for LineEvent. Read and write events have no Buf.
	Event filetrace.Event
	// Dir is set for LineData and LineFault.
	Dir  filetrace.Direction
	Data []byte
}

var stampPattern = regexp.MustCompile(`^\s*(\d+)\.(\d{6}): `)

// ParseLine decodes a single trace line.
func ParseLine(text string) (Line, error) {
	var l Line
	text = strings.TrimRight(text, "\r\n")

	if m := stampPattern.FindStringSubmatch(text); m != nil {
		secs, _ := strconv.ParseInt(m[1], 10, 64)   //nolint:errcheck // digits only
		micros, _ := strconv.ParseInt(m[2], 10, 64) //nolint:errcheck // digits only
		l.Time = time.Duration(secs)*time.Second + time.Duration(micros)*time.Microsecond
		l.Stamped = true
		text = text[len(m[0]):]
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		l.Kind = LineSkip
		return l, nil
	}

	switch trimmed {
	case filetrace.DirectionRead.FaultTag():
		l.Kind, l.Dir = LineFault, filetrace.DirectionRead
		return l, nil
	case filetrace.DirectionWrite.FaultTag():
		l.Kind, l.Dir = LineFault, filetrace.DirectionWrite
		return l, nil
	}

	pidText, rest, ok := strings.Cut(trimmed, " ")
	if !ok {
		return l, malformed(text, "missing operation")
	}
	pid, err := parseInt32(pidText)
	if err != nil {
		return l, malformed(text, "bad pid")
	}
	l.Pid = pid

	op, args, _ := strings.Cut(rest, " ")
	switch op {
	case filetrace.DirectionRead.DataTag():
		return dataLine(l, filetrace.DirectionRead, args, text)
	case filetrace.DirectionWrite.DataTag():
		return dataLine(l, filetrace.DirectionWrite, args, text)
	case filetrace.KindOpen.String():
		l.Event, err = parseOpen(pid, args)
	case filetrace.KindClose.String():
		l.Event, err = parseClose(pid, strings.Fields(args))
	case filetrace.KindLseek.String():
		l.Event, err = parseSeek(pid, strings.Fields(args))
	case filetrace.KindRead.String():
		l.Event, err = parseRead(pid, strings.Fields(args))
	case filetrace.KindWrite.String():
		l.Event, err = parseWrite(pid, strings.Fields(args))
	default:
		return l, malformed(text, "unknown operation "+strconv.Quote(op))
	}
	if err != nil {
		return l, malformed(text, err.Error())
	}
	l.Kind = LineEvent
	return l, nil
}

func dataLine(l Line, dir filetrace.Direction, args, text string) (Line, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return l, malformed(text, "bad data chunk length")
	}
	l.Kind, l.Dir = LineData, dir
	l.Data = make([]byte, len(fields))
	for i, f := range fields {
		if len(f) != 2 {
			return l, malformed(text, "bad data byte "+strconv.Quote(f))
		}
		if _, err := hex.Decode(l.Data[i:i+1], []byte(f)); err != nil {
			return l, malformed(text, err.Error())
		}
	}
	return l, nil
}

// parseOpen reads the four fixed fields from the right so file names may
// contain spaces.
func parseOpen(pid int32, args string) (filetrace.Event, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 {
		return nil, errors.New("short OPEN line")
	}
	tail := fields[len(fields)-4:]

	name := strings.TrimRight(args, " ")
	for range tail {
		i := strings.LastIndexByte(name, ' ')
		if i < 0 {
			name = ""
			break
		}
		name = strings.TrimRight(name[:i], " ")
	}
	ev := filetrace.FileOpen{Pid: pid, Filename: name}

	flags, err := strconv.ParseUint(tail[0], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("bad flags: %w", err)
	}
	mode, err := strconv.ParseUint(tail[1], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("bad mode: %w", err)
	}
	ev.Flags = int32(uint32(flags)) //nolint:gosec // printed from a uint32
	ev.Mode = int32(uint32(mode))   //nolint:gosec // printed from a uint32

	ev.Ret, err = outcome(tail[2], tail[3])
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func parseClose(pid int32, f []string) (filetrace.Event, error) {
	if len(f) < 2 {
		return nil, errors.New("short CLOSE line")
	}
	fd, err := parseInt32(f[0])
	if err != nil {
		return nil, fmt.Errorf("bad fd: %w", err)
	}
	ev := filetrace.FileClose{Pid: pid, Fd: fd}
	switch {
	case f[1] == "SUCCESS" && len(f) == 2:
	case f[1] == "ERR" && len(f) == 3:
		// CLOSE prints its return value unnegated.
		if ev.Ret, err = parseInt32(f[2]); err != nil {
			return nil, fmt.Errorf("bad ret: %w", err)
		}
	default:
		return nil, errors.New("bad CLOSE outcome")
	}
	return ev, nil
}

func parseSeek(pid int32, f []string) (filetrace.Event, error) {
	nums, err := leadingInts(f, 3, 5)
	if err != nil {
		return nil, err
	}
	ret, err := outcome(f[3], f[4])
	if err != nil {
		return nil, err
	}
	return filetrace.FileSeek{Pid: pid, Fd: nums[0], Offset: nums[1], Whence: nums[2], Ret: ret}, nil
}

func parseRead(pid int32, f []string) (filetrace.Event, error) {
	if len(f) == 3 && f[2] == "EOF" {
		nums, err := leadingInts(f, 2, 3)
		if err != nil {
			return nil, err
		}
		return filetrace.FileRead{Pid: pid, Fd: nums[0], Size: nums[1]}, nil
	}
	nums, err := leadingInts(f, 2, 4)
	if err != nil {
		return nil, err
	}
	ret, err := outcome(f[2], f[3])
	if err != nil {
		return nil, err
	}
	return filetrace.FileRead{Pid: pid, Fd: nums[0], Size: nums[1], Ret: ret}, nil
}

func parseWrite(pid int32, f []string) (filetrace.Event, error) {
	nums, err := leadingInts(f, 2, 4)
	if err != nil {
		return nil, err
	}
	ret, err := outcome(f[2], f[3])
	if err != nil {
		return nil, err
	}
	return filetrace.FileWrite{Pid: pid, Fd: nums[0], Size: nums[1], Ret: ret}, nil
}

// outcome decodes "SUCCESS n" to n and "ERR e" to -e.
func outcome(tag, value string) (int32, error) {
	n, err := parseInt32(value)
	if err != nil {
		return 0, fmt.Errorf("bad result: %w", err)
	}
	switch tag {
	case "SUCCESS":
		return n, nil
	case "ERR":
		return -n, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", tag)
	}
}

func leadingInts(f []string, count, total int) ([]int32, error) {
	if len(f) != total {
		return nil, fmt.Errorf("expected %d fields, got %d", total, len(f))
	}
	out := make([]int32, count)
	for i := 0; i < count; i++ {
		n, err := parseInt32(f[i])
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

func malformed(text, reason string) error {
	return fmt.Errorf("%w: %s: %q", ErrMalformed, reason, text)
}
