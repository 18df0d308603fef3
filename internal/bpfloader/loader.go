// Package bpfloader manages the lifecycle of eBPF programs and their kernel attachments.
package bpfloader

import (
	"errors"
	"fmt"

	"github.com/mrzor/file-tracer/internal/bpf"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"
)

// Loader manages the lifecycle of BPF programs and their attachments.
type Loader struct {
	events   *ebpf.Map
	programs []*ebpf.Program
	links    []link.Link
	logger   *zap.Logger
}

// New creates a new Loader and loads one program per file syscall tracepoint.
func New(logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	events, err := bpf.NewEventsMap()
	if err != nil {
		return nil, err
	}
	l := &Loader{events: events, logger: logger}

	for _, tp := range bpf.Tracepoints {
		prog, err := bpf.NewProgram(tp, events)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("loading BPF objects: %w", err), l.Close())
		}
		l.programs = append(l.programs, prog)
	}

	return l, nil
}

// closeErrorf closes all attached links and returns a formatted error.
func (l *Loader) closeErrorf(errstr string, e error) error {
	for i := len(l.links) - 1; i >= 0; i-- {
		_ = l.links[i].Close() //nolint:errcheck // Best-effort cleanup in error path
	}
	l.links = nil
	return fmt.Errorf("%s: %w", errstr, e)
}

// Attach attaches the BPF programs to their tracepoints. Optional
// tracepoints the kernel does not provide are skipped.
func (l *Loader) Attach() error {
	for i, tp := range bpf.Tracepoints {
		lnk, err := link.Tracepoint(tp.Group, tp.Name, l.programs[i], nil)
		if err != nil {
			if tp.Optional {
				l.logger.Debug("skipping optional tracepoint", zap.String("tracepoint", tp.Name), zap.Error(err))
				continue
			}
			return l.closeErrorf(fmt.Sprintf("attaching %s tracepoint", tp.Name), err)
		}
		l.links = append(l.links, lnk)
	}

	l.logger.Debug("attached tracepoints", zap.Int("count", len(l.links)))
	return nil
}

// OpenRingBuffer opens and returns a ring buffer reader for receiving events.
func (l *Loader) OpenRingBuffer() (*ringbuf.Reader, error) {
	rd, err := ringbuf.NewReader(l.events)
	if err != nil {
		return nil, fmt.Errorf("opening ring buffer: %w", err)
	}
	return rd, nil
}

// Close releases all BPF resources including links and loaded objects.
func (l *Loader) Close() error {
	var errs []error

	for i := len(l.links) - 1; i >= 0; i-- {
		if err := l.links[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing link %d: %w", i, err))
		}
	}
	l.links = nil

	for _, prog := range l.programs {
		if err := prog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing program: %w", err))
		}
	}
	l.programs = nil

	if l.events != nil {
		if err := l.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ring buffer map: %w", err))
		}
		l.events = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}

	return nil
}
