package syscalltap

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mrzor/file-tracer/internal/bpf"
	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/filter"
	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/inflight"
	"github.com/mrzor/file-tracer/internal/payload"
	"github.com/mrzor/file-tracer/internal/telemetry"

	"go.uber.org/zap"
)

// Drop reasons reported to telemetry.
const (
	DropUnpaired = "unpaired"
	DropFiltered = "filtered"
	DropStale    = "stale"
)

// maxFilename bounds how much of an open path is read.
const maxFilename = 4096

// Memory reads from a traced process.
type Memory interface {
	Region(pid int, addr uint64) payload.Region
	String(pid int, addr uint64) (string, error)
}

type processMemory struct{}

func (processMemory) Region(pid int, addr uint64) payload.Region {
	return payload.ProcessRegion{Pid: pid, Addr: addr}
}

func (processMemory) String(pid int, addr uint64) (string, error) {
	return payload.ProcessRegion{Pid: pid, Addr: addr}.ReadString(maxFilename)
}

// Tap implements eventstream.RecordHandler.
type Tap struct {
	bus     *eventbus.Bus
	tracker *inflight.Tracker
	filter  *filter.Filter
	memory  Memory
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu      sync.RWMutex
	tracked map[uint32]struct{} // TGIDs in scope; empty means every process
	ignored map[uint32]struct{}
}

// Option configures a Tap.
type Option func(*Tap)

// WithFilter drops events the filter does not match.
func WithFilter(f *filter.Filter) Option {
	return func(t *Tap) { t.filter = f }
}

// WithMemory replaces the process_vm_readv reader.
func WithMemory(m Memory) Option {
	return func(t *Tap) { t.memory = m }
}

// WithMetrics sets the drop counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(t *Tap) { t.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tap) { t.logger = l }
}

// New creates a Tap firing into bus. The calling process is always ignored,
// otherwise writing the trace would itself be traced.
func New(bus *eventbus.Bus, opts ...Option) *Tap {
	t := &Tap{
		bus:     bus,
		tracker: inflight.NewTracker(),
		memory:  processMemory{},
		logger:  zap.NewNop(),
		tracked: make(map[uint32]struct{}),
		ignored: map[uint32]struct{}{uint32(os.Getpid()): {}}, //nolint:gosec // pids fit in uint32
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track adds a process to the scope. Once any process is tracked, records
// from untracked processes are discarded.
func (t *Tap) Track(tgid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[tgid] = struct{}{}
}

// Ignore removes a process from the scope.
func (t *Tap) Ignore(tgid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignored[tgid] = struct{}{}
}

func (t *Tap) inScope(tgid uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.ignored[tgid]; ok {
		return false
	}
	if len(t.tracked) == 0 {
		return true
	}
	_, ok := t.tracked[tgid]
	return ok
}

// Pending returns the number of syscalls waiting for their exit record.
func (t *Tap) Pending() int {
	return t.tracker.Len()
}

// Sweep forgets enter records older than maxAge.
func (t *Tap) Sweep(maxAge time.Duration) {
	for n := t.tracker.Cleanup(maxAge); n > 0; n-- {
		t.metrics.EventDropped(DropStale)
	}
}

// HandleRecord pairs rec with its counterpart and fires the tracepoint once
// both halves are known.
func (t *Tap) HandleRecord(rec *bpf.Record) error {
	if !t.inScope(rec.Tgid()) {
		return nil
	}

	tid := rec.Tid()
	if rec.IsEnter() {
		if t.tracker.Put(tid, *rec) {
			t.metrics.EventDropped(DropUnpaired)
		}
		return nil
	}

	enter, ok := t.tracker.Take(tid)
	if !ok || enter.Tag != bpf.EnterTag(rec.Tag) {
		t.metrics.EventDropped(DropUnpaired)
		return nil
	}

	return t.publish(&enter, int32(int64(rec.Args[0]))) //nolint:gosec // ret is an int64 slot, tracepoints carry int32
}

func (t *Tap) publish(enter *bpf.Record, ret int32) error {
	pid := int32(enter.Tid()) //nolint:gosec // kernel pids fit in int32
	tgid := int(enter.Tgid())
	a := enter.Args

	fields := filter.Fields{Pid: tgid, Tid: int(pid), Fd: int(int32(a[0])), Ret: int(ret)} //nolint:gosec
	switch enter.Tag {
	case bpf.TAG_OPENAT_ENTER:
		return t.publishOpen(fields, a[1], int32(a[2]), int32(a[3])) //nolint:gosec
	case bpf.TAG_OPEN_ENTER:
		return t.publishOpen(fields, a[0], int32(a[1]), int32(a[2])) //nolint:gosec
	case bpf.TAG_CLOSE_ENTER:
		fields.Kind = filetrace.KindClose.String()
		args := eventbus.CloseArgs{Pid: pid, Fd: int32(fields.Fd), Ret: ret} //nolint:gosec
		return t.fire(fields, func() { t.bus.FileClose.Fire(args) })
	case bpf.TAG_LSEEK_ENTER:
		fields.Kind = filetrace.KindLseek.String()
		args := eventbus.LseekArgs{Pid: pid, Fd: int32(fields.Fd), Offset: int32(int64(a[1])), Whence: int32(a[2]), Ret: ret} //nolint:gosec
		return t.fire(fields, func() { t.bus.FileLseek.Fire(args) })
	case bpf.TAG_READ_ENTER:
		fields.Kind = filetrace.KindRead.String()
		fields.Size = int(int32(a[2])) //nolint:gosec
		args := eventbus.ReadArgs{Pid: pid, Fd: int32(fields.Fd), Size: int32(fields.Size), Ret: ret, Buf: t.memory.Region(tgid, a[1])} //nolint:gosec
		return t.fire(fields, func() { t.bus.FileRead.Fire(args) })
	case bpf.TAG_WRITE_ENTER:
		fields.Kind = filetrace.KindWrite.String()
		fields.Size = int(int32(a[2])) //nolint:gosec
		args := eventbus.WriteArgs{Pid: pid, Fd: int32(fields.Fd), Size: int32(fields.Size), Ret: ret, Buf: t.memory.Region(tgid, a[1])} //nolint:gosec
		return t.fire(fields, func() { t.bus.FileWrite.Fire(args) })
	default:
		return fmt.Errorf("unknown record tag %d", enter.Tag)
	}
}

func (t *Tap) publishOpen(fields filter.Fields, nameAddr uint64, flags, mode int32) error {
	name, err := t.memory.String(fields.Pid, nameAddr)
	if err != nil {
		t.logger.Debug("reading open filename", zap.Int("tid", fields.Tid), zap.String("prefix", name), zap.Error(err))
		if name == "" {
			name = "?"
		}
	}
	fields.Kind = filetrace.KindOpen.String()
	fields.Fd = -1
	fields.Filename = name
	args := eventbus.OpenArgs{
		Pid:      int32(fields.Tid), //nolint:gosec
		Filename: name,
		Flags:    flags,
		Mode:     mode,
		Ret:      int32(fields.Ret), //nolint:gosec
	}
	return t.fire(fields, func() { t.bus.FileOpen.Fire(args) })
}

// fire runs the filter, then the tracepoint.
func (t *Tap) fire(fields filter.Fields, fireFn func()) error {
	ok, err := t.filter.Match(fields)
	if err != nil {
		return err
	}
	if !ok {
		t.metrics.EventDropped(DropFiltered)
		return nil
	}
	fireFn()
	return nil
}
