// Package bpf builds the kernel programs that capture file system calls.
//
// There is no C object: each syscall tracepoint gets a small program
// assembled here that copies the thread id and up to four syscall
// arguments (or the return value) into a fixed-size ring buffer record.
package bpf

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

// Record tags, one per tracepoint.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	TAG_OPENAT_ENTER = 1
	TAG_OPENAT_EXIT  = 2
	TAG_OPEN_ENTER   = 3
	TAG_OPEN_EXIT    = 4
	TAG_CLOSE_ENTER  = 5
	TAG_CLOSE_EXIT   = 6
	TAG_LSEEK_ENTER  = 7
	TAG_LSEEK_EXIT   = 8
	TAG_READ_ENTER   = 9
	TAG_READ_EXIT    = 10
	TAG_WRITE_ENTER  = 11
	TAG_WRITE_EXIT   = 12
)

// MaxArgs is the number of argument slots in a record.
const MaxArgs = 4

// RecordSize is the size of every ring buffer record.
const RecordSize = 16 + 8*MaxArgs

// ringBufferSize must be a power-of-two multiple of the page size.
const ringBufferSize = 1 << 20

// Offset of the first syscall argument (or of ret) in a syscalls:sys_*
// tracepoint context: 8 bytes of common fields, then __syscall_nr padded to 8.
const ctxArgsOffset = 16

// Tracepoint describes one syscall tracepoint program.
type Tracepoint struct {
	Group string
	Name  string
	Tag   uint64
	// Args is how many 8-byte argument slots the tracepoint carries.
	Args int
	// Optional tracepoints may be missing on some architectures.
	Optional bool
}

// Tracepoints are attached in this order.
var Tracepoints = []Tracepoint{
	{Group: "syscalls", Name: "sys_enter_openat", Tag: TAG_OPENAT_ENTER, Args: 4},
	{Group: "syscalls", Name: "sys_exit_openat", Tag: TAG_OPENAT_EXIT, Args: 1},
	{Group: "syscalls", Name: "sys_enter_open", Tag: TAG_OPEN_ENTER, Args: 3, Optional: true},
	{Group: "syscalls", Name: "sys_exit_open", Tag: TAG_OPEN_EXIT, Args: 1, Optional: true},
	{Group: "syscalls", Name: "sys_enter_close", Tag: TAG_CLOSE_ENTER, Args: 1},
	{Group: "syscalls", Name: "sys_exit_close", Tag: TAG_CLOSE_EXIT, Args: 1},
	{Group: "syscalls", Name: "sys_enter_lseek", Tag: TAG_LSEEK_ENTER, Args: 3},
	{Group: "syscalls", Name: "sys_exit_lseek", Tag: TAG_LSEEK_EXIT, Args: 1},
	{Group: "syscalls", Name: "sys_enter_read", Tag: TAG_READ_ENTER, Args: 3},
	{Group: "syscalls", Name: "sys_exit_read", Tag: TAG_READ_EXIT, Args: 1},
	{Group: "syscalls", Name: "sys_enter_write", Tag: TAG_WRITE_ENTER, Args: 3},
	{Group: "syscalls", Name: "sys_exit_write", Tag: TAG_WRITE_EXIT, Args: 1},
}

// Record matches the bytes a program writes to the ring buffer.
type Record struct {
	Tag     uint64
	PidTgid uint64
	Args    [MaxArgs]uint64
}

// Tid returns the kernel pid (thread id) that made the call.
func (r *Record) Tid() uint32 {
	return uint32(r.PidTgid)
}

// Tgid returns the process id.
func (r *Record) Tgid() uint32 {
	return uint32(r.PidTgid >> 32)
}

// IsEnter reports whether the record comes from a sys_enter tracepoint.
func (r *Record) IsEnter() bool {
	return r.Tag%2 == 1
}

// EnterTag returns the sys_enter tag paired with an exit tag.
func EnterTag(exitTag uint64) uint64 {
	return exitTag - 1
}

// DecodeRecord parses one ring buffer sample.
func DecodeRecord(raw []byte) (Record, error) {
	var r Record
	if len(raw) < RecordSize {
		return r, fmt.Errorf("record too short: %d bytes", len(raw))
	}
	r.Tag = binary.NativeEndian.Uint64(raw[0:])
	r.PidTgid = binary.NativeEndian.Uint64(raw[8:])
	for i := range r.Args {
		r.Args[i] = binary.NativeEndian.Uint64(raw[16+8*i:])
	}
	return r, nil
}

// NewEventsMap creates the ring buffer shared by all programs.
func NewEventsMap() (*ebpf.Map, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "file_events",
		Type:       ebpf.RingBuf,
		MaxEntries: ringBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ring buffer map: %w", err)
	}
	return m, nil
}

// NewProgram loads the program for tp, writing into events.
func NewProgram(tp Tracepoint, events *ebpf.Map) (*ebpf.Program, error) {
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         progName(tp.Tag),
		Type:         ebpf.TracePoint,
		License:      "GPL",
		Instructions: Instructions(tp.Tag, tp.Args, events.FD()),
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s program: %w", tp.Name, err)
	}
	return prog, nil
}

// Instructions assembles:
//
//	rec.tag      = tag
//	rec.pid_tgid = bpf_get_current_pid_tgid()
//	rec.args[i]  = ctx->args[i]  for i < args, else 0
//	bpf_ringbuf_output(events, &rec, sizeof(rec), 0)
//
// The record lives at fp-RecordSize.
func Instructions(tag uint64, args int, eventsFD int) asm.Instructions {
	const base = -RecordSize

	insns := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),
		asm.FnGetCurrentPidTgid.Call(),
		asm.StoreMem(asm.RFP, base+8, asm.R0, asm.DWord),
		asm.Mov.Imm(asm.R1, int32(tag)),
		asm.StoreMem(asm.RFP, base, asm.R1, asm.DWord),
	}
	for i := 0; i < MaxArgs; i++ {
		slot := int16(base + 16 + 8*i)
		if i < args {
			insns = append(insns,
				asm.LoadMem(asm.R1, asm.R6, int16(ctxArgsOffset+8*i), asm.DWord),
				asm.StoreMem(asm.RFP, slot, asm.R1, asm.DWord),
			)
			continue
		}
		insns = append(insns, asm.StoreImm(asm.RFP, slot, 0, asm.DWord))
	}
	return append(insns,
		asm.LoadMapPtr(asm.R1, eventsFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, base),
		asm.Mov.Imm(asm.R3, RecordSize),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnRingbufOutput.Call(),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),
	)
}

func progName(tag uint64) string {
	return fmt.Sprintf("filetrace_%d", tag)
}
