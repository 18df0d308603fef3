// Package fileops wraps os.File so that every open, close, seek, read and
// write fires the matching eventbus tracepoint, with outcomes encoded the
// way system calls return them: a count or descriptor on success, a negated
// errno on failure.
package fileops

import (
	"errors"
	"io"
	"math"
	"os"

	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/payload"
	"golang.org/x/sys/unix"
)

// File is an instrumented *os.File.
type File struct {
	f   *os.File
	bus *eventbus.Bus
	pid int32
	fd  int32
}

var _ io.ReadWriteSeeker = (*File)(nil)

// Open opens name like os.OpenFile and fires file_open.
func Open(bus *eventbus.Bus, name string, flag int, perm os.FileMode) (*File, error) {
	pid := int32(os.Getpid())
	f, err := os.OpenFile(name, flag, perm)

	args := eventbus.OpenArgs{
		Pid:      pid,
		Filename: name,
		Flags:    int32(flag),
		Mode:     int32(perm.Perm()),
	}
	if err != nil {
		args.Ret = -errnoOf(err)
		bus.FileOpen.Fire(args)
		return nil, err
	}

	fd := int32(f.Fd())
	args.Ret = fd
	bus.FileOpen.Fire(args)
	return &File{f: f, bus: bus, pid: pid, fd: fd}, nil
}

// Fd returns the descriptor reported in trace events.
func (f *File) Fd() int32 {
	return f.fd
}

// Name returns the file name.
func (f *File) Name() string {
	return f.f.Name()
}

// Read reads into p and fires file_read with p as the payload region.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.f.Read(p)

	var ret int32
	switch {
	case n > 0:
		ret = clamp(n)
	case errors.Is(err, io.EOF):
		ret = 0
	case err != nil:
		ret = -errnoOf(err)
	}
	f.bus.FileRead.Fire(eventbus.ReadArgs{Pid: f.pid, Fd: f.fd, Size: clamp(len(p)), Ret: ret, Buf: payload.Bytes(p)})
	return n, err
}

// Write writes p and fires file_write with p as the payload region.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)

	ret := clamp(n)
	if err != nil && n == 0 {
		ret = -errnoOf(err)
	}
	f.bus.FileWrite.Fire(eventbus.WriteArgs{Pid: f.pid, Fd: f.fd, Size: clamp(len(p)), Ret: ret, Buf: payload.Bytes(p)})
	return n, err
}

// Seek seeks and fires file_lseek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.f.Seek(offset, whence)

	ret := clamp64(pos)
	if err != nil {
		ret = -errnoOf(err)
	}
	f.bus.FileLseek.Fire(eventbus.LseekArgs{Pid: f.pid, Fd: f.fd, Offset: clamp64(offset), Whence: int32(whence), Ret: ret})
	return pos, err
}

// Close closes the file and fires file_close.
func (f *File) Close() error {
	err := f.f.Close()

	var ret int32
	if err != nil {
		ret = -errnoOf(err)
	}
	f.bus.FileClose.Fire(eventbus.CloseArgs{Pid: f.pid, Fd: f.fd, Ret: ret})
	return err
}

// errnoOf extracts the errno behind err, or EIO when there is none.
func errnoOf(err error) int32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	if errors.Is(err, os.ErrClosed) {
		return int32(unix.EBADF)
	}
	return int32(unix.EIO)
}

func clamp(n int) int32 {
	return clamp64(int64(n))
}

func clamp64(n int64) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}
