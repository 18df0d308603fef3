package payload

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ProcessRegion is a region inside another process's address space.
// Copies go through process_vm_readv, so unmapped pages surface as ErrFault
// instead of crashing the tracer.
type ProcessRegion struct {
	Pid  int
	Addr uint64
}

// CopyAt implements Region.
func (r ProcessRegion) CopyAt(dst []byte, off int64) error {
	if len(dst) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &dst[0]}}
	local[0].SetLen(len(dst))
	remote := []unix.RemoteIovec{{Base: uintptr(r.Addr + uint64(off)), Len: len(dst)}}

	n, err := unix.ProcessVMReadv(r.Pid, local, remote, 0)
	if err != nil {
		if errors.Is(err, unix.EFAULT) || errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EPERM) {
			return fmt.Errorf("read pid %d at %#x: %v: %w", r.Pid, r.Addr+uint64(off), err, ErrFault)
		}
		return fmt.Errorf("read pid %d at %#x: %w", r.Pid, r.Addr+uint64(off), err)
	}
	if n != len(dst) {
		return fmt.Errorf("short read of pid %d at %#x (%d of %d): %w", r.Pid, r.Addr+uint64(off), n, len(dst), ErrFault)
	}
	return nil
}

// ReadString reads a NUL-terminated string of at most limit bytes from the
// process, one page-bounded piece at a time.
func (r ProcessRegion) ReadString(limit int) (string, error) {
	const step = 256
	buf := make([]byte, 0, step)
	chunk := make([]byte, step)
	for len(buf) < limit {
		n := step
		// Stay inside the current page so a valid string followed by an
		// unmapped page still reads.
		if rem := 4096 - int((r.Addr+uint64(len(buf)))%4096); rem < n {
			n = rem
		}
		if limit-len(buf) < n {
			n = limit - len(buf)
		}
		if err := r.CopyAt(chunk[:n], int64(len(buf))); err != nil {
			return string(buf), err
		}
		for i := 0; i < n; i++ {
			if chunk[i] == 0 {
				return string(append(buf, chunk[:i]...)), nil
			}
		}
		buf = append(buf, chunk[:n]...)
	}
	return string(buf), nil
}
