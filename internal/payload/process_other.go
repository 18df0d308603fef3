//go:build !linux

package payload

import "fmt"

// ProcessRegion is a region inside another process's address space.
// Only Linux can read it; elsewhere every copy faults.
type ProcessRegion struct {
	Pid  int
	Addr uint64
}

// CopyAt implements Region.
func (r ProcessRegion) CopyAt(_ []byte, _ int64) error {
	return fmt.Errorf("read pid %d: unsupported platform: %w", r.Pid, ErrFault)
}

// ReadString reads a NUL-terminated string from the process.
func (r ProcessRegion) ReadString(_ int) (string, error) {
	return "", r.CopyAt(nil, 0)
}
