// Package payload describes caller-owned byte regions that may become
// unreadable at any point, and the fixed-size scratch chunks used to stage
// copies out of them.
package payload

import (
	"errors"
	"fmt"
)

// ErrFault is returned when a region cannot be read at the requested offset.
var ErrFault = errors.New("bad address")

// Region is memory owned by the traced caller.
// CopyAt fills dst with the bytes at off, or fails without a partial result
// being meaningful to the caller.
type Region interface {
	CopyAt(dst []byte, off int64) error
}

// Bytes is an in-process region. Reads past the end fault, which models a
// buffer whose declared length is larger than its mapped size.
type Bytes []byte

// CopyAt implements Region.
func (b Bytes) CopyAt(dst []byte, off int64) error {
	if off < 0 || off > int64(len(b)) || int64(len(dst)) > int64(len(b))-off {
		return fmt.Errorf("copy %d bytes at offset %d of %d: %w", len(dst), off, len(b), ErrFault)
	}
	copy(dst, b[off:])
	return nil
}

// Null is a region that always faults.
type Null struct{}

// CopyAt implements Region.
func (Null) CopyAt(_ []byte, _ int64) error {
	return ErrFault
}
