package payload

import "sync"

// ChunkAllocator hands out scratch chunks of a fixed capacity.
// Get returns ok=false when no chunk can be provided.
type ChunkAllocator interface {
	Get() (chunk []byte, ok bool)
	Put(chunk []byte)
}

// Pool is a ChunkAllocator backed by sync.Pool.
type Pool struct {
	size int
	pool sync.Pool
}

// NewPool creates a pool of chunks of the given capacity.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the chunk capacity.
func (p *Pool) Size() int {
	return p.size
}

// Get implements ChunkAllocator.
func (p *Pool) Get() ([]byte, bool) {
	if p.size <= 0 {
		return nil, false
	}
	b, ok := p.pool.Get().(*[]byte)
	if !ok || b == nil || cap(*b) < p.size {
		return nil, false
	}
	return (*b)[:p.size], true
}

// Put implements ChunkAllocator.
func (p *Pool) Put(chunk []byte) {
	if cap(chunk) < p.size {
		return
	}
	chunk = chunk[:p.size]
	p.pool.Put(&chunk)
}
