package filetrace

import (
	"strconv"
	"strings"

	"github.com/mrzor/file-tracer/internal/payload"
	"github.com/mrzor/file-tracer/internal/telemetry"
)

// ChunkSize is the number of payload bytes rendered per line.
const ChunkSize = 16

// PayloadDumper renders a caller-owned region as trace lines.
type PayloadDumper interface {
	Dump(pid int32, region payload.Region, total int32, dir Direction)
}

// Dumper copies regions through one fixed-size chunk at a time, so memory
// use does not depend on the length the caller claims.
type Dumper struct {
	sink    LineSink
	alloc   payload.ChunkAllocator
	metrics *telemetry.Metrics
}

// NewDumper creates a Dumper. A nil allocator means a pool of ChunkSize chunks.
func NewDumper(sink LineSink, alloc payload.ChunkAllocator, metrics *telemetry.Metrics) *Dumper {
	if alloc == nil {
		alloc = payload.NewPool(ChunkSize)
	}
	return &Dumper{sink: sink, alloc: alloc, metrics: metrics}
}

// Dump emits ceil(total/C) data lines for the region, where C is the chunk
// capacity. The first copy fault emits one fault marker and ends the dump.
func (d *Dumper) Dump(pid int32, region payload.Region, total int32, dir Direction) {
	chunk, ok := d.alloc.Get()
	if !ok || len(chunk) == 0 {
		d.fault(dir)
		return
	}
	defer d.alloc.Put(chunk)

	if region == nil {
		region = payload.Null{}
	}

	size := int32(len(chunk))
	for offset := int32(0); offset < total; {
		count := min(total-offset, size)
		buf := chunk[:count]
		if err := region.CopyAt(buf, int64(offset)); err != nil {
			d.fault(dir)
			return
		}
		d.sink.EmitLine(renderDataLine(pid, dir.DataTag(), buf))
		offset += count
	}
}

func (d *Dumper) fault(dir Direction) {
	d.metrics.DumpFault(dir.String())
	d.sink.EmitLine(dir.FaultTag())
}

const hexDigits = "0123456789abcdef"

// renderDataLine renders "<pid> <tag> xx xx ...".
func renderDataLine(pid int32, tag string, data []byte) string {
	var b strings.Builder
	b.Grow(11 + len(tag) + 1 + len(data)*3)

	var num [16]byte
	b.Write(strconv.AppendInt(num[:0], int64(pid), 10))
	b.WriteByte(' ')
	b.WriteString(tag)
	for _, c := range data {
		b.WriteByte(' ')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}
