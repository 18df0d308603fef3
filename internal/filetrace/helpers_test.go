package filetrace

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/mrzor/file-tracer/internal/payload"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) EmitLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// faultingRegion faults on any copy that starts at or after faultAt.
type faultingRegion struct {
	data    []byte
	faultAt int64
}

func (r faultingRegion) CopyAt(dst []byte, off int64) error {
	if off >= r.faultAt {
		return payload.ErrFault
	}
	return payload.Bytes(r.data).CopyAt(dst, off)
}

// countingAllocator tracks outstanding chunks.
type countingAllocator struct {
	size int
	fail bool
	gets int
	puts int
}

func (a *countingAllocator) Get() ([]byte, bool) {
	if a.fail {
		return nil, false
	}
	a.gets++
	return make([]byte, a.size), true
}

func (a *countingAllocator) Put(_ []byte) {
	a.puts++
}

type dumpCall struct {
	pid   int32
	total int32
	dir   Direction
}

type recordingDumper struct {
	calls []dumpCall
}

func (d *recordingDumper) Dump(pid int32, _ payload.Region, total int32, dir Direction) {
	d.calls = append(d.calls, dumpCall{pid: pid, total: total, dir: dir})
}

// decodeDataLines concatenates the payload bytes of data lines.
func decodeDataLines(lines []string) []byte {
	var out []byte
	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) < 2 || !strings.HasSuffix(fields[1], "_DATA") {
			continue
		}
		for _, f := range fields[2:] {
			b, err := hex.DecodeString(f)
			if err != nil {
				panic(err)
			}
			out = append(out, b...)
		}
	}
	return out
}
