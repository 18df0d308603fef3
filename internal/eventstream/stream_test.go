package eventstream

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/mrzor/file-tracer/internal/bpf"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedReader struct {
	samples [][]byte
	errs    []error
}

func (r *scriptedReader) Read() (ringbuf.Record, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return ringbuf.Record{}, err
		}
	}
	if len(r.samples) == 0 {
		return ringbuf.Record{}, ringbuf.ErrClosed
	}
	s := r.samples[0]
	r.samples = r.samples[1:]
	return ringbuf.Record{RawSample: s}, nil
}

type collectingHandler struct {
	recs []bpf.Record
	err  error
}

func (h *collectingHandler) HandleRecord(rec *bpf.Record) error {
	h.recs = append(h.recs, *rec)
	return h.err
}

func sample(tag uint64, pidTgid uint64) []byte {
	raw := make([]byte, bpf.RecordSize)
	binary.NativeEndian.PutUint64(raw[0:], tag)
	binary.NativeEndian.PutUint64(raw[8:], pidTgid)
	return raw
}

func runToCompletion(t *testing.T, s *Stream) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStream_DispatchesUntilClosed(t *testing.T) {
	reader := &scriptedReader{samples: [][]byte{
		sample(bpf.TAG_READ_ENTER, 1<<32|1),
		{0x01, 0x02},
		sample(bpf.TAG_READ_EXIT, 1<<32|1),
	}}
	handler := &collectingHandler{}

	runToCompletion(t, New(reader, handler, zaptest.NewLogger(t)))

	require.Len(t, handler.recs, 2)
	assert.Equal(t, uint64(bpf.TAG_READ_ENTER), handler.recs[0].Tag)
	assert.Equal(t, uint64(bpf.TAG_READ_EXIT), handler.recs[1].Tag)
}

func TestStream_ReadErrorsAreSkipped(t *testing.T) {
	reader := &scriptedReader{
		samples: [][]byte{sample(bpf.TAG_CLOSE_ENTER, 5)},
		errs:    []error{errors.New("transient")},
	}
	handler := &collectingHandler{err: errors.New("handler failure")}

	runToCompletion(t, New(reader, handler, zaptest.NewLogger(t)))

	assert.Len(t, handler.recs, 1)
}

func TestStream_StopBeforeRead(t *testing.T) {
	reader := &scriptedReader{samples: [][]byte{sample(bpf.TAG_CLOSE_ENTER, 5)}}
	handler := &collectingHandler{}
	s := New(reader, handler, nil)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	runToCompletion(t, s)

	assert.Empty(t, handler.recs)
}
