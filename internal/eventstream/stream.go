// Package eventstream pumps ring buffer samples into a record handler.
package eventstream

import (
	"context"
	"errors"

	"github.com/mrzor/file-tracer/internal/bpf"

	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"
)

// Reader is satisfied by *ringbuf.Reader.
type Reader interface {
	Read() (ringbuf.Record, error)
}

// RecordHandler receives decoded records, one at a time.
type RecordHandler interface {
	HandleRecord(rec *bpf.Record) error
}

// Stream reads events from a ringbuffer and dispatches them to a handler.
type Stream struct {
	reader  Reader
	handler RecordHandler
	logger  *zap.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a new Stream with the given ringbuffer reader and record handler.
func New(reader Reader, handler RecordHandler, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		reader:  reader,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins reading events from the ringbuffer in a goroutine.
// It returns immediately and processes events in the background until
// the context is cancelled, Stop is called or the reader is closed.
func (s *Stream) Start(ctx context.Context) error {
	go s.processEvents(ctx)
	return nil
}

// Stop signals the event processing goroutine to stop. A goroutine blocked
// in Read only notices once the reader is closed.
func (s *Stream) Stop() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	return nil
}

// Done is closed when the event loop has returned.
func (s *Stream) Done() <-chan struct{} {
	return s.doneCh
}

// processEvents is the main event loop that reads and processes events.
func (s *Stream) processEvents(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			record, err := s.reader.Read()
			if err != nil {
				if errors.Is(err, ringbuf.ErrClosed) {
					return
				}
				s.logger.Warn("reading from ring buffer", zap.Error(err))
				continue
			}

			rec, err := bpf.DecodeRecord(record.RawSample)
			if err != nil {
				s.logger.Warn("parsing event", zap.Error(err))
				continue
			}

			if err := s.handler.HandleRecord(&rec); err != nil {
				s.logger.Warn("handling event", zap.Error(err))
			}
		}
	}
}
