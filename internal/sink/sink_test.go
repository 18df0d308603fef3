package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrzor/file-tracer/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func entry(text string, delta time.Duration) tracing.Entry {
	return tracing.Entry{Time: time.Unix(100, 0).Add(delta), Delta: delta, Text: text}
}

func texts(entries []tracing.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestRing_KeepsMostRecent(t *testing.T) {
	r := NewRing(3)
	for _, s := range []string{"a", "b"} {
		r.Record(entry(s, 0))
	}
	assert.Equal(t, []string{"a", "b"}, texts(r.Entries()))
	assert.Equal(t, 2, r.Len())

	for _, s := range []string{"c", "d", "e"} {
		r.Record(entry(s, 0))
	}
	assert.Equal(t, []string{"c", "d", "e"}, texts(r.Entries()))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Overrun())
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(2)
	r.Record(entry("a", 0))
	r.Record(entry("b", 0))
	r.Record(entry("c", 0))

	r.Reset()
	assert.Empty(t, r.Entries())
	assert.Zero(t, r.Overrun())

	r.Record(entry("d", 0))
	assert.Equal(t, []string{"d"}, texts(r.Entries()))
}

func TestRing_WriteTo(t *testing.T) {
	r := NewRing(4)
	r.Record(entry("1 CLOSE 3 SUCCESS", 1500*time.Microsecond))
	r.Record(entry("1 READ 3 8 EOF", 2*time.Second+7*time.Microsecond))

	var buf bytes.Buffer
	n, err := r.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# tracer: file_trace\n"))
	assert.Contains(t, out, "# entries-in-buffer/entries-written: 2/2\n")
	assert.Contains(t, out, "     0.001500: 1 CLOSE 3 SUCCESS\n")
	assert.Contains(t, out, "     2.000007: 1 READ 3 8 EOF\n")
}

func TestWriter_PlainAndTimestamped(t *testing.T) {
	var plain, stamped bytes.Buffer
	p := NewWriter(&plain, false)
	s := NewWriter(&stamped, true)

	for _, w := range []*Writer{p, s} {
		w.Record(entry("7 OPEN a 0 0 SUCCESS 3", 250*time.Microsecond))
		require.NoError(t, w.Flush())
	}

	assert.Equal(t, "7 OPEN a 0 0 SUCCESS 3\n", plain.String())
	assert.Equal(t, "     0.000250: 7 OPEN a 0 0 SUCCESS 3\n", stamped.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriter_KeepsFirstError(t *testing.T) {
	w := NewWriter(failingWriter{}, false)
	w.Record(entry("x", 0))
	assert.Error(t, w.Flush())
	w.Record(entry("y", 0))
	assert.Error(t, w.Flush())
}

func TestTee(t *testing.T) {
	a, b := NewRing(4), NewRing(4)
	tee := Tee{a, b}
	tee.Record(entry("x", 0))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	tee.Reset()
	assert.Zero(t, a.Len())
	assert.Zero(t, b.Len())
}

func TestSpan_EventsPerSession(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	s := NewSpan(provider.Tracer("test"), "file_trace.session")
	s.Reset()
	s.Record(entry("1 OPEN a 0 0 SUCCESS 3", 0))
	s.Record(entry("1 CLOSE 3 SUCCESS", time.Millisecond))
	s.Reset()
	s.Record(entry("2 READ 3 8 EOF", 0))
	s.Close()
	s.Record(entry("dropped", 0))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "file_trace.session", ended[0].Name())
	require.Len(t, ended[0].Events(), 2)
	assert.Equal(t, "1 OPEN a 0 0 SUCCESS 3", ended[0].Events()[0].Name)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "2 READ 3 8 EOF", ended[1].Events()[0].Name)
}
