package traceparse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_Events(t *testing.T) {
	tests := []struct {
		name string
		text string
		want filetrace.Event
	}{
		{"open success", "12 OPEN /etc/hosts 0x241 0644 SUCCESS 3",
			filetrace.FileOpen{Pid: 12, Filename: "/etc/hosts", Flags: 0x241, Mode: 0o644, Ret: 3}},
		{"open zero flags", "12 OPEN /tmp/x 0 0 ERR 2",
			filetrace.FileOpen{Pid: 12, Filename: "/tmp/x", Ret: -2}},
		{"open name with spaces", "12 OPEN /tmp/my file 0x1 0 SUCCESS 4",
			filetrace.FileOpen{Pid: 12, Filename: "/tmp/my file", Flags: 1, Ret: 4}},
		{"open negative flags", "12 OPEN a 0xffffffff 0 SUCCESS 4",
			filetrace.FileOpen{Pid: 12, Filename: "a", Flags: -1, Ret: 4}},
		{"close success", "7 CLOSE 3 SUCCESS", filetrace.FileClose{Pid: 7, Fd: 3}},
		{"close error raw", "7 CLOSE 99 ERR -9", filetrace.FileClose{Pid: 7, Fd: 99, Ret: -9}},
		{"seek success", "7 LSEEK 3 10 1 SUCCESS 20", filetrace.FileSeek{Pid: 7, Fd: 3, Offset: 10, Whence: 1, Ret: 20}},
		{"seek error zero", "7 LSEEK 3 0 0 ERR 0", filetrace.FileSeek{Pid: 7, Fd: 3}},
		{"seek error", "7 LSEEK 3 -5 0 ERR 22", filetrace.FileSeek{Pid: 7, Fd: 3, Offset: -5, Ret: -22}},
		{"read success", "7 READ 3 64 SUCCESS 5", filetrace.FileRead{Pid: 7, Fd: 3, Size: 64, Ret: 5}},
		{"read eof", "7 READ 3 64 EOF", filetrace.FileRead{Pid: 7, Fd: 3, Size: 64}},
		{"read error", "7 READ 3 64 ERR 14", filetrace.FileRead{Pid: 7, Fd: 3, Size: 64, Ret: -14}},
		{"write success", "7 WRITE 1 5 SUCCESS 5", filetrace.FileWrite{Pid: 7, Fd: 1, Size: 5, Ret: 5}},
		{"write error", "7 WRITE 1 -1 ERR 22", filetrace.FileWrite{Pid: 7, Fd: 1, Size: -1, Ret: -22}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ParseLine(tt.text)
			require.NoError(t, err)
			assert.Equal(t, LineEvent, l.Kind)
			assert.Equal(t, tt.want, l.Event)
			assert.False(t, l.Stamped)
		})
	}
}

func TestParseLine_DataAndFault(t *testing.T) {
	l, err := ParseLine("7 READ_DATA 68 65 6c 6c 6f")
	require.NoError(t, err)
	assert.Equal(t, LineData, l.Kind)
	assert.Equal(t, filetrace.DirectionRead, l.Dir)
	assert.Equal(t, int32(7), l.Pid)
	assert.Equal(t, []byte("hello"), l.Data)

	l, err = ParseLine("WRITE_DATA_FAULT")
	require.NoError(t, err)
	assert.Equal(t, LineFault, l.Kind)
	assert.Equal(t, filetrace.DirectionWrite, l.Dir)
}

func TestParseLine_StampAndSkip(t *testing.T) {
	l, err := ParseLine("     3.000250: 7 CLOSE 3 SUCCESS")
	require.NoError(t, err)
	assert.True(t, l.Stamped)
	assert.Equal(t, 3*time.Second+250*time.Microsecond, l.Time)
	assert.Equal(t, filetrace.FileClose{Pid: 7, Fd: 3}, l.Event)

	for _, text := range []string{"", "   ", "# tracer: file_trace", "#"} {
		l, err := ParseLine(text)
		require.NoError(t, err)
		assert.Equal(t, LineSkip, l.Kind, "%q", text)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, text := range []string{
		"hello",
		"x OPEN a 0 0 SUCCESS 3",
		"7 MKDIR /tmp",
		"7 OPEN 0 SUCCESS 3",
		"7 CLOSE 3 MAYBE",
		"7 LSEEK 3 0 SUCCESS 0",
		"7 READ 3 64 SUCCESS",
		"7 READ_DATA zz",
		"7 READ_DATA 123",
		"7 WRITE_DATA",
	} {
		_, err := ParseLine(text)
		assert.True(t, errors.Is(err, ErrMalformed), "%q: %v", text, err)
	}
}

func TestParse_ReassemblesPayloads(t *testing.T) {
	trace := strings.Join([]string{
		"# tracer: file_trace",
		"1 OPEN /tmp/a 0x42 0600 SUCCESS 3",
		"1 WRITE 3 20 SUCCESS 20",
		"1 WRITE_DATA 30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66",
		"1 WRITE_DATA 67 68 69 6a",
		"1 LSEEK 3 0 0 ERR 0",
		"1 READ 3 64 SUCCESS 3",
		"1 READ_DATA 61 62 63",
		"1 CLOSE 3 SUCCESS",
	}, "\n")

	recs, err := ParseAll(strings.NewReader(trace))
	require.NoError(t, err)
	require.Len(t, recs, 5)

	assert.Equal(t, filetrace.KindOpen, recs[0].Event.Kind())
	assert.Equal(t, 2, recs[0].Line)

	write, ok := recs[1].Event.(filetrace.FileWrite)
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789abcdefghij"), recs[1].Data)
	assert.Equal(t, payload.Bytes("0123456789abcdefghij"), write.Buf)
	assert.False(t, recs[1].Truncated)

	assert.Equal(t, filetrace.KindLseek, recs[2].Event.Kind())

	read, ok := recs[3].Event.(filetrace.FileRead)
	require.True(t, ok)
	assert.Equal(t, payload.Bytes("abc"), read.Buf)
	assert.Equal(t, filetrace.DirectionRead, recs[3].Dir)

	assert.Equal(t, filetrace.KindClose, recs[4].Event.Kind())
}

func TestParse_FaultTruncates(t *testing.T) {
	trace := strings.Join([]string{
		"1 READ 3 40 SUCCESS 40",
		"1 READ_DATA 00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f",
		"READ_DATA_FAULT",
		"2 WRITE 1 -1 ERR 22",
		"WRITE_DATA_FAULT",
		"READ_DATA_FAULT",
	}, "\n")

	recs, err := ParseAll(strings.NewReader(trace))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.True(t, recs[0].Truncated)
	assert.Len(t, recs[0].Data, 16)

	assert.True(t, recs[1].Truncated)
	assert.Empty(t, recs[1].Data)
	assert.Equal(t, filetrace.DirectionWrite, recs[1].Dir)
}

func TestParse_FaultIgnoresOtherDirection(t *testing.T) {
	trace := strings.Join([]string{
		"1 READ 3 8 SUCCESS 2",
		"1 READ_DATA aa aa",
		"1 WRITE 1 2 SUCCESS 2",
		"READ_DATA_FAULT",
		"1 WRITE_DATA bb bb",
	}, "\n")

	recs, err := ParseAll(strings.NewReader(trace))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, filetrace.DirectionRead, recs[0].Dir)
	assert.False(t, recs[0].Truncated)
	assert.Equal(t, []byte{0xaa, 0xaa}, recs[0].Data)

	assert.Equal(t, filetrace.DirectionWrite, recs[1].Dir)
	assert.False(t, recs[1].Truncated)
	assert.Equal(t, []byte{0xbb, 0xbb}, recs[1].Data)
}

func TestParse_RoundTripWideChunks(t *testing.T) {
	data := make([]byte, 80)
	for i := range data {
		data[i] = byte(i)
	}

	var lines []string
	sink := filetrace.LineSinkFunc(func(line string) { lines = append(lines, line) })
	f := filetrace.NewFormatter(sink, filetrace.NewDumper(sink, payload.NewPool(32), nil))
	f.Format(filetrace.FileRead{Pid: 1, Fd: 3, Size: 128, Ret: 80, Buf: payload.Bytes(data)})
	f.Format(filetrace.FileClose{Pid: 1, Fd: 3})
	require.Len(t, lines, 5)

	recs, err := ParseAll(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, filetrace.DirectionRead, recs[0].Dir)
	assert.False(t, recs[0].Truncated)
	assert.Equal(t, data, recs[0].Data)
	assert.Equal(t, filetrace.FileClose{Pid: 1, Fd: 3}, recs[1].Event)
}

func TestParse_InterleavedPids(t *testing.T) {
	trace := strings.Join([]string{
		"1 READ 3 8 SUCCESS 2",
		"2 READ 4 8 SUCCESS 2",
		"2 READ_DATA bb bb",
		"1 READ_DATA aa aa",
		"2 CLOSE 4 SUCCESS",
	}, "\n")

	recs, err := ParseAll(strings.NewReader(trace))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, []byte{0xbb, 0xbb}, recs[0].Data)
	assert.Equal(t, filetrace.KindClose, recs[1].Event.Kind())
	assert.Equal(t, []byte{0xaa, 0xaa}, recs[2].Data)
	assert.Equal(t, int32(1), recs[2].Event.(filetrace.FileRead).Pid)
}

func TestParse_OrphanData(t *testing.T) {
	recs, err := ParseAll(strings.NewReader("9 WRITE_DATA 41\n9 WRITE_DATA 42\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Event)
	assert.Equal(t, []byte("AB"), recs[0].Data)
	assert.Equal(t, filetrace.DirectionWrite, recs[0].Dir)
}

func TestParse_ReportsLineNumber(t *testing.T) {
	_, err := ParseAll(strings.NewReader("1 CLOSE 3 SUCCESS\nbogus line\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParse_EmitError(t *testing.T) {
	boom := errors.New("boom")
	err := Parse(strings.NewReader("1 CLOSE 3 SUCCESS\n"), func(Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}
