package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/traceparse"

	"github.com/spf13/cobra"
)

// maxShown bounds the payload preview of one record.
const maxShown = 64

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <tracefile>",
		Short: "Decode file_trace output and reassemble read/write payloads",
		Long:  `Reads trace output ("-" for stdin) and prints one summary per event with its payload joined back together.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := io.Reader(os.Stdin)
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close() //nolint:errcheck // read-only
				in = f
			}
			return a.parse(in, cmd.OutOrStdout())
		},
	}
}

func (a *app) parse(in io.Reader, out io.Writer) error {
	return traceparse.Parse(in, func(rec traceparse.Record) error {
		_, err := fmt.Fprintln(out, describe(rec))
		return err
	})
}

func describe(rec traceparse.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%5d ", rec.Line)
	if rec.Stamped {
		fmt.Fprintf(&b, "%12.6f ", rec.Time.Seconds())
	}

	switch ev := rec.Event.(type) {
	case filetrace.FileOpen:
		fmt.Fprintf(&b, "OPEN  pid=%d file=%q flags=%#x mode=%#o ret=%d", ev.Pid, ev.Filename, uint32(ev.Flags), uint32(ev.Mode), ev.Ret)
	case filetrace.FileClose:
		fmt.Fprintf(&b, "CLOSE pid=%d fd=%d ret=%d", ev.Pid, ev.Fd, ev.Ret)
	case filetrace.FileSeek:
		fmt.Fprintf(&b, "LSEEK pid=%d fd=%d offset=%d whence=%d ret=%d", ev.Pid, ev.Fd, ev.Offset, ev.Whence, ev.Ret)
	case filetrace.FileRead:
		fmt.Fprintf(&b, "READ  pid=%d fd=%d size=%d ret=%d", ev.Pid, ev.Fd, ev.Size, ev.Ret)
	case filetrace.FileWrite:
		fmt.Fprintf(&b, "WRITE pid=%d fd=%d size=%d ret=%d", ev.Pid, ev.Fd, ev.Size, ev.Ret)
	case nil:
		fmt.Fprintf(&b, "DATA  %s without header", rec.Dir)
	}

	if len(rec.Data) > 0 || rec.Truncated {
		shown := rec.Data
		if len(shown) > maxShown {
			shown = shown[:maxShown]
		}
		fmt.Fprintf(&b, " payload=%d %s", len(rec.Data), strconv.Quote(string(shown)))
		if len(shown) < len(rec.Data) {
			b.WriteString("...")
		}
		if rec.Truncated {
			b.WriteString(" (fault)")
		}
	}
	return b.String()
}
