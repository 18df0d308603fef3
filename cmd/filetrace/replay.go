package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mrzor/file-tracer/internal/fileops"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		block  int
		copyTo string
	)

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Read a file through instrumented file operations and trace them",
		Long: `Opens the file, reads it to the end in fixed-size blocks, seeks back to
the start and closes it, all through the instrumented file operations, so
the file_trace output can be produced without kernel support. With --copy
every block is also written to a second instrumented file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if block <= 0 {
				return fmt.Errorf("block size must be positive, got %d", block)
			}
			return a.replay(args[0], copyTo, block)
		},
	}
	cmd.Flags().IntVarP(&block, "block", "b", 64, "bytes per read")
	cmd.Flags().StringVar(&copyTo, "copy", "", "also write the contents to this file")
	return cmd
}

func (a *app) replay(path, copyTo string, block int) (err error) {
	p, err := newPipeline(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	src, err := fileops.Open(p.bus, path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer closeLogged(a.logger, src)

	var dst *fileops.File
	if copyTo != "" {
		dst, err = fileops.Open(p.bus, copyTo, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("opening %s: %w", copyTo, err)
		}
		defer closeLogged(a.logger, dst)
	}

	buf := make([]byte, block)
	total := 0
	for {
		n, rerr := src.Read(buf)
		if n > 0 && dst != nil {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing %s: %w", copyTo, werr)
			}
		}
		total += n
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", path, rerr)
		}
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", path, err)
	}
	a.logger.Debug("Replayed file", zap.String("path", path), zap.Int("bytes", total))
	return nil
}

func closeLogged(logger *zap.Logger, f *fileops.File) {
	if err := f.Close(); err != nil {
		logger.Warn("Error closing file", zap.String("path", f.Name()), zap.Error(err))
	}
}
