package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrzor/file-tracer/internal/bpfloader"
	"github.com/mrzor/file-tracer/internal/eventstream"
	"github.com/mrzor/file-tracer/internal/filter"
	"github.com/mrzor/file-tracer/internal/syscalltap"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// drainTimeout lets records already in the ring buffer reach the tap
	// after the traced command exits.
	drainTimeout = 250 * time.Millisecond
	sweepEvery   = 5 * time.Second
	sweepMaxAge  = 30 * time.Second
)

func newRunCmd(a *app) *cobra.Command {
	var pids []int

	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Trace a command (and/or running processes) through kernel syscall tracepoints",
		Long: `Attaches to the openat, open, close, lseek, read and write syscall
tracepoints and feeds the calls made by the traced processes to the
file_trace tracer. Requires CAP_BPF and CAP_PERFMON (or root).

Only the listed processes are traced; threads are included, children
spawned by them are not.`,
		Example: `  filetrace run -- cat /etc/hosts
  filetrace run --pid 1234 -f 'kind == "WRITE"'`,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 && len(pids) == 0 {
				return fmt.Errorf("nothing to trace: give a command or --pid")
			}
			if len(args) > 0 {
				if err := a.cfg.SetCommand(args); err != nil {
					return err
				}
			}
			return a.runTrace(pids)
		},
	}
	cmd.Flags().IntSliceVarP(&pids, "pid", "p", nil, "trace an already running process (repeatable)")
	return cmd
}

// setupBPF loads the BPF programs, attaches tracepoints, and opens the ring buffer.
// Returns the ring buffer reader and a cleanup function.
func setupBPF(logger *zap.Logger) (*ringbuf.Reader, func(), error) {
	loader, err := bpfloader.New(logger)
	if err != nil {
		return nil, nil, err
	}

	if err := loader.Attach(); err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			logger.Warn("Error closing loader after attach failure", zap.Error(closeErr))
		}
		return nil, nil, err
	}

	rd, err := loader.OpenRingBuffer()
	if err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			logger.Warn("Error closing loader after ring buffer open failure", zap.Error(closeErr))
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := rd.Close(); err != nil {
			logger.Warn("Error closing ring buffer", zap.Error(err))
		}
		if err := loader.Close(); err != nil {
			logger.Warn("Error closing loader", zap.Error(err))
		}
	}

	return rd, cleanup, nil
}

func (a *app) runTrace(pids []int) (err error) {
	f, err := filter.Compile(a.cfg.Filter)
	if err != nil {
		return err
	}

	p, err := newPipeline(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rd, cleanupBPF, err := setupBPF(a.logger)
	if err != nil {
		return err
	}
	defer cleanupBPF()

	tap := syscalltap.New(p.bus,
		syscalltap.WithFilter(f),
		syscalltap.WithMetrics(p.metrics),
		syscalltap.WithLogger(a.logger.Named("syscalltap")),
	)
	for _, pid := range pids {
		tap.Track(uint32(pid)) //nolint:gosec // pids fit in uint32
	}

	var child *exec.Cmd
	if a.cfg.Command != "" {
		//nolint:gosec // This is a tracer tool - launching subprocesses is its purpose
		child = exec.Command(a.cfg.Command, a.cfg.Args...)
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		child.Stdin = os.Stdin
		if a.cfg.WantsStdout() {
			// Keep the trace on stdout readable.
			child.Stdout = os.Stderr
		}
		if err := child.Start(); err != nil {
			return fmt.Errorf("starting command: %w", err)
		}
		// Records from before this point wait in the ring buffer; the
		// stream only starts reading once the child is in scope.
		tap.Track(uint32(child.Process.Pid)) //nolint:gosec // pids fit in uint32
		a.logger.Info("Tracing command", zap.Strings("command", a.cfg.FullCommand()), zap.Int("pid", child.Process.Pid))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := eventstream.New(rd, tap, a.logger.Named("eventstream"))
	if err := stream.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			a.logger.Warn("Error stopping stream", zap.Error(err))
		}
	}()

	go sweep(ctx, tap)

	waitForCompletion(a.logger, child)

	// Give the ring buffer time to drain, then unblock the reader.
	time.Sleep(drainTimeout)
	if err := rd.Close(); err != nil {
		a.logger.Warn("Error closing ring buffer", zap.Error(err))
	}
	<-stream.Done()
	return nil
}

// waitForCompletion returns when the child exits or a signal is received.
// Without a child it waits for a signal.
func waitForCompletion(logger *zap.Logger, child *exec.Cmd) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if child == nil {
		<-sigCh
		return
	}

	childDone := make(chan error, 1)
	go func() {
		childDone <- child.Wait()
	}()

	select {
	case <-sigCh:
		logger.Info("Received signal, terminating...")
		_ = child.Process.Signal(syscall.SIGTERM) //nolint:errcheck // Best-effort graceful shutdown; Kill() follows
		// Give it a moment to exit gracefully
		time.Sleep(100 * time.Millisecond)
		_ = child.Process.Kill() //nolint:errcheck // Best-effort cleanup during shutdown
		<-childDone
	case err := <-childDone:
		if err != nil {
			logger.Warn("Child process exited with error", zap.Error(err))
		}
	}
}

func sweep(ctx context.Context, tap *syscalltap.Tap) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tap.Sweep(sweepMaxAge)
		}
	}
}
