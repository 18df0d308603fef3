package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrzor/file-tracer/internal/config"
	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/otel"
	"github.com/mrzor/file-tracer/internal/sink"
	"github.com/mrzor/file-tracer/internal/telemetry"
	"github.com/mrzor/file-tracer/internal/tracing"

	"go.uber.org/zap"
)

// pipeline is the bus, the file tracer on it and the sink behind them.
type pipeline struct {
	bus      *eventbus.Bus
	registry *tracing.Registry
	tracer   *filetrace.Tracer
	metrics  *telemetry.Metrics
	logger   *zap.Logger

	out       io.Writer
	outFile   *os.File
	writer    *sink.Writer
	ring      *sink.Ring
	span      *sink.Span
	providers *otel.Providers
}

// newPipeline builds the sink chosen by cfg, loads the file tracer and
// makes it current. Close undoes all of it.
func newPipeline(cfg *config.Config, logger *zap.Logger) (p *pipeline, err error) {
	p = &pipeline{bus: eventbus.New(), logger: logger, out: os.Stdout}
	defer func() {
		if err != nil {
			err = errors.Join(err, p.Close())
		}
	}()

	if !cfg.WantsStdout() {
		f, ferr := os.Create(cfg.Output)
		if ferr != nil {
			return p, fmt.Errorf("creating trace output: %w", ferr)
		}
		p.outFile, p.out = f, f
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return p, err
	}
	if cfg.Sink == config.SinkOTLP || otelCfg.MetricsEnabled {
		if p.providers, err = otel.InitProvider(otelCfg, logger); err != nil {
			return p, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
		}
	}
	p.metrics = telemetry.New(nil, logger)

	var buf tracing.Buffer
	switch cfg.Sink {
	case config.SinkRing:
		p.ring = sink.NewRing(cfg.RingSize)
		buf = p.ring
	case config.SinkOTLP:
		p.writer = sink.NewWriter(p.out, cfg.Timestamps)
		p.span = sink.NewSpan(p.providers.Tracer.Tracer("filetrace"), filetrace.Name)
		buf = sink.Tee{p.writer, p.span}
	default:
		p.writer = sink.NewWriter(p.out, cfg.Timestamps)
		buf = p.writer
	}

	p.registry = tracing.NewRegistry(tracing.NewSession(buf), logger)
	p.tracer, err = filetrace.Load(p.bus, p.registry,
		filetrace.WithLogger(logger),
		filetrace.WithMetrics(p.metrics),
		filetrace.WithChunkSize(cfg.ChunkSize),
	)
	if err != nil {
		return p, fmt.Errorf("loading file tracer: %w", err)
	}
	if err := p.registry.SetCurrent(filetrace.Name); err != nil {
		return p, err
	}
	return p, nil
}

// Close switches tracing off and flushes the sink.
func (p *pipeline) Close() error {
	var errs []error

	if p.registry != nil {
		if err := p.registry.SetCurrent(tracing.NopName); err != nil {
			errs = append(errs, err)
		}
	}
	if p.tracer != nil {
		p.tracer.Unload()
		p.tracer = nil
	}

	if p.ring != nil {
		if _, err := p.ring.WriteTo(p.out); err != nil {
			errs = append(errs, fmt.Errorf("writing ring: %w", err))
		}
		if n := p.ring.Overrun(); n > 0 {
			p.logger.Warn("Ring overwrote entries", zap.Uint64("overrun", n))
		}
		p.ring = nil
	}
	if p.writer != nil {
		if err := p.writer.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("writing trace: %w", err))
		}
	}
	if p.span != nil {
		p.span.Close()
	}
	if p.providers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(p.providers, ctx); err != nil {
			errs = append(errs, err)
		}
		p.providers = nil
	}
	if p.outFile != nil {
		if err := p.outFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trace output: %w", err))
		}
		p.outFile = nil
	}
	return errors.Join(errs...)
}
