// Package otel provides OpenTelemetry tracer and meter provider initialization and management.
package otel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mrzor/file-tracer/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Providers are the SDK providers installed as the otel globals.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	// Meter is nil unless metrics export is enabled.
	Meter *sdkmetric.MeterProvider
}

// logProxy records the proxy environment the HTTP exporters will honor.
func logProxy(logger *zap.Logger) {
	httpProxy := os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy := os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}

	if httpProxy != "" || httpsProxy != "" {
		logger.Debug("Proxy configuration", zap.String("http_proxy", httpProxy), zap.String("https_proxy", httpsProxy))
	} else {
		logger.Debug("No proxy configured (HTTP_PROXY/HTTPS_PROXY not set)")
	}
}

// NewResource builds the service resource from cfg.
func NewResource(ctx context.Context, cfg *config.OTELConfig) (*resource.Resource, error) {
	resourceAttrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}

	// Add custom resource attributes from environment
	customAttrs := cfg.ParseResourceAttributes()
	if len(customAttrs) > 0 {
		resourceAttrs = append(resourceAttrs, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, resourceAttrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// InitProvider initializes the OpenTelemetry providers, exporting over
// OTLP/HTTP, and installs them as the otel globals.
//
// Note: The HTTP client automatically honors HTTP_PROXY, HTTPS_PROXY, and
// NO_PROXY environment variables through Go's standard net/http transport.
func InitProvider(cfg *config.OTELConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := cfg.GetEndpoint()
	logger.Info("OTEL Configuration",
		zap.String("service_name", cfg.ServiceName),
		zap.String("endpoint", endpoint),
		zap.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.ExporterEndpoint),
		zap.String("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", cfg.TracesEndpoint),
		zap.String("resource_attributes", cfg.ResourceAttributes),
		zap.Bool("metrics", cfg.MetricsEnabled),
	)
	logProxy(logger)

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // Use HTTP not HTTPS for local testing
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}

	if cfg.MetricsEnabled {
		metricExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.GetMetricsEndpoint()),
			otlpmetrichttp.WithInsecure(),
			otlpmetrichttp.WithTimeout(10*time.Second),
		)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("failed to create OTLP metric exporter: %w", err),
				p.Tracer.Shutdown(ctx),
			)
		}
		p.Meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(p.Meter)
	}

	otel.SetTracerProvider(p.Tracer)
	return p, nil
}

// ShutdownProvider gracefully shuts down the providers, flushing any remaining spans and metrics.
func ShutdownProvider(p *Providers, ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
