package config

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.ChunkSize)
	assert.Equal(t, 65536, cfg.RingSize)
	assert.Equal(t, SinkStdout, cfg.Sink)
	assert.True(t, cfg.Timestamps)
	assert.Empty(t, cfg.Filter)
	assert.True(t, cfg.WantsStdout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FILETRACE_CHUNK_SIZE", "8")
	t.Setenv("FILETRACE_RING_SIZE", "10")
	t.Setenv("FILETRACE_FILTER", `kind == "READ"`)
	t.Setenv("FILETRACE_OUTPUT", "/tmp/trace.txt")
	t.Setenv("FILETRACE_SINK", "ring")
	t.Setenv("FILETRACE_TIMESTAMPS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.ChunkSize)
	assert.Equal(t, 10, cfg.RingSize)
	assert.Equal(t, `kind == "READ"`, cfg.Filter)
	assert.Equal(t, "/tmp/trace.txt", cfg.Output)
	assert.Equal(t, SinkRing, cfg.Sink)
	assert.False(t, cfg.Timestamps)
	assert.False(t, cfg.WantsStdout())
}

func TestLoad_BadEnvironment(t *testing.T) {
	t.Setenv("FILETRACE_CHUNK_SIZE", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestBindFlags_Override(t *testing.T) {
	t.Setenv("FILETRACE_CHUNK_SIZE", "8")
	cfg, err := Load()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--chunk-size", "4", "-f", "fd > 2", "--sink", "otlp", "-v"}))

	assert.Equal(t, 4, cfg.ChunkSize)
	assert.Equal(t, "fd > 2", cfg.Filter)
	assert.Equal(t, SinkOTLP, cfg.Sink)
	assert.True(t, cfg.Verbose)
}

func TestBindFlags_KeepsEnvironmentWhenUnset(t *testing.T) {
	t.Setenv("FILETRACE_RING_SIZE", "99")
	cfg, err := Load()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	assert.Equal(t, 99, cfg.RingSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, false},
		{"negative ring", func(c *Config) { c.RingSize = -1 }, false},
		{"unknown sink", func(c *Config) { c.Sink = "syslog" }, false},
		{"ring sink", func(c *Config) { c.Sink = SinkRing }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{ChunkSize: 16, RingSize: 1, Sink: SinkStdout}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestSetCommand(t *testing.T) {
	var cfg Config
	assert.ErrorIs(t, cfg.SetCommand(nil), ErrInvalid)

	require.NoError(t, cfg.SetCommand([]string{"cat", "/etc/hosts"}))
	assert.Equal(t, "cat", cfg.Command)
	assert.Equal(t, []string{"/etc/hosts"}, cfg.Args)
	assert.Equal(t, []string{"cat", "/etc/hosts"}, cfg.FullCommand())
}

func TestOTELConfig_Endpoints(t *testing.T) {
	tests := []struct {
		name        string
		cfg         OTELConfig
		wantTraces  string
		wantMetrics string
	}{
		{"defaults", OTELConfig{}, "localhost:4318", "localhost:4318"},
		{"shared", OTELConfig{ExporterEndpoint: "collector:4318"}, "collector:4318", "collector:4318"},
		{"specific", OTELConfig{
			ExporterEndpoint: "collector:4318",
			TracesEndpoint:   "traces:4318",
			MetricsEndpoint:  "metrics:4318",
		}, "traces:4318", "metrics:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTraces, tt.cfg.GetEndpoint())
			assert.Equal(t, tt.wantMetrics, tt.cfg.GetMetricsEndpoint())
		})
	}
}

func TestParseOTELConfig(t *testing.T) {
	cfg, err := ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "filetrace", cfg.ServiceName)

	t.Setenv("OTEL_SERVICE_NAME", "custom")
	cfg, err = ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.ServiceName)
}

func TestParseResourceAttributes(t *testing.T) {
	cfg := OTELConfig{ResourceAttributes: " env=prod , team = storage,broken,=x"}
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("env", "prod"),
		attribute.String("team", "storage"),
	}, cfg.ParseResourceAttributes())

	assert.Nil(t, (&OTELConfig{}).ParseResourceAttributes())
}
