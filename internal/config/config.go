// Package config holds the command-line and environment configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Output sinks.
const (
	SinkStdout = "stdout"
	SinkRing   = "ring"
	SinkOTLP   = "otlp"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the tracer configuration. Environment variables provide
// defaults and flags override them.
type Config struct {
	// ChunkSize is the number of payload bytes per data line.
	ChunkSize int `env:"FILETRACE_CHUNK_SIZE" envDefault:"16"`
	// RingSize bounds the in-memory ring sink.
	RingSize int `env:"FILETRACE_RING_SIZE" envDefault:"65536"`
	// Filter is an expr-lang event filter; empty keeps everything.
	Filter string `env:"FILETRACE_FILTER"`
	// Output is the trace file; empty or "-" is stdout.
	Output string `env:"FILETRACE_OUTPUT"`
	// Sink selects where lines go: stdout, ring or otlp.
	Sink string `env:"FILETRACE_SINK" envDefault:"stdout"`
	// Timestamps prefixes lines with the time since the session started.
	Timestamps bool `env:"FILETRACE_TIMESTAMPS" envDefault:"true"`
	Verbose    bool `env:"FILETRACE_VERBOSE"`

	// Command is the executable to run
	Command string
	// Args are the arguments to pass to the command
	Args    []string
}

// Load reads the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// BindFlags registers the flags that override c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "payload bytes per data line")
	fs.IntVar(&c.RingSize, "ring-size", c.RingSize, "entries kept by the ring sink")
	fs.StringVarP(&c.Filter, "filter", "f", c.Filter, `event filter expression, e.g. 'kind == "WRITE" && fd > 2'`)
	fs.StringVarP(&c.Output, "output", "o", c.Output, `trace output file ("-" for stdout)`)
	fs.StringVar(&c.Sink, "sink", c.Sink, "line sink: stdout, ring or otlp")
	fs.BoolVar(&c.Timestamps, "timestamps", c.Timestamps, "prefix lines with elapsed time")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "debug logging")
}

// SetCommand stores the command to trace.
func (c *Config) SetCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrInvalid)
	}
	c.Command = args[0]
	c.Args = args[1:]
	return nil
}

// FullCommand returns the command and all its arguments as a slice
func (c *Config) FullCommand() []string {
	return append([]string{c.Command}, c.Args...)
}

// Validate checks the values flags and environment cannot constrain.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalid, c.ChunkSize)
	}
	if c.RingSize <= 0 {
		return fmt.Errorf("%w: ring size must be positive, got %d", ErrInvalid, c.RingSize)
	}
	switch c.Sink {
	case SinkStdout, SinkRing, SinkOTLP:
	default:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalid, c.Sink)
	}
	return nil
}

// WantsStdout reports whether trace lines go to standard output.
func (c *Config) WantsStdout() bool {
	return c.Output == "" || c.Output == "-"
}
