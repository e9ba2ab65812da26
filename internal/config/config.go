// Package config parses and holds the agent's command-line configuration.
// Parsing produces a single immutable Config value; nothing downstream
// mutates it, matching the rest of the agent's preference for explicit
// values owned by whoever needs them over shared mutable globals.
package config

import (
	"flag"
	"fmt"
	"io"
)

// Defaults mirror the CLI's documented default values.
const (
	DefaultCount           = -1
	DefaultIntervalMs      = 1000
	DefaultPort            = "7259"
	DefaultUploadThreads   = 1
	DefaultBufferSize      = 36000
	DefaultVerbosity       = 1
	DefaultDiscoveryPort   = 7259
	DefaultDiscoveryGroup  = "232.0.100.0"
	DefaultDiscoveryWaitMs = 10000
)

// Config is the fully parsed, validated set of options the orchestrator
// wires the rest of the agent from.
type Config struct {
	Count           int
	IntervalMs      int
	Onboard         bool
	Address         string
	Port            string
	URL             string
	Token           string
	UploadThreads   int
	BufferSize      int
	SmartOutputOnly bool
	Verbosity       int
	Quiet           bool

	MetricsExporter string
	TraceExporter   string
	OTLPEndpoint    string
}

// ErrHelp is returned by Parse when -h was given; the caller should print
// usage and exit 0 rather than treat this as a failure.
var ErrHelp = flag.ErrHelp

// Parse parses args (typically os.Args[1:]) into a Config. usage is written
// to w when -h is given or parsing fails.
func Parse(args []string, w io.Writer) (Config, error) {
	fs := flag.NewFlagSet("pylon-agent", flag.ContinueOnError)
	fs.SetOutput(w)

	cfg := Config{}
	fs.IntVar(&cfg.Count, "c", DefaultCount, "number of measurements to take, -1 for infinite")
	fs.IntVar(&cfg.IntervalMs, "i", DefaultIntervalMs, "interval between measurements in milliseconds, negative for as fast as possible")
	fs.BoolVar(&cfg.Onboard, "o", false, "use the onboard pipe sensor board instead of a networked smart meter")
	fs.StringVar(&cfg.Address, "a", "", "address of the smart meter; discovered via multicast if omitted")
	fs.StringVar(&cfg.Port, "p", DefaultPort, "port of the smart meter")
	fs.StringVar(&cfg.URL, "u", "", "upload endpoint URL; measurements are only printed to stdout if omitted")
	fs.StringVar(&cfg.Token, "t", "", "upload token; defaults to the smart meter's resolved address")
	fs.IntVar(&cfg.UploadThreads, "n", DefaultUploadThreads, "number of upload worker threads")
	fs.IntVar(&cfg.BufferSize, "b", DefaultBufferSize, "capacity of the upload buffer, in measurements")
	fs.BoolVar(&cfg.SmartOutputOnly, "s", false, "print only values that differ from zero/unset")
	fs.IntVar(&cfg.Verbosity, "v", DefaultVerbosity, "log verbosity, 0 (silent) to 3 (debug)")
	fs.BoolVar(&cfg.Quiet, "q", false, "suppress stdout measurement output")

	fs.StringVar(&cfg.MetricsExporter, "metrics-exporter", "none", "OpenTelemetry metrics exporter: none, stdout, otlp-grpc, otlp-http")
	fs.StringVar(&cfg.TraceExporter, "trace-exporter", "none", "OpenTelemetry trace exporter: none, stdout, otlp-grpc, otlp-http")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", "", "endpoint for OTLP metrics/trace exporters")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.UploadThreads < 0 {
		return Config{}, fmt.Errorf("upload_threads must not be negative, got %d", cfg.UploadThreads)
	}
	if cfg.BufferSize < 1 {
		return Config{}, fmt.Errorf("buffer_size must be at least 1, got %d", cfg.BufferSize)
	}
	if cfg.Quiet {
		cfg.Verbosity = 0
	}

	return cfg, nil
}
