package telemetry

import (
	"fmt"
	"time"
)

// Config is the full telemetry configuration: service identity, logging,
// tracing, and metrics. The zero value is not usable; start from
// DefaultConfig and override.
type Config struct {
	// ServiceName and ServiceVersion identify this process in logs,
	// spans, and metric labels.
	ServiceName    string
	ServiceVersion string

	// Environment is the deployment environment (development, staging,
	// production).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig

	// ResourceAttributes are extra OTel resource attributes attached to
	// every exported span.
	ResourceAttributes map[string]string
}

// LoggingConfig configures the zerolog-backed structured logger.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal.
	Level string

	// Format is "json" or "console".
	Format string

	// Output is "stdout", "stderr", or a file path (opened for append).
	Output string

	// EnableCaller adds file:line to every event.
	EnableCaller bool

	// Sampling caps bursty logging: after SamplingInitial events in a
	// second, only every SamplingThereafter-th event is kept.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	// TimeFormat is rfc3339 (default), unix, unixms, or unixmicro.
	TimeFormat string
}

// TracingConfig configures the OTel trace pipeline.
type TracingConfig struct {
	Enabled bool

	// Exporter is "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP gRPC target, e.g. "localhost:4317".
	Endpoint string

	// SamplingRate is the head sampling ratio in [0, 1].
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration

	// Headers are added to every OTLP export request.
	Headers map[string]string

	// Insecure dials the OTLP endpoint without TLS.
	Insecure bool
}

// MetricsConfig configures the Prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	Enabled bool

	// ListenAddress is the bind address for the metrics server.
	ListenAddress string

	// Path is the scrape path, default /metrics.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns the baseline configuration: console logging at
// info, tracing and metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "mantle",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9464",
			Path:          "/metrics",
			Namespace:     "mantle",
			DefaultHistogramBuckets: []float64{
				0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
			},
		},
		ResourceAttributes: map[string]string{},
	}
}

// Validate checks the configuration before any component is constructed.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Tracing.validate(); err != nil {
		return err
	}
	return c.Metrics.validate()
}

func (c LoggingConfig) validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}
	return nil
}

func (c TracingConfig) validate() error {
	if c.Enabled {
		switch c.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Exporter)
		}
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.SamplingRate)
	}
	return nil
}

func (c MetricsConfig) validate() error {
	if c.Enabled && c.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}
