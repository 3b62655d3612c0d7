package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Config contains the telemetry configuration for the cycle kernel.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `json:"service_name" yaml:"service_name"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `json:"service_version" yaml:"service_version"`

	// Environment specifies the deployment environment (dev, staging, prod).
	Environment string `json:"environment" yaml:"environment"`

	// Logging contains logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `json:"level" yaml:"level"`

	// Format specifies the log format (console, json).
	Format string `json:"format" yaml:"format"`

	// Output specifies where logs are written (stdout, stderr, discard, file path).
	Output string `json:"output" yaml:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `json:"exporter" yaml:"exporter"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `json:"export_timeout" yaml:"export_timeout"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `json:"insecure" yaml:"insecure"`
}

// UnmarshalJSON accepts export_timeout as a duration string ("30s") or as
// integer nanoseconds.
func (t *TracingConfig) UnmarshalJSON(data []byte) error {
	type plain TracingConfig
	aux := struct {
		*plain
		ExportTimeout json.RawMessage `json:"export_timeout"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.ExportTimeout) == 0 || string(aux.ExportTimeout) == "null" {
		return nil
	}
	d, err := ParseDuration(aux.ExportTimeout)
	if err != nil {
		return fmt.Errorf("export_timeout: %w", err)
	}
	t.ExportTimeout = d
	return nil
}

// ParseDuration decodes a JSON duration written either as a Go duration
// string or as integer nanoseconds.
func ParseDuration(raw json.RawMessage) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.ParseDuration(s)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %s", raw)
	}
	return time.Duration(n), nil
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ListenAddress is the address for the metrics HTTP endpoint.
	ListenAddress string `json:"listen_address" yaml:"listen_address"`

	// Path is the HTTP path for metrics (default: /metrics).
	Path string `json:"path" yaml:"path"`

	// Namespace is the metrics namespace prefix.
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a default telemetry configuration. Tracing is off and
// metrics are collected but not served until StartMetricsServer is called.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "cyclekernel",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "cyclekernel",
		},
	}
}

// TestConfig returns a quiet configuration for tests: logs discarded, no tracing.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Logging.Output = "discard"
	cfg.Logging.Format = "json"
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path is required when metrics are enabled")
	}

	return nil
}
