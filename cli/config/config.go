package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config represents an imgbatch.yaml project config file.
// All fields are optional; CLI flags override any value set here.
type Config struct {
	Source      string        `yaml:"source"`
	Dest        string        `yaml:"dest"`
	Scale       *float64      `yaml:"scale,omitempty"`
	Workers     int           `yaml:"workers"`
	MaxInFlight int           `yaml:"max_in_flight"`
	Quality     int           `yaml:"quality"`
	Clean       bool          `yaml:"clean"`
	LogLevel    string        `yaml:"log_level"`
	Report      ReportConfig  `yaml:"report"`
	Ledger      LedgerConfig  `yaml:"ledger"`
	Adapter     AdapterConfig `yaml:"adapter"`
}

// ReportConfig selects where and how the batch report is written.
type ReportConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// LedgerConfig holds task ledger storage settings.
type LedgerConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion notification settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values and numeric ranges.
// Empty values are accepted; the run command applies its own defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Scale != nil && (math.IsNaN(*c.Scale) || math.IsInf(*c.Scale, 0) || *c.Scale <= 0) {
		errs = append(errs, fmt.Errorf("scale must be a positive number, got %v", *c.Scale))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("max_in_flight must be >= 0, got %d", c.MaxInFlight))
	}
	if c.Quality < 0 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be within 0..100, got %d", c.Quality))
	}
	switch c.Report.Format {
	case "", "json", "yaml", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("report.format %q is not one of json, yaml, msgpack", c.Report.Format))
	}
	switch c.Ledger.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q is not one of fs, s3", c.Ledger.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q is not one of webhook, redis", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}
