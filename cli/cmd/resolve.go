package cmd

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imgbatch/cli/config"
	"github.com/pithecene-io/imgbatch/runtime"
)

// Precedence for every run setting: an explicitly set flag, then the
// config file value, then the flag default.

func resolveString(c *cli.Context, name, configVal string) string {
	if c.IsSet(name) || configVal == "" {
		return c.String(name)
	}
	return configVal
}

func resolveInt(c *cli.Context, name string, configVal int) int {
	if c.IsSet(name) || configVal == 0 {
		return c.Int(name)
	}
	return configVal
}

func resolveIntPtr(c *cli.Context, name string, configVal *int) int {
	if c.IsSet(name) || configVal == nil {
		return c.Int(name)
	}
	return *configVal
}

func resolveFloat(c *cli.Context, name string, configVal *float64) float64 {
	if c.IsSet(name) || configVal == nil {
		return c.Float64(name)
	}
	return *configVal
}

func resolveBool(c *cli.Context, name string, configVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return configVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, configVal time.Duration) time.Duration {
	if c.IsSet(name) || configVal == 0 {
		return c.Duration(name)
	}
	return configVal
}

// resolveHeaders merges Key=Value flag headers over config headers.
func resolveHeaders(c *cli.Context, name string, configVal map[string]string) (map[string]string, error) {
	flagVals := c.StringSlice(name)
	if len(configVal) == 0 && len(flagVals) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(configVal)+len(flagVals))
	for k, v := range configVal {
		headers[k] = v
	}
	for _, kv := range flagVals {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--%s %q must be Key=Value", name, kv)
		}
		headers[strings.TrimSpace(k)] = v
	}
	return headers, nil
}

// loadRunOptions reads --config when set and resolves every run setting.
func loadRunOptions(c *cli.Context) (runOptions, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return runOptions{}, err
		}
		cfg = loaded
	}

	headers, err := resolveHeaders(c, "adapter-header", cfg.Adapter.Headers)
	if err != nil {
		return runOptions{}, err
	}

	opts := runOptions{
		source:       resolveString(c, "source", cfg.Source),
		dest:         resolveString(c, "dest", cfg.Dest),
		scale:        resolveFloat(c, "scale", cfg.Scale),
		workers:      resolveInt(c, "workers", cfg.Workers),
		maxInFlight:  resolveInt(c, "max-in-flight", cfg.MaxInFlight),
		quality:      resolveInt(c, "quality", cfg.Quality),
		clean:        resolveBool(c, "clean", cfg.Clean),
		logLevel:     resolveString(c, "log-level", cfg.LogLevel),
		quiet:        c.Bool("quiet"),
		tui:          c.Bool("tui"),
		reportPath:   resolveString(c, "report", cfg.Report.Path),
		reportFormat: resolveString(c, "report-format", cfg.Report.Format),
		ledger: ledgerChoice{
			backend:   resolveString(c, "ledger-backend", cfg.Ledger.Backend),
			path:      resolveString(c, "ledger-path", cfg.Ledger.Path),
			region:    resolveString(c, "ledger-s3-region", cfg.Ledger.Region),
			endpoint:  resolveString(c, "ledger-s3-endpoint", cfg.Ledger.Endpoint),
			pathStyle: resolveBool(c, "ledger-s3-path-style", cfg.Ledger.S3PathStyle),
		},
		adapter: adapterChoice{
			typ:     resolveString(c, "adapter", cfg.Adapter.Type),
			url:     resolveString(c, "adapter-url", cfg.Adapter.URL),
			channel: resolveString(c, "adapter-channel", cfg.Adapter.Channel),
			headers: headers,
			timeout: resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
			retries: resolveIntPtr(c, "adapter-retries", cfg.Adapter.Retries),
		},
	}

	return opts, opts.validate()
}

// validate checks the resolved options. Config-file values were already
// checked by config.Load; flags are checked here.
func (o runOptions) validate() error {
	var errs []error
	if o.source == "" {
		errs = append(errs, errNoSource)
	}
	if o.dest == "" {
		errs = append(errs, errNoDest)
	}
	if math.IsNaN(o.scale) || math.IsInf(o.scale, 0) || o.scale <= 0 {
		errs = append(errs, fmt.Errorf("scale must be a positive number, got %v", o.scale))
	}
	if o.workers < 0 || o.maxInFlight < 0 {
		errs = append(errs, errors.New("workers and max-in-flight must be >= 0"))
	}
	if o.quality < 0 || o.quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be within 0..100, got %d", o.quality))
	}
	if !runtime.ValidReportFormat(o.reportFormat) {
		errs = append(errs, fmt.Errorf("report format %q is not one of json, yaml, msgpack", o.reportFormat))
	}
	switch o.adapter.typ {
	case "":
	case "webhook", "redis":
		if o.adapter.url == "" {
			errs = append(errs, fmt.Errorf("adapter %s requires --adapter-url", o.adapter.typ))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter %q (must be webhook or redis)", o.adapter.typ))
	}
	if o.adapter.retries < 0 {
		errs = append(errs, fmt.Errorf("adapter retries must be >= 0, got %d", o.adapter.retries))
	}
	return errors.Join(errs...)
}
