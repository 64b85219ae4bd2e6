package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"
)

// Config carries runtime options for procsampler.
type Config struct {
	Output      string        `yaml:"output"`
	Pattern     string        `yaml:"pattern"`
	Interval    time.Duration `yaml:"-"`
	Append      bool          `yaml:"append"`
	Cycles      int           `yaml:"cycles"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	MetricsAddr string        `yaml:"metrics_addr"`
	TUI         bool          `yaml:"tui"`

	// IntervalText is the raw interval from a YAML file.
	IntervalText string `yaml:"interval"`

	matcher *regexp.Regexp
}

func Default() Config {
	return Config{
		Interval:  2 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ParseInterval accepts plain seconds ("2", "0.5") or a Go duration
// ("500ms").
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Errorf("invalid interval %q", v)
	}
	return d, nil
}

type flagValues struct {
	config      string
	output      string
	pattern     string
	interval    string
	append      bool
	cycles      int
	logLevel    string
	logFormat   string
	metricsAddr string
	tui         bool
}

// FromFlags builds a Config from defaults, an optional YAML file,
// PROCSAMPLER_* environment variables and finally the command line.
func FromFlags(args []string) (Config, error) {
	var fv flagValues
	app := kingpin.New("procsampler",
		"Samples CPU, memory and thread usage of matching processes into TSV files.")
	app.Flag("config", "YAML file with default options.").
		Short('c').StringVar(&fv.config)
	app.Flag("output", "Output directory.").
		Short('o').StringVar(&fv.output)
	app.Flag("pattern", "Regular expression matched against the start of the process name or command line.").
		Short('r').StringVar(&fv.pattern)
	app.Flag("interval", "Seconds between polls (default 2).").
		StringVar(&fv.interval)
	app.Flag("append", "Append to existing files instead of truncating them.").
		BoolVar(&fv.append)
	app.Flag("cycles", "Stop after this many polls (0 runs until interrupted).").
		IntVar(&fv.cycles)
	app.Flag("log-level", "Diagnostic log level.").
		EnumVar(&fv.logLevel, "trace", "debug", "info", "warn", "error")
	app.Flag("log-format", "Diagnostic log format.").
		EnumVar(&fv.logFormat, "text", "json")
	app.Flag("metrics-addr", "Serve Prometheus metrics on this address.").
		StringVar(&fv.metricsAddr)
	app.Flag("tui", "Show a live view of the tracked processes.").
		BoolVar(&fv.tui)

	if _, err := app.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if fv.config != "" {
		if err := cfg.loadFile(fv.config); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(fv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	if c.IntervalText != "" {
		d, err := ParseInterval(c.IntervalText)
		if err != nil {
			return errors.Wrapf(err, "config %s", path)
		}
		c.Interval = d
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PROCSAMPLER_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("PROCSAMPLER_PATTERN"); v != "" {
		c.Pattern = v
	}
	if v := os.Getenv("PROCSAMPLER_INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return errors.Wrap(err, "PROCSAMPLER_INTERVAL")
		}
		c.Interval = d
	}
	if v := os.Getenv("PROCSAMPLER_APPEND"); v == "1" || v == "true" {
		c.Append = true
	}
	if v := os.Getenv("PROCSAMPLER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) applyFlags(fv flagValues) error {
	if fv.output != "" {
		c.Output = fv.output
	}
	if fv.pattern != "" {
		c.Pattern = fv.pattern
	}
	if fv.interval != "" {
		d, err := ParseInterval(fv.interval)
		if err != nil {
			return err
		}
		c.Interval = d
	}
	if fv.append {
		c.Append = true
	}
	if fv.cycles != 0 {
		c.Cycles = fv.cycles
	}
	if fv.logLevel != "" {
		c.LogLevel = fv.logLevel
	}
	if fv.logFormat != "" {
		c.LogFormat = fv.logFormat
	}
	if fv.metricsAddr != "" {
		c.MetricsAddr = fv.metricsAddr
	}
	if fv.tui {
		c.TUI = true
	}
	return nil
}

// Validate checks required options and compiles the pattern.
func (c *Config) Validate() error {
	if c.Output == "" {
		return errors.New("an output directory is required (--output)")
	}
	if c.Pattern == "" {
		return errors.New("a process pattern is required (--pattern)")
	}
	if c.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.Cycles < 0 {
		return errors.Errorf("cycles must not be negative, got %d", c.Cycles)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return errors.Wrapf(err, "invalid pattern %q", c.Pattern)
	}
	c.matcher = re
	return nil
}

// Matcher is the compiled pattern; nil until Validate succeeds.
func (c *Config) Matcher() *regexp.Regexp { return c.matcher }
