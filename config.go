package pageflow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/pageflow/internal/engine"
)

// EnvPrefix prefixes the environment variables read by LoadConfig.
const EnvPrefix = "PAGEFLOW_"

// Config configures a Runner.
type Config struct {
	// Expiration is how long a continuation may stay idle before it is
	// swept.
	Expiration time.Duration `yaml:"expiration"`
	// SweepInterval is the period of the background sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Retention is how long swept tickets are remembered. Zero keeps them
	// forever.
	Retention time.Duration `yaml:"retention"`
	// ActionDirectory is handed to the Loader for classes that are not
	// registered.
	ActionDirectory string `yaml:"action_directory"`
	// MaxCascadeDepth bounds chains of follow-up events.
	MaxCascadeDepth int `yaml:"max_cascade_depth"`

	Log LogConfig `yaml:"log"`

	// Flows lists YAML flow definition files registered by NewRunner.
	Flows []string `yaml:"flows"`
}

// LogConfig selects the level and format of the logger built by NewLogger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Expiration:      engine.DefaultExpiration,
		SweepInterval:   time.Minute,
		Retention:       24 * time.Hour,
		MaxCascadeDepth: 64,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path on top of DefaultConfig, then applies PAGEFLOW_*
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is provided by the caller.
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	durations := map[string]*time.Duration{
		"EXPIRATION":     &c.Expiration,
		"SWEEP_INTERVAL": &c.SweepInterval,
		"RETENTION":      &c.Retention,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "MAX_CASCADE_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_CASCADE_DEPTH: %w", EnvPrefix, err)
		}
		c.MaxCascadeDepth = n
	}
	if v, ok := lookup(EnvPrefix + "ACTION_DIRECTORY"); ok {
		c.ActionDirectory = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvPrefix + "FLOWS"); ok {
		c.Flows = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Flows = append(c.Flows, p)
			}
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Expiration <= 0:
		return fmt.Errorf("config: expiration must be positive, got %s", c.Expiration)
	case c.SweepInterval <= 0:
		return fmt.Errorf("config: sweep_interval must be positive, got %s", c.SweepInterval)
	case c.Retention < 0:
		return fmt.Errorf("config: retention must not be negative, got %s", c.Retention)
	case c.MaxCascadeDepth < 0:
		return fmt.Errorf("config: max_cascade_depth must not be negative, got %d", c.MaxCascadeDepth)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds a slog.Logger writing to w as configured. A nil w
// writes to stderr.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
