// Package config resolves the scanner's runtime settings. Values layer in a
// fixed order: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags override all three in the
// commands themselves.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Duration lets YAML configs spell durations the way flags do ("30s",
// "500ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the full runtime configuration for a scan.
type Config struct {
	// UserAgent overrides the User-Agent header on page fetches.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each page fetch.
	Timeout Duration `yaml:"timeout"`

	// Delay is the base pause before each fetch; Jitter is a random extra
	// added on top so request timing does not look mechanical.
	Delay  Duration `yaml:"delay"`
	Jitter Duration `yaml:"jitter"`

	Store StoreConfig `yaml:"store"`
	Tiles TileConfig  `yaml:"tiles"`
}

// StoreConfig selects and parameterizes the record store backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

// TileConfig parameterizes the map's tile layer. Zero values fall back to
// the renderer's built-in provider.
type TileConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Attribution string `yaml:"attribution"`
	MaxZoom     int    `yaml:"max_zoom"`
}

// Defaults returns the configuration used when nothing overrides it: a CSV
// store in the working directory and polite fetch pacing.
func Defaults() Config {
	return Config{
		Timeout: Duration(30 * time.Second),
		Delay:   Duration(500 * time.Millisecond),
		Jitter:  Duration(250 * time.Millisecond),
		Store: StoreConfig{
			Kind: "csv",
			Path: "properties.csv",
		},
	}
}

// Load builds the effective configuration from defaults, the optional YAML
// file at path, and environment variables.
//
// Errors:
//   - The file is only required when path is non-empty.
//   - A present but unparsable file is an error.
func Load(path string) (Config, error) {
	// An optional .env lands in the environment before overrides are read.
	// A missing .env is fine; godotenv never replaces variables that are
	// already set.
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.UserAgent, "SCRAPER_USER_AGENT")
	set(&c.Store.Kind, "STORE_KIND")
	set(&c.Store.Path, "STORE_PATH")
	set(&c.Store.DSN, "STORE_DSN")
	set(&c.Tiles.URL, "TILE_URL")
	set(&c.Tiles.APIKey, "TILE_API_KEY")
	set(&c.Tiles.Attribution, "TILE_ATTRIBUTION")
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single problem found in a configuration.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks cfg and reports problems. Issues with SeverityError
// should stop a run; warnings are advisory.
func Validate(cfg Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, msg string) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: msg})
	}

	if cfg.Timeout <= 0 {
		add(SeverityError, "timeout", "must be greater than zero")
	}
	if cfg.Delay < 0 {
		add(SeverityError, "delay", "must not be negative")
	}
	if cfg.Jitter < 0 {
		add(SeverityError, "jitter", "must not be negative")
	}

	switch kind := strings.TrimSpace(cfg.Store.Kind); kind {
	case "":
		add(SeverityError, "store.kind", "must be set")
	case "csv":
		if cfg.Store.Path == "" {
			add(SeverityError, "store.path", "csv store needs a file path")
		}
	case "sqlite":
		if cfg.Store.DSN == "" && cfg.Store.Path == "" {
			add(SeverityError, "store.dsn", "sqlite store needs a dsn or a path")
		}
	default:
		if cfg.Store.DSN == "" {
			add(SeverityError, "store.dsn", fmt.Sprintf("%s store needs a dsn", kind))
		}
	}

	if cfg.Tiles.MaxZoom < 0 {
		add(SeverityError, "tiles.max_zoom", "must not be negative")
	}
	if strings.Contains(cfg.Tiles.URL, "{key}") && cfg.Tiles.APIKey == "" {
		add(SeverityWarning, "tiles.url", "URL has a {key} placeholder but no api_key is set")
	}

	return issues
}
