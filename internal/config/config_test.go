package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaults verifies the zero-flag configuration: a CSV store at
// properties.csv and non-zero pacing so a bare run cannot hammer a portal.
func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Defaults()

	if cfg.Store.Kind != "csv" {
		t.Errorf("Store.Kind = %q, want %q", cfg.Store.Kind, "csv")
	}
	if cfg.Store.Path != "properties.csv" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "properties.csv")
	}
	if got := time.Duration(cfg.Timeout); got != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", got)
	}
	if cfg.Delay <= 0 || cfg.Jitter <= 0 {
		t.Errorf("Delay = %v, Jitter = %v, want both > 0", cfg.Delay, cfg.Jitter)
	}
	if issues := Validate(cfg); len(issues) != 0 {
		t.Errorf("Validate(Defaults()) = %v, want no issues", issues)
	}
}

// TestLoad_FileOptional verifies that Load with an empty path succeeds and
// returns the defaults.
func TestLoad_FileOptional(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Store.Kind == "" {
		t.Error("Load(\"\") returned an empty store kind")
	}
}

// TestLoad_YAMLOverridesDefaults verifies that a config file replaces the
// values it names and leaves the rest at their defaults.
func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	doc := `user_agent: test-agent
timeout: 5s
store:
  kind: sqlite
  dsn: homes.db
tiles:
  url: https://tiles.example/{z}/{x}/{y}.png
  max_zoom: 18
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.UserAgent != "test-agent" {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, "test-agent")
	}
	if got := time.Duration(cfg.Timeout); got != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", got)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.DSN != "homes.db" {
		t.Errorf("Store = %+v, want sqlite/homes.db", cfg.Store)
	}
	if cfg.Tiles.MaxZoom != 18 {
		t.Errorf("Tiles.MaxZoom = %d, want 18", cfg.Tiles.MaxZoom)
	}

	// Unnamed values keep their defaults.
	if got := time.Duration(cfg.Delay); got != 500*time.Millisecond {
		t.Errorf("Delay = %v, want default 500ms", got)
	}
}

// TestLoad_EnvOverridesFile verifies the precedence order: environment
// variables beat the config file, which beats the defaults.
func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	doc := `store:
  kind: sqlite
  dsn: homes.db
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STORE_KIND", "postgres")
	t.Setenv("TILE_API_KEY", "sekret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Store.Kind != "postgres" {
		t.Errorf("Store.Kind = %q, want env override %q", cfg.Store.Kind, "postgres")
	}
	if cfg.Store.DSN != "homes.db" {
		t.Errorf("Store.DSN = %q, want file value %q", cfg.Store.DSN, "homes.db")
	}
	if cfg.Tiles.APIKey != "sekret" {
		t.Errorf("Tiles.APIKey = %q, want %q", cfg.Tiles.APIKey, "sekret")
	}
}

// TestLoad_DotEnv verifies that a .env file in the working directory feeds
// the environment overrides.
func TestLoad_DotEnv(t *testing.T) {
	// godotenv only fills variables that are not already set; clear this one
	// and restore whatever was there afterwards.
	if old, ok := os.LookupEnv("STORE_DSN"); ok {
		os.Unsetenv("STORE_DSN")
		t.Cleanup(func() { os.Setenv("STORE_DSN", old) })
	} else {
		t.Cleanup(func() { os.Unsetenv("STORE_DSN") })
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_DSN=postgres://db/homes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.DSN != "postgres://db/homes" {
		t.Errorf("Store.DSN = %q, want value from .env", cfg.Store.DSN)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load with a missing explicit file succeeded, want error")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	if err := os.WriteFile(path, []byte("timeout: fast\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load with a bad duration succeeded, want error")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want mention of the bad duration", err)
	}
}

// TestValidate covers the per-field checks and the severity split between
// hard errors and advisory warnings.
func TestValidate(t *testing.T) {
	t.Parallel()

	base := Defaults()

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
		wantSev  Severity
	}{
		{
			name:     "missing store kind",
			mutate:   func(c *Config) { c.Store.Kind = "" },
			wantPath: "store.kind",
			wantSev:  SeverityError,
		},
		{
			name:     "csv without path",
			mutate:   func(c *Config) { c.Store.Path = "" },
			wantPath: "store.path",
			wantSev:  SeverityError,
		},
		{
			name:     "postgres without dsn",
			mutate:   func(c *Config) { c.Store.Kind = "postgres" },
			wantPath: "store.dsn",
			wantSev:  SeverityError,
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Timeout = 0 },
			wantPath: "timeout",
			wantSev:  SeverityError,
		},
		{
			name:     "negative delay",
			mutate:   func(c *Config) { c.Delay = Duration(-time.Second) },
			wantPath: "delay",
			wantSev:  SeverityError,
		},
		{
			name:     "keyed tile url without key",
			mutate:   func(c *Config) { c.Tiles.URL = "https://tiles.example/{z}/{x}/{y}.png?apikey={key}" },
			wantPath: "tiles.url",
			wantSev:  SeverityWarning,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tc.mutate(&cfg)

			issues := Validate(cfg)
			if len(issues) == 0 {
				t.Fatalf("Validate reported no issues, want one at %s", tc.wantPath)
			}
			found := false
			for _, iss := range issues {
				if iss.Path == tc.wantPath && iss.Severity == tc.wantSev {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate = %v, want %s issue at %s", issues, tc.wantSev, tc.wantPath)
			}
		})
	}
}

// TestValidate_SQLiteAcceptsPath verifies that the sqlite backend can be
// configured with a plain file path instead of a DSN.
func TestValidate_SQLiteAcceptsPath(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Store = StoreConfig{Kind: "sqlite", Path: "homes.db"}
	if issues := Validate(cfg); len(issues) != 0 {
		t.Errorf("Validate = %v, want no issues", issues)
	}
}
