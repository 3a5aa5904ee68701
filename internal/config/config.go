package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"raspored/internal/layout"
	"raspored/internal/model"
	"raspored/internal/week"
)

// OverlayConfig describes one external ICS feed shown on top of the
// schedule (public holidays, exam periods).
type OverlayConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// GridConfig controls the displayed hour range and geometry of the week grid.
type GridConfig struct {
	StartHour   int     `yaml:"start_hour" json:"start_hour"`
	EndHour     int     `yaml:"end_hour" json:"end_hour"`
	RowHeightPx float64 `yaml:"row_height_px" json:"row_height_px"`
	GapPx       float64 `yaml:"gap_px" json:"gap_px"`
	// OutOfRange is "drop" (default) or "reject" for events that start
	// outside the displayed hours.
	OutOfRange string `yaml:"out_of_range" json:"out_of_range"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
	// BusyTimeout applies to sqlite only.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// RateLimitConfig bounds mutating API calls per second.
type RateLimitConfig struct {
	// Disabled turns the limiter off; PerSecond and Burst are then ignored.
	Disabled  bool    `yaml:"disabled" json:"disabled"`
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for "current week" and overlays.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// InitialWeek is the week opened when a request names none, e.g.
	// "2024-W42". Empty means the current week.
	InitialWeek string `yaml:"initial_week" json:"initial_week"`

	Grid    GridConfig    `yaml:"grid" json:"grid"`
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for periodic overlay refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Overlays []OverlayConfig `yaml:"overlays" json:"overlays"`
	CacheDir string          `yaml:"cache_dir" json:"cache_dir"`

	CORSOrigins []string        `yaml:"cors_origins" json:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Europe/Zagreb",
		LogLevel: "info",
		Grid: GridConfig{
			StartHour:   layout.DefaultStartHour,
			EndHour:     layout.DefaultEndHour,
			RowHeightPx: layout.DefaultRowHeightPx,
			GapPx:       layout.DefaultGapPx,
			OutOfRange:  "drop",
		},
		Storage: StorageConfig{
			Driver:      "sqlite",
			DSN:         "./var/raspored.db",
			BusyTimeout: 5 * time.Second,
		},
		RefreshCron: "*/30 * * * *",
		Overlays:    []OverlayConfig{},
		CacheDir:    "./var/ics-cache",
		CORSOrigins: []string{},
		RateLimit:   RateLimitConfig{PerSecond: 5, Burst: 10},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	// A zero grid means the section was omitted.
	if c.Grid.StartHour == 0 && c.Grid.EndHour == 0 {
		c.Grid.StartHour = def.Grid.StartHour
		c.Grid.EndHour = def.Grid.EndHour
	}
	if c.Grid.RowHeightPx <= 0 {
		c.Grid.RowHeightPx = def.Grid.RowHeightPx
	}
	if c.Grid.GapPx < 0 {
		c.Grid.GapPx = def.Grid.GapPx
	}
	switch c.Grid.OutOfRange {
	case "drop", "reject":
	default:
		// Unknown value; dropping matches the historical behaviour.
		c.Grid.OutOfRange = "drop"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = def.Storage.DSN
	}
	if c.Storage.BusyTimeout <= 0 {
		c.Storage.BusyTimeout = def.Storage.BusyTimeout
	}

	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Overlays == nil {
		c.Overlays = []OverlayConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
	if !c.RateLimit.Disabled {
		if c.RateLimit.PerSecond <= 0 {
			c.RateLimit.PerSecond = def.RateLimit.PerSecond
		}
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = def.RateLimit.Burst
		}
	}
}

// LayoutGrid converts the grid section into a layout.Grid.
func (c *Config) LayoutGrid() (layout.Grid, error) {
	policy, err := layout.ParsePolicy(c.Grid.OutOfRange)
	if err != nil {
		return layout.Grid{}, err
	}
	g := layout.Grid{
		StartHour:   c.Grid.StartHour,
		EndHour:     c.Grid.EndHour,
		RowHeightPx: c.Grid.RowHeightPx,
		GapPx:       c.Grid.GapPx,
		Days:        append([]time.Weekday(nil), model.Weekdays...),
		OutOfRange:  policy,
	}
	if err := g.Validate(); err != nil {
		return layout.Grid{}, fmt.Errorf("config grid: %w", err)
	}
	return g, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.LayoutGrid(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.InitialWeek != "" {
		if _, err := week.ParseISOWeek(c.InitialWeek); err != nil {
			return fmt.Errorf("config initial_week: %w", err)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		return cfg, nil
	}
	return cfg, err
}

// read parses, normalizes and validates the file at path without creating
// it. A missing file yields an error wrapping fs.ErrNotExist.
func read(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".raspored-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
