package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultRefreshCron = "*/15 * * * *"
	defaultMaxRows     = 11
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// SourceID returns the ID used to tag imported events: ID, else Name,
// else URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayoutConfig tunes the week banner layout.
type LayoutConfig struct {
	// MaxRows is the number of banner rows per week before overlap.
	MaxRows int `yaml:"max_rows" json:"max_rows"`
	// OpenEnd is "week_end" (default) or "start".
	OpenEnd string `yaml:"open_end" json:"open_end"`
	// Order is "start" (default) or "given".
	Order string `yaml:"order" json:"order"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone imported events are shown in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for ICS imports.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound the ICS expansion window.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// DataPath is the JSON file holding the event store.
	DataPath string `yaml:"data_path" json:"data_path"`
	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// DatabaseURL enables Postgres backups when set.
	DatabaseURL string `yaml:"database_url,omitempty" json:"-"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// envOverrides are applied after the YAML file; empty values are ignored.
type envOverrides struct {
	Listen       string `env:"DEALERCAL_LISTEN"`
	Timezone     string `env:"DEALERCAL_TIMEZONE"`
	DataPath     string `env:"DEALERCAL_DATA_PATH"`
	DatabaseURL  string `env:"DEALERCAL_DATABASE_URL"`
	LogLevel     string `env:"DEALERCAL_LOG_LEVEL"`
	LogFormat    string `env:"DEALERCAL_LOG_FORMAT"`
	AuthUser     string `env:"DEALERCAL_AUTH_USERNAME"`
	AuthPassword string `env:"DEALERCAL_AUTH_PASSWORD"`
	MaxRows      int    `env:"DEALERCAL_LAYOUT_MAX_ROWS"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		WeekStart:    "monday",
		RefreshCron:  defaultRefreshCron,
		HorizonDays:  90,
		BackfillDays: 30,
		DataPath:     "./var/events.json",
		CacheDir:     "./var/ics-cache",
		LogLevel:     "info",
		LogFormat:    "text",
		Layout: LayoutConfig{
			MaxRows: defaultMaxRows,
			OpenEnd: "week_end",
			Order:   "start",
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if _, err := time.LoadLocation(c.Timezone); c.Timezone == "" || err != nil {
		c.Timezone = d.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = d.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	} else if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.DataPath == "" {
		c.DataPath = d.DataPath
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}

	if c.Layout.MaxRows <= 0 {
		c.Layout.MaxRows = d.Layout.MaxRows
	}
	switch c.Layout.OpenEnd {
	case "week_end", "start":
	default:
		c.Layout.OpenEnd = d.Layout.OpenEnd
	}
	switch c.Layout.Order {
	case "start", "given":
	default:
		c.Layout.Order = d.Layout.Order
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// ApplyEnv overlays DEALERCAL_* environment variables.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, o.Listen)
	set(&c.Timezone, o.Timezone)
	set(&c.DataPath, o.DataPath)
	set(&c.DatabaseURL, o.DatabaseURL)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)
	if o.MaxRows > 0 {
		c.Layout.MaxRows = o.MaxRows
	}
	if o.AuthUser != "" && o.AuthPassword != "" {
		c.BasicAuth = &BasicAuthConfig{Username: o.AuthUser, Password: o.AuthPassword}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return nil, fmt.Errorf("config: write default %s: %w", path, err)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
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

	tmp, err := os.CreateTemp(dir, ".dealercal-config-*.tmp")
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
