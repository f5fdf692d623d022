package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"missingrecord/internal/models"
)

// Config represents configuration data for one missing-record run.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	HTS      string `yaml:"hts"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`

	MeasurementsFile string `yaml:"measurements_file"`
	SitesFile        string `yaml:"sites_file"`
	OverridesFile    string `yaml:"overrides_file"`

	Regions        []models.RegionGroup `yaml:"regions"`
	RegionTieBreak string               `yaml:"region_tie_break"`

	Annex1Buckets []string `yaml:"Annex_1_buckets"`
	Annex2Buckets []string `yaml:"Annex_2_buckets"`
	Annex3Sites   []string `yaml:"Annex_3_sites"`

	Frequency Frequency `yaml:"frequency"`

	Concurrency       int           `yaml:"concurrency"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	OutputDirectory string `yaml:"output_directory"`
	DataDirectory   string `yaml:"data_directory"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
}

// Frequency controls the canonical sampling grid.
type Frequency struct {
	Default           time.Duration `yaml:"default"`
	Cumulative        time.Duration `yaml:"cumulative"`
	CumulativeBuckets []string      `yaml:"cumulative_buckets"`
	Infer             bool          `yaml:"infer"`
}

// Database configures the optional SQL catalog source and summary store.
type Database struct {
	Enabled        bool          `yaml:"enabled"`
	DSNEnv         string        `yaml:"dsn_env"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	SitesQuery     string        `yaml:"sites_query"`
	OverridesQuery string        `yaml:"overrides_query"`
}

// DSN resolves the connection string from the configured environment variable.
func (d Database) DSN() string {
	return os.Getenv(d.DSNEnv)
}

// Log configures the global logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Timezone:         "UTC",
		MeasurementsFile: filepath.Join("config_files", "Active_Measurements.csv"),
		RegionTieBreak:   "last",
		Frequency: Frequency{
			Default:           15 * time.Minute,
			Cumulative:        2 * time.Hour,
			CumulativeBuckets: []string{"Rainfall"},
		},
		Concurrency:       1,
		RequestTimeout:    60 * time.Second,
		RequestsPerSecond: 5,
		OutputDirectory:   "output_csv",
		DataDirectory:     filepath.Join(".dist", "data"),
		Database: Database{
			DSNEnv:       "MISSING_RECORD_DSN",
			QueryTimeout: 30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from yaml file and validates it.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("configuration path is required")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.RegionTieBreak == "" {
		cfg.RegionTieBreak = defaults.RegionTieBreak
	}
	if cfg.Frequency.Default <= 0 {
		cfg.Frequency.Default = defaults.Frequency.Default
	}
	if cfg.Frequency.Cumulative <= 0 {
		cfg.Frequency.Cumulative = defaults.Frequency.Cumulative
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.OutputDirectory == "" {
		cfg.OutputDirectory = defaults.OutputDirectory
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = defaults.DataDirectory
	}
	if cfg.Database.DSNEnv == "" {
		cfg.Database.DSNEnv = defaults.Database.DSNEnv
	}
	if cfg.Database.QueryTimeout <= 0 {
		cfg.Database.QueryTimeout = defaults.Database.QueryTimeout
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every run depends on. The window itself is
// checked by Window because --period may replace it.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.HTS == "" {
		return errors.New("hts is required")
	}
	if c.MeasurementsFile == "" {
		return errors.New("measurements_file is required")
	}
	if !c.Database.Enabled && c.SitesFile == "" {
		return errors.New("sites_file is required when the database is disabled")
	}
	if c.RegionTieBreak != "last" && c.RegionTieBreak != "first" {
		return fmt.Errorf("region_tie_break must be first or last, got %q", c.RegionTieBreak)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	for i, region := range c.Regions {
		if region.Name == "" {
			return fmt.Errorf("region %d is missing name", i)
		}
		if strings.ContainsAny(region.Name, `/\`) || strings.Contains(region.Name, "..") {
			return fmt.Errorf("region name %q must not contain path separators or ..", region.Name)
		}
		if len(region.CatalogRegions) == 0 {
			return fmt.Errorf("region %s must list catalog_regions", region.Name)
		}
	}
	return nil
}

// Location returns the timezone used to read naive timestamps.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window parses the configured global reporting window.
func (c Config) Window() (models.Window, error) {
	loc := c.Location()
	start, err := ParseTime(c.Start, loc)
	if err != nil {
		return models.Window{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTime(c.End, loc)
	if err != nil {
		return models.Window{}, fmt.Errorf("end: %w", err)
	}
	w := models.Window{Start: start, End: end}
	if !w.Valid() {
		return models.Window{}, fmt.Errorf("window start %s must be before end %s", c.Start, c.End)
	}
	return w, nil
}
