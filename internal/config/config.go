package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "SHIFPOST_"

// ExportConfig controls the scheduled monthly export.
type ExportConfig struct {
	// Cron is a 5-field cron expression. Default: 06:00 on the 1st.
	Cron string `yaml:"cron" json:"cron"`
	// Dir receives the exported files. Empty disables the export.
	Dir string `yaml:"dir" json:"dir"`
	// Users lists the user ids exported on every run.
	Users []string `yaml:"users" json:"users"`
}

// PDFConfig controls report rendering through headless Chromium.
type PDFConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ImportConfig controls fetching of remote calendar feeds.
type ImportConfig struct {
	// CacheDir keeps the last good copy of each feed. Empty disables caching.
	CacheDir       string `yaml:"cache_dir" json:"cache_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone dates are normalized to and exported in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Product prefixes export file names and the UID domain.
	Product             string `yaml:"product" json:"product"`
	CalendarName        string `yaml:"calendar_name" json:"calendar_name"`
	CalendarDescription string `yaml:"calendar_description" json:"calendar_description"`

	// HourlyWage is used when a request does not carry a wage.
	HourlyWage float64 `yaml:"hourly_wage" json:"hourly_wage"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Export ExportConfig `yaml:"export" json:"export"`
	PDF    PDFConfig    `yaml:"pdf" json:"pdf"`
	Import ImportConfig `yaml:"import" json:"import"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		Timezone:            "Asia/Tokyo",
		Product:             "shif-post",
		CalendarName:        "Shif-Post シフト表",
		CalendarDescription: "Shif-Postで作成されたシフト表",
		HourlyWage:          1000,
		LogLevel:            "info",
		Export: ExportConfig{
			Cron:  "0 6 1 * *",
			Users: []string{},
		},
		PDF: PDFConfig{
			Enabled:        false,
			TimeoutSeconds: 30,
		},
		Import: ImportConfig{
			TimeoutSeconds: 15,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Product == "" {
		c.Product = def.Product
	}
	if c.CalendarName == "" {
		c.CalendarName = def.CalendarName
	}
	if c.CalendarDescription == "" {
		c.CalendarDescription = def.CalendarDescription
	}
	if c.HourlyWage <= 0 {
		c.HourlyWage = def.HourlyWage
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Export.Cron == "" {
		c.Export.Cron = def.Export.Cron
	}
	if c.Export.Users == nil {
		c.Export.Users = []string{}
	}
	if c.PDF.TimeoutSeconds <= 0 {
		c.PDF.TimeoutSeconds = def.PDF.TimeoutSeconds
	}
	if c.Import.TimeoutSeconds <= 0 {
		c.Import.TimeoutSeconds = def.Import.TimeoutSeconds
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PDFTimeout returns the render timeout as a duration.
func (c *Config) PDFTimeout() time.Duration {
	return time.Duration(c.PDF.TimeoutSeconds) * time.Second
}

// ImportTimeout returns the feed fetch timeout as a duration.
func (c *Config) ImportTimeout() time.Duration {
	return time.Duration(c.Import.TimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - A .env file in the working directory, if present, is loaded into the
//     process environment first. Existing variables are not overwritten.
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and used.
//   - SHIFPOST_* variables override values from the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from SHIFPOST_* variables read through getenv.
// Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) error {
		v := strings.TrimSpace(getenv(EnvPrefix + key))
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
		return nil
	}

	str("LISTEN", &c.Listen)
	str("TIMEZONE", &c.Timezone)
	str("PRODUCT", &c.Product)
	str("LOG_LEVEL", &c.LogLevel)
	str("EXPORT_CRON", &c.Export.Cron)
	str("EXPORT_DIR", &c.Export.Dir)
	str("IMPORT_CACHE_DIR", &c.Import.CacheDir)

	if err := num("HOURLY_WAGE", &c.HourlyWage); err != nil {
		return err
	}

	if v := strings.TrimSpace(getenv(EnvPrefix + "EXPORT_USERS")); v != "" {
		var users []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				users = append(users, u)
			}
		}
		c.Export.Users = users
	}

	if v := strings.TrimSpace(getenv(EnvPrefix + "PDF_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sPDF_ENABLED: %w", EnvPrefix, err)
		}
		c.PDF.Enabled = b
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".shifpost-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
