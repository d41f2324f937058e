package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the default config file name looked up by the commands.
const FileName = "bankdrop.yaml"

// Config represents the top-level bankdrop.yaml configuration.
type Config struct {
	ResultsDir string       `yaml:"results_dir"`
	Store      StoreConfig  `yaml:"store"`
	Ingest     IngestConfig `yaml:"ingest"`
	Watch      WatchConfig  `yaml:"watch"`
	Log        LogConfig    `yaml:"log"`
}

// StoreConfig selects and locates the relational store.
type StoreConfig struct {
	Driver string `yaml:"driver"`        // "sqlite" or "postgres"
	Path   string `yaml:"path"`          // sqlite database file
	DSN    string `yaml:"dsn,omitempty"` // postgres connection string
}

// IngestConfig controls how a single document is handled.
type IngestConfig struct {
	Extension  string `yaml:"extension"`
	Dedup      bool   `yaml:"dedup"`
	ArchiveDir string `yaml:"archive_dir,omitempty"`
	AuditLog   string `yaml:"audit_log,omitempty"`
}

// WatchConfig sizes the watch mode worker pool.
type WatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load reads a bankdrop.yaml file from disk. Fields left out of the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		ResultsDir: "results",
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "bank.db",
		},
		Ingest: IngestConfig{
			Extension: ".json",
			AuditLog:  filepath.Join("logs", "ingest-log.csv"),
		},
		Watch: WatchConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve makes relative filesystem paths absolute against baseDir,
// normally the directory holding the config file.
func (c *Config) Resolve(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || p == ":memory:" {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.ResultsDir = abs(c.ResultsDir)
	c.Store.Path = abs(c.Store.Path)
	c.Ingest.ArchiveDir = abs(c.Ingest.ArchiveDir)
	c.Ingest.AuditLog = abs(c.Ingest.AuditLog)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ResultsDir == "" {
		return errors.New("results_dir is required")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if !strings.HasPrefix(c.Ingest.Extension, ".") {
		return fmt.Errorf("ingest.extension %q must start with a dot", c.Ingest.Extension)
	}
	if c.Watch.Workers < 1 {
		return fmt.Errorf("watch.workers must be >= 1, got %d", c.Watch.Workers)
	}
	if c.Watch.QueueSize < 1 {
		return fmt.Errorf("watch.queue_size must be >= 1, got %d", c.Watch.QueueSize)
	}
	return nil
}
