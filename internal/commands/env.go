package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/minseodaa/bankdrop/internal/auditlog"
	"github.com/minseodaa/bankdrop/internal/config"
	"github.com/minseodaa/bankdrop/internal/ingest"
	"github.com/minseodaa/bankdrop/internal/store"
)

// globalOptions holds the persistent flags shared by all subcommands.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig reads the config file (defaults if it is missing), resolves
// relative paths against its directory and applies flag overrides.
func (o *globalOptions) loadConfig(override func(*config.Config)) (*config.Config, error) {
	path, err := filepath.Abs(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	cfg.Resolve(filepath.Dir(path))

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as slog's default.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	case "text", "":
		h = slog.NewTextHandler(w, hopts)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

// env is the state of one command run that writes to the store.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store.Store
	pipeline *ingest.Pipeline
	runID    string
}

func (o *globalOptions) open(ctx context.Context, stderr io.Writer, override func(*config.Config)) (*env, error) {
	cfg, err := o.loadConfig(override)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(stderr, cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	runID := auditlog.NewRunID()
	popts := ingest.Options{
		Dedup:      cfg.Ingest.Dedup,
		ArchiveDir: cfg.Ingest.ArchiveDir,
		RunID:      runID,
		Logger:     log,
	}
	if cfg.Ingest.AuditLog != "" {
		popts.Audit = auditlog.New(cfg.Ingest.AuditLog)
	}

	log.Debug("bankdrop: store opened", "driver", cfg.Store.Driver, "run_id", runID)
	return &env{
		cfg:      cfg,
		log:      log,
		store:    st,
		pipeline: ingest.New(st, popts),
		runID:    runID,
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// resultsDirFlag returns an override that points the run at dir, if set.
func resultsDirFlag(dir *string) func(*config.Config) {
	return func(cfg *config.Config) {
		if *dir == "" {
			return
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			cfg.ResultsDir = abs
		} else {
			cfg.ResultsDir = *dir
		}
	}
}
