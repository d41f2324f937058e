package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/minseodaa/bankdrop/internal/config"
	"github.com/minseodaa/bankdrop/internal/store"
)

type initOptions struct {
	driver string
	dsn    string
	dedup  bool
	force  bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a bankdrop project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), cmd.OutOrStdout(), absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.driver, "driver", "sqlite", "store driver: sqlite or postgres")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "postgres connection string")
	cmd.Flags().BoolVar(&opts.dedup, "dedup", false, "store each distinct document at most once")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing config file")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir string, opts initOptions) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if !opts.force {
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking config: %w", err)
		}
	}

	cfg := config.Default()
	cfg.Store.Driver = opts.driver
	cfg.Store.DSN = opts.dsn
	cfg.Ingest.Dedup = opts.dedup

	// Validate the resolved copy; the file keeps relative paths.
	resolved := *cfg
	resolved.Resolve(dir)
	if err := resolved.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	for _, d := range []string{resolved.ResultsDir, filepath.Dir(resolved.Ingest.AuditLog)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	st, err := store.Open(ctx, resolved.Store)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}

	fmt.Fprintf(out, "Initialized bankdrop project at %s\n", dir)
	fmt.Fprintf(out, "Drop analysis documents into %s\n", resolved.ResultsDir)
	return nil
}
