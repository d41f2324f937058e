package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/minseodaa/bankdrop/internal/drop"
	"github.com/minseodaa/bankdrop/internal/extract"
)

func newDropCommand(opts *globalOptions) *cobra.Command {
	var (
		dir    string
		direct bool
	)

	cmd := &cobra.Command{
		Use:   "drop [file|-]",
		Short: "Write a recognition response into the results directory",
		Long: `Drop extracts the JSON objects from a recognition response (read from a
file, or stdin when the argument is "-" or missing) and writes them atomically
as analysis_<millis>.json in the results directory, where a running watcher
picks them up. With --direct the record is stored immediately instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readResponse(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			if direct {
				return dropDirect(cmd, opts, &dir, text)
			}

			cfg, err := opts.loadConfig(resultsDirFlag(&dir))
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}

			path, err := drop.NewWriter(cfg.ResultsDir).WriteResponse(text)
			if err != nil {
				return fmt.Errorf("dropping response: %w", err)
			}
			log.Debug("drop: wrote document", "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "results directory (overrides config)")
	cmd.Flags().BoolVar(&direct, "direct", false, "store the record now instead of writing a file")

	return cmd
}

func readResponse(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(data), nil
}

func dropDirect(cmd *cobra.Command, opts *globalOptions, dir *string, text string) error {
	doc, err := drop.ParseResponse(text)
	if err != nil {
		return fmt.Errorf("dropping response: %w", err)
	}
	rec, ok := extract.Extract(doc)
	if !ok {
		return errors.New("response has no Left section")
	}

	e, err := opts.open(cmd.Context(), cmd.ErrOrStderr(), resultsDirFlag(dir))
	if err != nil {
		return err
	}
	defer e.Close()

	stored, err := e.pipeline.Append(cmd.Context(), rec)
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored record %d\n", stored.ID)
	return nil
}
