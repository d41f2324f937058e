package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minseodaa/bankdrop/internal/importer"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every analysis document in the results directory once",
		Long: `Import scans the results directory and stores one record per document
that carries a "Left" section. Files that fail are reported and skipped; the
command only fails when the directory itself cannot be read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context(), cmd.ErrOrStderr(), resultsDirFlag(&dir))
			if err != nil {
				return err
			}
			defer e.Close()

			im := importer.New(e.pipeline, e.cfg.Ingest.Extension, e.log)
			report, err := im.ImportAll(cmd.Context(), e.cfg.ResultsDir)
			if err != nil {
				return fmt.Errorf("importing %s: %w", e.cfg.ResultsDir, err)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "results directory (overrides config)")

	return cmd
}
