package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minseodaa/bankdrop/internal/config"
	"github.com/minseodaa/bankdrop/internal/importer"
	"github.com/minseodaa/bankdrop/internal/watcher"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		dir     string
		workers int
		catchUp bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest analysis documents as they appear in the results directory",
		Long: `Watch observes the results directory and stores each new document until
interrupted. Files already present are left alone unless --catch-up is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			override := func(cfg *config.Config) {
				resultsDirFlag(&dir)(cfg)
				if workers > 0 {
					cfg.Watch.Workers = workers
				}
			}
			e, err := opts.open(ctx, cmd.ErrOrStderr(), override)
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			if err := os.MkdirAll(e.cfg.ResultsDir, 0o755); err != nil {
				return fmt.Errorf("creating results directory: %w", err)
			}

			w := watcher.New(e.cfg.ResultsDir, e.pipeline, watcher.Options{
				Extension: e.cfg.Ingest.Extension,
				Workers:   e.cfg.Watch.Workers,
				QueueSize: e.cfg.Watch.QueueSize,
				Logger:    e.log,
			})

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			select {
			case <-w.Ready():
			case err := <-done:
				return err
			}
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", e.cfg.ResultsDir)

			// Catch-up runs after the watch is in place so files arriving
			// meanwhile are not missed. A file landing during the scan may
			// be stored by both.
			if catchUp {
				im := importer.New(e.pipeline, e.cfg.Ingest.Extension, e.log)
				report, err := im.ImportAll(ctx, e.cfg.ResultsDir)
				if err != nil && ctx.Err() == nil {
					stop()
					<-done
					return fmt.Errorf("catching up %s: %w", e.cfg.ResultsDir, err)
				}
				if err := report.WriteText(out); err != nil {
					e.log.Warn("watch: writing catch-up report", "error", err)
				}
			}

			err = <-done
			st := w.Stats()
			fmt.Fprintf(out, "Stopped: events=%d inserted=%d skipped=%d duplicates=%d failed=%d\n",
				st.Events, st.Inserted, st.Skipped, st.Duplicates, st.Failed)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "results directory (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of processing workers (overrides config)")
	cmd.Flags().BoolVar(&catchUp, "catch-up", false, "import files already in the directory before watching")

	return cmd
}
