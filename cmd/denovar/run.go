package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strandlab/denovar/internal/alignment"
	"github.com/strandlab/denovar/internal/config"
	"github.com/strandlab/denovar/internal/logging"
	"github.com/strandlab/denovar/internal/metrics"
	"github.com/strandlab/denovar/internal/refseq"
	"github.com/strandlab/denovar/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		window        string
		workers       int
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the regional calling pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad(cfgPath)
			if window != "" {
				cfg.Run.Window = window
			}
			if workers > 0 {
				cfg.Run.Workers = workers
			}

			logging.Setup(cfg.Log)
			slog.Info("denovar", "version", runner.Version, "git_sha", runner.GitSHA)

			if !skipPreflight {
				result := runner.Preflight(cfg)
				for _, w := range result.Warnings {
					slog.Warn("preflight", "warning", w)
				}
				if !result.Passed {
					for _, e := range result.Errors {
						slog.Error("preflight", "error", e)
					}
					return fmt.Errorf("preflight failed with %d error(s)", len(result.Errors))
				}
			}

			if cfg.Metrics.Port > 0 {
				metrics.Init("")
				address := fmt.Sprintf(":%d", cfg.Metrics.Port)
				go func() {
					if err := metrics.StartServer(address); err != nil {
						slog.Error("metrics server failed", "error", err)
					}
				}()
				slog.Info("metrics server listening", "address", address)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reads, err := alignment.Open(cfg.Sample.AlignBAM)
			if err != nil {
				return err
			}
			defer reads.Close()

			ref, err := refseq.Open(cfg.Reference.FASTA)
			if err != nil {
				return err
			}
			defer ref.Close()

			r := runner.New(cfg, reads, ref)
			defer r.Close()

			if err := r.Run(ctx); err != nil {
				if ctx.Err() != nil {
					slog.Info("run interrupted")
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "restrict the run to regions overlapping contig:start-end")
	cmd.Flags().IntVar(&workers, "workers", 0, "override the number of region workers")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "skip the upfront input and toolchain checks")
	return cmd
}
