package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rinkreel/internal/daemon"
	"rinkreel/internal/logging"
	"rinkreel/internal/media/encoder"
	"rinkreel/internal/metrics"
	"rinkreel/internal/notifications"
	"rinkreel/internal/orchestrator"
	"rinkreel/internal/services/feedprovider"
	"rinkreel/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the processing daemon and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Provider credentials may live in a local .env during development.
			_ = godotenv.Load()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			provider := feedprovider.NewClient(cfg, logger)
			enc := encoder.NewFFmpeg(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Paths.StagingDir, logger)
			notifier := notifications.NewService(cfg)
			m := metrics.New()

			orch := orchestrator.New(cfg, st, provider, enc, notifier, m, logger)
			d, err := daemon.New(cfg, st, orch, m, logger)
			if err != nil {
				_ = st.Close()
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				_ = st.Close()
				return err
			}
			fmt.Fprintf(os.Stdout, "rinkreel daemon listening on %s\n", d.Addr())

			<-runCtx.Done()
			return d.Close()
		},
	}
}
