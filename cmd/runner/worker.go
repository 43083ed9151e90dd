package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Args:  cobra.NoArgs,
		Short: "Run a worker until interrupted",
		Long:  `Poll for queued runs and execute them until SIGINT or SIGTERM, then drain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			watchConfig(ctx, app)

			h, err := startWorker(ctx, app)
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				app.Logger.Info(ctx, "Shutdown signal received", "worker_id", h.ID())
			case <-h.Done():
			}
			return stopWorker(ctx, app, h)
		},
	}
}
