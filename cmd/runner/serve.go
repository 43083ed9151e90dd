package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ncobase/runner/server"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Serve the HTTP API",
		Long:  `Serve job submission, status and log streaming over HTTP, optionally with an in-process worker.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			watchConfig(ctx, app)

			srvOpts := []server.Option{server.WithLogger(app.Logger)}
			if withWorker {
				h, err := startWorker(ctx, app)
				if err != nil {
					return err
				}
				defer func() {
					if err := stopWorker(ctx, app, h); err != nil {
						app.Logger.Error(ctx, "Worker did not drain", "error", err)
					}
				}()
				srvOpts = append(srvOpts, server.WithWorker(h))
			}

			return server.New(app.Config, app.Service, app.Logs, srvOpts...).ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "run a worker in the same process")
	return cmd
}
