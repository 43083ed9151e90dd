package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/worker"
	"github.com/spf13/cobra"

	_ "github.com/ncobase/runner/data/mysql"
	_ "github.com/ncobase/runner/data/postgres"
	_ "github.com/ncobase/runner/data/sqlite"
)

type options struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "runner",
		Short:         "Durable job execution worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: config.yaml in ., $HOME/.runner or /etc/runner)")

	rootCmd.AddCommand(
		newWorkerCommand(opts),
		newServeCommand(opts),
		newSubmitCommand(opts),
		newJobsCommand(opts),
		newRunsCommand(opts),
		newLogsCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// bootstrap loads the configuration and wires the application.
func (o *options) bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	return InitializeApp(ctx, cfg)
}

// watchConfig applies logger level changes from the config file while the
// process runs.
func watchConfig(ctx context.Context, app *App) {
	config.Watch(app.Config, func(next *config.Config) {
		if next.Logger != nil {
			app.Logger.SetLevelValue(next.Logger.Level)
			app.Logger.Info(ctx, "Config reloaded", "level", next.Logger.Level)
		}
	}, func(err error) {
		app.Logger.Error(ctx, "Config reload failed", "error", err)
	})
}

// startWorker starts a worker for the application's components.
func startWorker(ctx context.Context, app *App) (*worker.Handle, error) {
	cfg := config.ProvideWorkerConfig(app.Config)
	h, err := worker.Start(ctx, cfg, worker.Deps{
		Store:    app.Store,
		Leases:   app.Leases,
		Executor: app.Executor,
		Sweeper:  app.Sweeper,
		Logger:   app.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return h, nil
}

// stopWorker drains h, allowing the grace period plus time for the
// cancelled runs to hand their leases back.
func stopWorker(ctx context.Context, app *App, h *worker.Handle) error {
	cfg := config.ProvideWorkerConfig(app.Config)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGrace+15*time.Second)
	defer cancel()

	err := h.Stop(stopCtx)
	st := h.Status()
	app.Logger.Info(ctx, "Worker stopped",
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"cancelled", st.Cancelled,
		"yielded", st.Yielded,
	)
	return err
}
