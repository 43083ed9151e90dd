package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ncobase/runner/logstream"
	"github.com/spf13/cobra"
)

func newLogsCommand(opts *options) *cobra.Command {
	var (
		after  string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Print the logs of a run",
		Long:  `Print the log entries of a run after an optional RFC3339 cursor. With --follow, keep printing until the run ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			cursor, err := logstream.ParseCursor(after)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !follow {
				page, err := app.Logs.Page(ctx, args[0], cursor, 0)
				if err != nil {
					return err
				}
				for _, e := range page.Entries {
					logLine(out, e)
				}
				if page.IsComplete {
					fmt.Fprintf(out, "-- run %s --\n", page.Status)
				}
				return nil
			}

			events, err := app.Logs.Tail(ctx, args[0], cursor)
			if err != nil {
				return err
			}
			for ev := range events {
				if ev.Complete() {
					fmt.Fprintf(out, "-- run %s --\n", ev.Status)
					continue
				}
				logLine(out, ev.Entry)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "only entries after this RFC3339 timestamp")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new entries until the run ends")
	return cmd
}
