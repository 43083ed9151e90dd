package main

import (
	"encoding/json"

	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/structs"
	"github.com/spf13/cobra"
)

func newSubmitCommand(opts *options) *cobra.Command {
	var (
		workspace string
		jobType   string
		input     string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Args:  cobra.NoArgs,
		Short: "Submit a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			job, run, err := app.Service.Submit(ctx, &service.SubmitRequest{
				WorkspaceID: workspace,
				Type:        structs.JobType(jobType),
				Input:       json.RawMessage(input),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, map[string]any{"job": job, "run": run}, runsTable([]*structs.Run{run}))
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace id")
	cmd.Flags().StringVarP(&jobType, "type", "t", "", "job type")
	cmd.Flags().StringVarP(&input, "input", "i", "", "job input as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newJobsCommand(opts *options) *cobra.Command {
	var (
		workspace string
		limit     int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Args:  cobra.NoArgs,
		Short: "List the jobs of a workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			jobs, err := app.Service.Jobs(ctx, workspace, limit)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, jobs, jobsTable(jobs))
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace id")
	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultListLimit, "maximum number of jobs")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newRunsCommand(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "runs <job-id>",
		Args:  cobra.ExactArgs(1),
		Short: "List the runs of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, cleanup, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := app.Service.Runs(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, runs, runsTable(runs))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}
