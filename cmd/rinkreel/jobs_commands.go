package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage processing jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsSubmitCommand(ctx))
	cmd.AddCommand(newJobsStatusCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.listJobs(cmd.Context(), statusFilter)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					j.ID,
					j.SessionID,
					j.Status,
					formatProgress(j.Progress),
					j.CurrentStep,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"ID", "Session", "Status", "Progress", "Step"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <session-id>",
		Short: "Queue a session for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.submitJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued job %s\n", job.ID)
			return nil
		},
	}
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.getJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:      %s\n", job.ID)
			fmt.Fprintf(out, "session:  %s\n", job.SessionID)
			fmt.Fprintf(out, "status:   %s\n", job.Status)
			fmt.Fprintf(out, "progress: %s  %s\n", formatProgress(job.Progress), job.CurrentStep)
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "error:    %s\n", job.ErrorMessage)
			}
			if job.StitchedFile != "" {
				fmt.Fprintf(out, "stitched: %s\n", job.StitchedFile)
			}
			if job.FinalFile != "" {
				fmt.Fprintf(out, "final:    %s\n", job.FinalFile)
			}
			return nil
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.cancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch job.Status {
			case "cancelled":
				fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", job.ID)
			case "running":
				fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for job %s; it will stop at the next checkpoint\n", job.ID)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "job %s already finished (%s)\n", job.ID, job.Status)
			}
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running:  %v\n", status.Running)
			fmt.Fprintf(out, "database: %s\n", status.Database)
			fmt.Fprintf(out, "jobs:     %d total, %d queued, %d running, %d completed, %d failed, %d cancelled\n",
				status.Jobs["total"], status.Jobs["queued"], status.Jobs["running"],
				status.Jobs["completed"], status.Jobs["failed"], status.Jobs["cancelled"])
			return nil
		},
	}
}
