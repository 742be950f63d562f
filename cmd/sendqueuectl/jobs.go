package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"sendqueue/internal/jobs"
	"sendqueue/internal/models"

	"github.com/spf13/cobra"
)

func jobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage stored jobs",
	}
	cmd.AddCommand(jobsListCmd(a), jobsShowCmd(a), jobsDeleteCmd(a))
	return cmd
}

func jobsListCmd(a *app) *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending jobs in enqueue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.db.Jobs().ListPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tATTEMPT\tENQUEUED\tEXPIRES")
			shown := 0
			for _, record := range records {
				if jobType != "" && string(record.Type) != jobType {
					continue
				}
				shown++
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					record.ID, record.Type, record.Attempt, record.MaxAttempts,
					record.EnqueuedAt.Format(time.RFC3339), record.ExpiresAt().Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d job(s)\n", shown)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "Only show jobs of this type")
	return cmd
}

func jobsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job including its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := a.db.Jobs().Get(cmd.Context(), args[0])
			if err != nil {
				return jobError(args[0], err)
			}
			printRecord(cmd, record)
			fmt.Fprintf(cmd.OutOrStdout(), "payload:  %s\n", record.Payload)
			return nil
		},
	}
}

func jobsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Remove a job so it is never sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.db.Jobs().Get(cmd.Context(), args[0]); err != nil {
				return jobError(args[0], err)
			}
			if err := a.db.Jobs().Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted.\n", args[0])
			return nil
		},
	}
}

func jobError(id string, err error) error {
	if errors.Is(err, jobs.ErrJobNotFound) {
		return fmt.Errorf("job %s not found", id)
	}
	return fmt.Errorf("failed to load job: %w", err)
}

func printRecord(cmd *cobra.Command, record *models.JobRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", record.ID)
	fmt.Fprintf(out, "type:     %s\n", record.Type)
	fmt.Fprintf(out, "attempt:  %d/%d\n", record.Attempt, record.MaxAttempts)
	fmt.Fprintf(out, "enqueued: %s\n", record.EnqueuedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "expires:  %s\n", record.ExpiresAt().Format(time.RFC3339))
}
