package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

func newTasksCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "inspect and run deferred tasks",
	}

	cmd.AddCommand(
		newTasksListCmd(flags),
		newTasksRetryCmd(flags),
		newTasksRunCmd(flags),
	)
	return cmd
}

func newTasksListCmd(flags *rootFlags) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list stored tasks",
		Args:    cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			st := domain.TaskStatus(status)
			switch st {
			case "", domain.TaskStatusPending, domain.TaskStatusRunning, domain.TaskStatusFailed:
			default:
				return fmt.Errorf("invalid --status %q", status)
			}

			tasks, err := a.queue.List(cmd.Context(), st)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tARGS\tSTATUS\tATTEMPTS\tERROR")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.ID, t.Name, strings.Join(t.Args, " "), t.Status, t.Attempts, t.LastError)
			}
			return tw.Flush()
		}),
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status [pending|running|failed]")
	return cmd
}

func newTasksRetryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID...",
		Short: "return failed tasks to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			for _, id := range args {
				if err := a.queue.Retry(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "task %s scheduled\n", id)
			}
			return nil
		}),
	}
}

func newTasksRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run every ready task now",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			n, err := a.drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d tasks\n", n)
			return nil
		}),
	}
}
