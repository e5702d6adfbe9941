package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/tasks"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "External task tracker commands",
	}

	cmd.AddCommand(newTaskLinkCmd())
	cmd.AddCommand(newTaskUpdateCmd())
	cmd.AddCommand(newTaskListCmd())
	return cmd
}

func newTaskLinkCmd() *cobra.Command {
	var (
		configPath string
		project    string
		threadID   string
	)

	cmd := &cobra.Command{
		Use:   "link <task-id>",
		Short: "Link a tracker task to a message thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			client := tasks.NewClient(gormDB, cfg.Tasks.Bin, nil)
			if err := client.LinkTask(cmd.Context(), project, args[0], threadID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Linked task %s to thread %s\n", args[0], threadID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&threadID, "thread-id", "", "thread to link (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("thread-id")
	return cmd
}

func newTaskUpdateCmd() *cobra.Command {
	var (
		configPath string
		project    string
		agent      string
		status     string
		note       string
	)

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a tracker task's status",
		Long:  "Pushes the status change to the tracker, refreshes the local mirror, and announces the change in the linked thread.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			client := tasks.NewClient(gormDB, cfg.Tasks.Bin, nil)
			task, err := client.UpdateStatus(cmd.Context(), project, agent, args[0], status, note)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", task.ID, task.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "acting agent name (required)")
	cmd.Flags().StringVar(&status, "status", "", "new status (required)")
	cmd.Flags().StringVar(&note, "note", "", "optional note for the thread announcement")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("status")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		configPath string
		agent      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracker tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			client := tasks.NewClient(gormDB, cfg.Tasks.Bin, nil)
			list, err := client.ListTasks(cmd.Context(), agent)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Priority, t.Assignee)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agent, "agent", "", "filter to an agent's tasks (plus ready work)")
	return cmd
}
