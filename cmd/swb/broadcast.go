package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/overseer"
)

func newBroadcastCmd() *cobra.Command {
	var (
		configPath string
		project    string
		subject    string
		body       string
		to         []string
	)

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Broadcast a message from the human overseer",
		Long:  "Sends a high-importance, ack-required message from HumanOverseer to the named agents, or to every agent in the project. Contact policies do not apply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			msg, err := overseer.Broadcast(gormDB, overseer.BroadcastParams{
				ProjectSlug: project,
				Subject:     subject,
				Body:        body,
				To:          to,
			})
			if err != nil {
				return err
			}

			mailbox.Notify(msg, mailbox.NotifyConfig{Command: cfg.Notify.Command})
			fmt.Fprintf(cmd.OutOrStdout(), "Broadcast %d sent in thread %s\n", msg.ID, msg.ThreadID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject (required)")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient agent names (all agents if omitted)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("subject")
	return cmd
}
