package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/mailbox"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Messaging commands",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageThreadCmd())
	cmd.AddCommand(newMessageReadCmd())
	cmd.AddCommand(newMessageAckCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		configPath  string
		project     string
		from        string
		to          []string
		subject     string
		body        string
		threadID    string
		importance  string
		ackRequired bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to one or more agents",
		Long:  "Sends a message from one agent to others, subject to each recipient's contact policy. Omitting --thread-id starts a new thread.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			msg, err := mailbox.Send(gormDB, mailbox.SendParams{
				ProjectSlug: project,
				From:        from,
				To:          to,
				Subject:     subject,
				Body:        body,
				ThreadID:    threadID,
				Importance:  importance,
				AckRequired: ackRequired,
			})
			if err != nil {
				return err
			}

			if mailbox.ShouldNotify(msg) {
				mailbox.Notify(msg, mailbox.NotifyConfig{Command: cfg.Notify.Command})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d in thread %s\n", msg.ID, msg.ThreadID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&from, "from", "", "sender agent name (required)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient agent names (required)")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject (required)")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	cmd.Flags().StringVar(&threadID, "thread-id", "", "thread ID to reply to")
	cmd.Flags().StringVar(&importance, "importance", "", "importance (low, normal, high)")
	cmd.Flags().BoolVar(&ackRequired, "ack", false, "require acknowledgement")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newInboxCmd() *cobra.Command {
	var (
		configPath string
		project    string
		agent      string
		limit      int
		unread     bool
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "View an agent's inbox",
		Long:  "Lists messages addressed to an agent, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := mailbox.Inbox(gormDB, project, agent, limit, unread)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tSUBJECT\tIMPORTANCE\tTHREAD")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					m.ID, m.SenderName, m.Subject, m.Importance, m.ThreadID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum messages to show")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread messages")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func newMessageThreadCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)

	cmd := &cobra.Command{
		Use:   "thread <thread-id>",
		Short: "Show a conversation thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := mailbox.Thread(gormDB, project, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "--- %s [%s] %s\n", m.SenderName,
					m.CreatedAt.Format("2006-01-02 15:04"), m.Subject)
				fmt.Fprintln(out, m.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// parseMessageIDs converts CLI args to message ids.
func parseMessageIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad message id %q", arg)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func newMessageReadCmd() *cobra.Command {
	var (
		configPath string
		project    string
		agent      string
	)

	cmd := &cobra.Command{
		Use:   "read <message-id>...",
		Short: "Mark messages as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			ids, err := parseMessageIDs(args)
			if err != nil {
				return err
			}
			if err := mailbox.MarkAsRead(gormDB, project, agent, ids); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) as read\n", len(ids))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func newMessageAckCmd() *cobra.Command {
	var (
		configPath string
		project    string
		agent      string
	)

	cmd := &cobra.Command{
		Use:   "ack <message-id>...",
		Short: "Acknowledge messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			ids, err := parseMessageIDs(args)
			if err != nil {
				return err
			}
			if err := mailbox.Acknowledge(gormDB, project, agent, ids); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged %d message(s)\n", len(ids))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("agent")
	return cmd
}
