package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/policy"
	"gorm.io/gorm"
)

func newContactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Contact consent commands",
	}

	cmd.AddCommand(newContactRequestCmd())
	cmd.AddCommand(newContactRespondCmd())
	cmd.AddCommand(newContactListCmd())
	return cmd
}

// resolvePair looks up both endpoints of a contact operation.
func resolvePair(gormDB *gorm.DB, project, from, to string) (*models.Agent, *models.Agent, error) {
	fromAgent, err := directory.Whois(gormDB, project, from)
	if err != nil {
		return nil, nil, err
	}
	toAgent, err := directory.Whois(gormDB, project, to)
	if err != nil {
		return nil, nil, err
	}
	return fromAgent, toAgent, nil
}

func newContactRequestCmd() *cobra.Command {
	var (
		configPath string
		project    string
		from       string
		to         string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request permission to message another agent",
		Long:  "Creates a pending contact request, or resets an existing one back to pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			fromAgent, toAgent, err := resolvePair(gormDB, project, from, to)
			if err != nil {
				return err
			}

			link, err := policy.RequestContact(gormDB, fromAgent.ProjectID, fromAgent.ID, toAgent.ID, reason)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Contact request %s -> %s is %s\n", from, to, link.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&from, "from", "", "requesting agent (required)")
	cmd.Flags().StringVar(&to, "to", "", "target agent (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why contact is wanted")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newContactRespondCmd() *cobra.Command {
	var (
		configPath string
		project    string
		from       string
		to         string
		decision   string
	)

	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Approve or deny a pending contact request",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			fromAgent, toAgent, err := resolvePair(gormDB, project, from, to)
			if err != nil {
				return err
			}

			link, err := policy.RespondContact(gormDB, fromAgent.ProjectID, fromAgent.ID, toAgent.ID, models.LinkStatus(decision))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Contact %s -> %s is now %s\n", from, to, link.Status)
			if link.ExpiresAt != nil {
				fmt.Fprintf(out, "Valid until %s\n", link.ExpiresAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&from, "from", "", "agent that requested contact (required)")
	cmd.Flags().StringVar(&to, "to", "", "agent responding (required)")
	cmd.Flags().StringVar(&decision, "decision", "", "approved or denied (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("decision")
	return cmd
}

func newContactListCmd() *cobra.Command {
	var (
		configPath string
		project    string
		agent      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an agent's approved contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			agentRow, err := directory.Whois(gormDB, project, agent)
			if err != nil {
				return err
			}

			links, err := policy.ListContacts(gormDB, agentRow.ProjectID, agentRow.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tSTATUS\tEXPIRES")
			for _, l := range links {
				expires := "-"
				if l.ExpiresAt != nil {
					expires = l.ExpiresAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", l.FromAgentID, l.ToAgentID, l.Status, expires)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("agent")
	return cmd
}
