package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/models"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent registry commands",
	}

	cmd.AddCommand(newAgentRegisterCmd())
	cmd.AddCommand(newAgentWhoisCmd())
	cmd.AddCommand(newAgentListCmd())
	return cmd
}

func newAgentRegisterCmd() *cobra.Command {
	var (
		configPath string
		project    string
		name       string
		program    string
		model      string
		policy     string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or refresh an agent identity",
		Long:  "Creates the agent on first use and refreshes it afterwards. Omitted fields keep their stored values; the name is generated when not given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			agent, err := directory.Register(gormDB, directory.RegisterParams{
				ProjectSlug:   project,
				Name:          name,
				Program:       program,
				Model:         model,
				ContactPolicy: models.ContactPolicy(policy),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s (policy %s)\n",
				agent.Name, project, agent.ContactPolicy)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&name, "name", "", "agent name (generated if omitted)")
	cmd.Flags().StringVar(&program, "program", "", "agent program, e.g. claude-code")
	cmd.Flags().StringVar(&model, "model", "", "agent model")
	cmd.Flags().StringVar(&policy, "policy", "", "contact policy (open, auto, contacts_only)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newAgentWhoisCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)

	cmd := &cobra.Command{
		Use:   "whois <name>",
		Short: "Look up an agent by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			agent, err := directory.Whois(gormDB, project, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:    %s\n", agent.Name)
			fmt.Fprintf(out, "Program: %s\n", agent.Program)
			fmt.Fprintf(out, "Model:   %s\n", agent.Model)
			fmt.Fprintf(out, "Policy:  %s\n", agent.ContactPolicy)
			fmt.Fprintf(out, "Active:  %s\n", agent.LastActiveAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents in a project",
		Long:  "Lists all agents in a project, most recently active first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			agents, err := directory.List(gormDB, project)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROGRAM\tMODEL\tPOLICY\tLAST ACTIVE")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					a.Name, a.Program, a.Model, a.ContactPolicy,
					a.LastActiveAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newProjectsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List all known projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			projects, err := directory.ListProjects(gormDB)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\n", p.Slug, p.HumanName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}
