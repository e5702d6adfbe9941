package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/api"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/tasks"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Switchboard server",
		Long:  "Serves the session RPC endpoint and the REST API, and keeps the task tracker mirror in sync. Stops on SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			if port == 0 {
				port = cfg.HTTP.Port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			taskClient := tasks.NewClient(gormDB, cfg.Tasks.Bin, nil)
			if _, err := taskClient.StartSync(ctx, cfg.Tasks.SyncSchedule); err != nil {
				return err
			}

			return api.Start(ctx, api.StartOpts{
				DB:     gormDB,
				Port:   port,
				Notify: mailbox.NotifyConfig{Command: cfg.Notify.Command},
				Tasks:  taskClient,
				Out:    cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")
	return cmd
}
