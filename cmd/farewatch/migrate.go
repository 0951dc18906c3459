package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/conversations"
	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/internal/trips"
)

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required for migrate")
			}
			ctx := cmd.Context()

			convStore, err := conversations.NewPostgresStore(&conversations.PostgresConfig{
				DSN:             cfg.Database.URL,
				MaxOpenConns:    cfg.Database.MaxConnections,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			}, tokens.NewEstimator(), config.ContextBudget)
			if err != nil {
				return fmt.Errorf("conversation store: %w", err)
			}
			defer convStore.Close()
			if err := convStore.Migrate(ctx); err != nil {
				return fmt.Errorf("conversation schema: %w", err)
			}

			tripStore, err := trips.NewPostgresStore(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("trip store: %w", err)
			}
			defer tripStore.Close()
			if err := tripStore.Migrate(ctx); err != nil {
				return fmt.Errorf("trip schema: %w", err)
			}

			cmd.Println("schema up to date")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "Path to configuration file")
	return cmd
}
