package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/fieldline/trajet/internal/backend"
	"github.com/fieldline/trajet/internal/config"
	"github.com/fieldline/trajet/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the trajet schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables on %s\n", len(db.AllModels()), cfg.DB.Driver)
	return nil
}

// connectFromConfig loads the config file and opens the configured database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.DB.Driver, err)
	}
	return cfg, gormDB, nil
}

// buildBackends constructs the generation and embedding backends named by
// the config. The mock provider exists for offline runs and tests.
func buildBackends(cfg config.BackendConfig) (backend.Generator, backend.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return &backend.MockGenerator{}, &backend.MockEmbedder{Dim: 64}, nil
	case "openai", "":
		client, err := backend.NewOpenAI(cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}
