package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
	"github.com/heartmarshall/classroom-backend/internal/app"
	"github.com/heartmarshall/classroom-backend/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for classroomctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "classroomctl",
		Short:        "Classroom backend maintenance tool",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (overrides CONFIG_PATH)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTopicsCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// loadConfig reads --config when given and CONFIG_PATH otherwise.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFrom(configFile)
	}
	return config.Load()
}

// connect loads configuration and opens a pool. The caller closes the pool.
func connect(ctx context.Context) (*pgxpool.Pool, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
	}

	logger := app.NewLogger(cfg.Log)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return pool, logger, nil
}
