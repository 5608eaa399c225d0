package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/classroom-backend/internal/app"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build the application and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Run(ctx, cfg); err != nil {
				return oops.Code("APP_FAILED").With("operation", "run").Wrap(err)
			}
			return nil
		},
	}
}
