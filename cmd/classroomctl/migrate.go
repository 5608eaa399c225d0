package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
	"github.com/heartmarshall/classroom-backend/migrations"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
				results, err := p.Up(ctx)
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				if len(results) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				for _, r := range results {
					cmd.Printf("applied %d %s (%s)\n", r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
				r, err := p.Down(ctx)
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Printf("rolled back %d %s\n", r.Source.Version, r.Source.Path)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
				statuses, err := p.Status(ctx)
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "status").Wrap(err)
				}
				return writeStatus(cmd.OutOrStdout(), statuses)
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pool, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	provider, closeDB, err := postgres.NewMigrator(pool, migrations.FS)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() { _ = closeDB() }()

	return fn(ctx, provider)
}

func writeStatus(w io.Writer, statuses []*goose.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return tw.Flush()
}
