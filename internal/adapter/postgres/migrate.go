package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// NewMigrator builds a goose provider over the given pool and migration
// filesystem. The returned close func releases the database/sql handle.
// goose.NewProvider is used rather than the legacy goose.Up because it
// handles $$-delimited PL/pgSQL bodies.
func NewMigrator(pool *pgxpool.Pool, migrations fs.FS) (*goose.Provider, func() error, error) {
	db := stdlib.OpenDBFromPool(pool)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("goose new provider: %w", err)
	}
	return provider, db.Close, nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, log *slog.Logger) error {
	provider, closeDB, err := NewMigrator(pool, migrations)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.InfoContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}
