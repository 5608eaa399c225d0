package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	topicrepo "github.com/heartmarshall/classroom-backend/internal/adapter/postgres/topic"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/observability"
	"github.com/heartmarshall/classroom-backend/internal/service/access"
	"github.com/heartmarshall/classroom-backend/internal/service/attachment"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/internal/service/homework"
	"github.com/heartmarshall/classroom-backend/internal/service/participation"
	"github.com/heartmarshall/classroom-backend/internal/service/post"
	"github.com/heartmarshall/classroom-backend/internal/service/room"
	"github.com/heartmarshall/classroom-backend/internal/service/topic"
	"github.com/heartmarshall/classroom-backend/internal/service/user"
	"github.com/heartmarshall/classroom-backend/migrations"
)

// Services groups every entity service built on the crud framework.
type Services struct {
	Users          *user.Service
	Rooms          *room.Service
	Participations *participation.Service
	Posts          *post.Service
	Attachments    *attachment.Service
	Homework       *homework.Service
	Topics         *topic.Service
}

// App owns the database pool and the wired services.
type App struct {
	Pool     *pgxpool.Pool
	Services Services
	Registry *prometheus.Registry
	Topics   *topicrepo.Repo

	log *slog.Logger
}

// New connects to PostgreSQL, applies migrations when enabled and wires
// repositories into services.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, pool, migrations.FS, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &App{
		Pool:     pool,
		Registry: registry,
		Topics:   topicrepo.New(pool),
		log:      log,
	}
	a.Services = wire(log, pool, a.Topics, cfg, crud.NewMetrics(registry))

	return a, nil
}

func wire(log *slog.Logger, db postgres.DB, topics *topicrepo.Repo, cfg *config.Config, metrics *crud.Metrics) Services {
	txm := postgres.NewTxManager(db)

	users := repository.New[domain.User](db)
	rooms := repository.New[domain.Room](db)
	participations := repository.New[domain.Participation](db)
	posts := repository.New[domain.RoomPost](db)
	attachments := repository.New[domain.Attachment](db)
	assignments := repository.New[domain.HomeworkAssignment](db)

	checker := access.NewChecker(participations)
	page := cfg.Pagination

	return Services{
		Users:          user.NewService(log, users, txm, cfg.Auth, metrics, page),
		Rooms:          room.NewService(log, rooms, participations, txm, checker, metrics, page),
		Participations: participation.NewService(log, participations, txm, checker, metrics, page),
		Posts:          post.NewService(log, posts, topics, txm, checker, metrics, page),
		Attachments:    attachment.NewService(log, attachments, posts, txm, checker, metrics, page),
		Homework:       homework.NewService(log, assignments, posts, txm, checker, metrics, page),
		Topics:         topic.NewService(log, topics, txm, checker, metrics, page),
	}
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
	a.log.Info("database pool closed")
}

// Ready reports whether the database answers a ping.
func (a *App) Ready(ctx context.Context) bool {
	return a.Pool.Ping(ctx) == nil
}

// Run builds the application from cfg, serves metrics when enabled and
// blocks until ctx is cancelled or the metrics listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg.Log)
	logger.Info("starting application", slog.String("version", BuildVersion()))

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("application ready",
		slog.Int("max_conns", int(cfg.Database.MaxConns)),
		slog.Bool("auto_migrate", cfg.Database.AutoMigrate),
	)

	var serveErr <-chan error
	if cfg.Metrics.Enabled() {
		obs := observability.NewServer(cfg.Metrics.Addr, a.Registry, a.Ready, logger)
		if serveErr, err = obs.Start(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
			defer cancel()
			if err := obs.Stop(stopCtx); err != nil {
				logger.Error("stop observability server", slog.String("error", err.Error()))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("app: observability server: %w", err)
		}
	}
	logger.Info("shutting down")
	return nil
}
