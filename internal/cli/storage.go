package cli

import (
	"context"
	"fmt"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/config"
	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/infra/memory"
	"academy-of-heroes/internal/infra/postgres"
	"academy-of-heroes/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// storage is the document store selected by config plus the loader used to
// read battle definitions outside transactions.
type storage struct {
	store  *docstore.DB
	loader app.DefinitionLoader
	close  func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage, error) {
	opts := []docstore.Option{docstore.WithMaxAttempts(cfg.Storage.MaxAttempts)}

	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		store := docstore.New(memory.NewDocumentStore(), opts...)
		return &storage{store: store, loader: app.NewStoreDefinitionLoader(store), close: func() {}}, nil

	case "sqlite":
		backend, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := docstore.New(backend, opts...)
		logger.Info("using sqlite storage", zap.String("path", cfg.Storage.SQLitePath))
		return &storage{
			store:  store,
			loader: app.NewStoreDefinitionLoader(store),
			close:  func() { _ = backend.Close() },
		}, nil

	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, err
		}
		db := postgres.Open(cfg.Postgres.URL)
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("using postgres storage")
		return &storage{
			store:  docstore.New(postgres.NewDocumentStore(db), opts...),
			loader: postgres.NewDefinitionLoader(pool),
			close: func() {
				pool.Close()
				_ = db.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
