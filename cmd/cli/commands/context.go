package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/internal/config"
	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/metrics"
	"github.com/ppamtools/shift-assigner/pkg/ormstore"
	"github.com/ppamtools/shift-assigner/pkg/postgres"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg     *config.Config
	Store   db.Store
	Engine  *services.Engine
	Metrics *metrics.Recorder
	Logger  *zap.Logger
	Ctx     context.Context
}

// OpenStore connects to the backend selected by cfg.Driver
func OpenStore(ctx context.Context, cfg config.Database, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.NewDB(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverGormPostgres, config.DriverGormSQLite:
		dialect := ormstore.DialectPostgres
		if cfg.Driver == config.DriverGormSQLite {
			dialect = ormstore.DialectSQLite
		}
		orm, err := ormstore.Open(dialect, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return orm, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewAppContext opens the store and builds the engine on top of it
func NewAppContext(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AppContext, error) {
	logger.Info("Connecting to database", zap.String("driver", cfg.Database.Driver))
	store, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app, err := newAppContextWithStore(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

func newAppContextWithStore(ctx context.Context, cfg *config.Config, store db.Store, logger *zap.Logger, opts ...services.Option) (*AppContext, error) {
	recorder := metrics.NewRecorder()
	base := []services.Option{
		services.WithMetrics(recorder),
		services.WithPipeline(cfg.Pipeline.Dir, cfg.Pipeline.StatusFile),
	}

	engine, err := services.NewEngine(store, cfg.Bot.Config, logger, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &AppContext{
		Cfg:     cfg,
		Store:   store,
		Engine:  engine,
		Metrics: recorder,
		Logger:  logger,
		Ctx:     ctx,
	}, nil
}

// Close releases the store
func (a *AppContext) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
