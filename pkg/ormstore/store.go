package ormstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Supported dialects
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store implements db.Store on top of gorm
type Store struct {
	db *gorm.DB
	// lock is false on SQLite, which has no row locks; its single writer serialises transactions
	lock bool
}

var _ db.Store = (*Store)(nil)

// Open connects to the given dialect. SQL statements are logged to zapLogger at debug level.
func Open(dialect, dsn string, zapLogger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database dialect: %s", dialect)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if dialect == DialectPostgres {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get connection pool: %w", err)
		}
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return New(gormDB), nil
}

// New wraps an existing gorm connection
func New(gormDB *gorm.DB) *Store {
	return &Store{
		db:   gormDB,
		lock: gormDB.Dialector.Name() != DialectSQLite,
	}
}

// AutoMigrate creates or updates every table the engine uses
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases database resources
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ListShiftIDs(ctx context.Context, from, to time.Time, limit int) ([]int64, error) {
	q := s.db.WithContext(ctx).
		Model(&Shift{}).
		Where("fecha >= ? AND fecha <= ?", timeutil.DateOnly(from), timeutil.DateOnly(to)).
		Order("fecha, hora_inicio, id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ids []int64
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	return ids, nil
}

// WithinTx runs fn in a gorm transaction, which rolls back on error or panic
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &Tx{db: gtx, lock: s.lock})
	})
}
