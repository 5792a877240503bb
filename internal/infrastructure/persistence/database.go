package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coccinelle/backend/internal/infrastructure/config"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an open GORM handle plus the pool underneath it
type Database struct {
	DB   *gorm.DB
	pool *sql.DB
}

func wrap(db *gorm.DB) (*Database, error) {
	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &Database{DB: db, pool: pool}, nil
}

// Open connects to PostgreSQL, sizes the pool from cfg and pings once.
// A nil gormLogger silences GORM.
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}

	d.pool.SetMaxOpenConns(cfg.MaxOpenConns)
	d.pool.SetMaxIdleConns(cfg.MaxIdleConns)
	d.pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := d.Ping(ctx); err != nil {
		_ = d.pool.Close()
		return nil, err
	}
	return d, nil
}

// NewSQLiteDatabase opens SQLite and creates every table from the models.
// Use a "file:<name>?mode=memory&cache=shared" DSN for a private in-memory
// database, since ":memory:" is per connection.
func NewSQLiteDatabase(dsn string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}
	// one writer at a time
	d.pool.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		_ = d.pool.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return d, nil
}

// Pool exposes the *sql.DB for pool metrics
func (d *Database) Pool() *sql.DB { return d.pool }

// Ping reports whether the database answers within ctx
func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.pool.Close()
}
