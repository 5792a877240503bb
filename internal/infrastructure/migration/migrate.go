// Package migration applies the SQL schema with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Migrator runs versioned migrations from an fs.FS against PostgreSQL
type Migrator struct {
	migrate *migrate.Migrate
	source  fs.FS
	logger  *zap.Logger
}

// Status is one migration as seen from both the source and the database
type Status struct {
	Entry
	Applied bool
	Current bool
}

// New opens a migrator over db. source holds the .sql files at its root,
// usually migrations.Files or os.DirFS for a checkout.
func New(db *sql.DB, source fs.FS, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{migrate: m, source: source, logger: logger}, nil
}

// Apply runs Up over a dedicated connection to dsn. Closing a Migrator also
// closes the *sql.DB it was built on.
func Apply(dsn string, source fs.FS, logger *zap.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	m, err := New(db, source, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	return errors.Join(m.Up(), m.Close())
}

// apply runs one golang-migrate action, treating ErrNoChange as success,
// and logs the resulting version
func (m *Migrator) apply(action string, run func() error) error {
	m.logger.Info("Running migrations", zap.String("action", action))
	if err := run(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Schema already up to date", zap.String("action", action))
			return nil
		}
		return fmt.Errorf("migration %s failed: %w", action, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Migrations applied",
		zap.String("action", action),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Up applies every pending migration
func (m *Migrator) Up() error { return m.apply("up", m.migrate.Up) }

// Down rolls every migration back
func (m *Migrator) Down() error { return m.apply("down", m.migrate.Down) }

// Steps moves n versions, forward when positive and back when negative
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps %+d", n), func() error { return m.migrate.Steps(n) })
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	return m.apply(fmt.Sprintf("goto %d", version), func() error { return m.migrate.Migrate(version) })
}

// Version returns the applied version, 0 when nothing has run yet
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

// Status lists every migration in the source with whether it is applied
func (m *Migrator) Status() ([]Status, error) {
	entries, err := Scan(m.source)
	if err != nil {
		return nil, err
	}
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(entries))
	for i, e := range entries {
		out[i] = Status{
			Entry:   e,
			Applied: current != 0 && e.Version <= uint64(current),
			Current: e.Version == uint64(current),
		}
	}
	return out, nil
}

// Force marks version as applied and clean without running anything. It
// repairs a dirty schema after a failed migration was fixed by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every table in the database
func (m *Migrator) Drop() error {
	m.logger.Warn("Dropping all database objects")
	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// Close releases the source and the database driver
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}
