// Package migrate applies the embedded SQL schema using golang-migrate.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const defaultMigrationsTable = "schema_migrations"

//go:embed sql/*.sql
var migrationFS embed.FS

// Manager executes the embedded migrations against a database.
type Manager struct {
	db              *sql.DB
	migrationsTable string
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, migrationsTable: defaultMigrationsTable}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status describes the applied schema version.
type Status struct {
	Version uint
	Dirty   bool
}

func (s Status) String() string {
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// Up applies all pending migrations. Being already current is not an error.
func (m *Manager) Up() error {
	return m.run(func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down() error {
	return m.run(func(mg *migrate.Migrate) error { return mg.Steps(-1) })
}

// Status returns the current schema version; Version is 0 on an empty database.
func (m *Manager) Status() (Status, error) {
	var st Status
	err := m.run(func(mg *migrate.Migrate) error {
		v, dirty, err := mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		st = Status{Version: v, Dirty: dirty}
		return err
	})
	return st, err
}

// Sources lists the embedded migration file names, for diagnostics.
func Sources() ([]string, error) {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (m *Manager) run(fn func(*migrate.Migrate) error) error {
	if m.db == nil {
		return errors.New("migrate: database is not configured")
	}
	src, err := iofs.New(migrationFS, "sql")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	driver, err := migratepgx.WithInstance(m.db, &migratepgx.Config{MigrationsTable: m.migrationsTable})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := fn(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
