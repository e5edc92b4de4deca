package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirtySchema means a previous migration stopped half way and the schema
// needs manual repair before the node store can use it.
var ErrDirtySchema = errors.New("node store schema is dirty")

// SchemaState is the migration version the node store schema is at.
// Version 0 means no migration has been applied.
type SchemaState struct {
	Version uint
	Dirty   bool
}

// MigrateUp applies every pending migration and reports the resulting state.
func (db *DB) MigrateUp(migrationsPath string) (SchemaState, error) {
	return db.migrate(migrationsPath, "apply", func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown reverts the most recent migration and reports the resulting state.
func (db *DB) MigrateDown(migrationsPath string) (SchemaState, error) {
	return db.migrate(migrationsPath, "revert", func(m *migrate.Migrate) error {
		return m.Steps(-1)
	})
}

func (db *DB) migrate(migrationsPath, action string, step func(*migrate.Migrate) error) (SchemaState, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source := schemaSource(migrationsPath)
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to load node store migrations from %s: %w", source, err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaState{}, fmt.Errorf("failed to %s node store migrations: %w", action, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaState{}, fmt.Errorf("failed to read node store schema version: %w", err)
	}
	return checkState(SchemaState{Version: version, Dirty: dirty})
}

func checkState(s SchemaState) (SchemaState, error) {
	if s.Dirty {
		return s, fmt.Errorf("%w at version %d", ErrDirtySchema, s.Version)
	}
	return s, nil
}

// schemaSource returns the golang-migrate source URL of a migrations directory.
func schemaSource(migrationsPath string) string {
	return "file://" + filepath.ToSlash(migrationsPath)
}
