package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var fs embed.FS

// Dialect selects the SQL flavour and migration set
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Migrate applies all pending migrations of the dialect to databaseURL
func Migrate(dialect Dialect, databaseURL string) error {
	log.WithFields(log.Fields{
		"dialect": dialect,
	}).Info("Running migrations")

	m, err := newMigrate(dialect, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// Rollback reverts the most recent migration
func Rollback(dialect Dialect, databaseURL string) error {
	log.WithFields(log.Fields{
		"dialect": dialect,
	}).Info("Rolling back last migration")

	m, err := newMigrate(dialect, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}

	return nil
}

func newMigrate(dialect Dialect, databaseURL string) (*migrate.Migrate, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}

	// Create a new source instance using the embedded migrations
	d, err := iofs.New(fs, "migrations/"+string(dialect))
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error creating migrate instance: %w", err)
	}

	return m, nil
}
