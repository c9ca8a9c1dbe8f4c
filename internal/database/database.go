// Package database opens the sqlite file backing the interval store.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/garage/internal/migrations"
)

// Open connects to the sqlite database at path and brings its schema up to date.
//
// Transactions begin IMMEDIATE, taking the write lock up front, so a check-then-insert inside
// one transaction can't interleave with another writer's.
func Open(path string) (*sqlx.DB, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")

	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?%s", path, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}

	version, err := migrateUp(dbx)
	if err != nil {
		dbx.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}
	slog.Info("schema up to date", "path", path, "version", version)

	return dbx, nil
}

// migrateUp applies the embedded migrations that haven't run yet and reports the resulting
// version. The migrator isn't closed: that would close dbx along with it.
func migrateUp(dbx *sqlx.DB) (uint, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("error reading migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(dbx.DB, &migratesqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("error creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("error creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("error reading schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
