// Package store is a SQLite side-car cache sitting in front of the Packet
// Reader and the calibration loader: it remembers a packet file's decoded
// index (tag counts and offset table) and which source file a board's
// calibration was loaded from, keyed by a cheap stat-only identity, so re-processing an
// unchanged run doesn't re-scan every packet file from the disk.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sqlite connection with the index-cache schema applied.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the sqlite database at path, applies the
// standard pragmas, and migrates it to the latest schema version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// applyPragmas sets the WAL/synchronous/temp_store/busy_timeout pragmas
// used for every connection this package opens, cache database included.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return nil
}

func (db *DB) sub() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// migrateUp runs every pending migration. A fresh database starts empty,
// so this always brings it to the latest schema version in one call.
func (db *DB) migrateUp() error {
	sub, err := db.sub()
	if err != nil {
		return fmt.Errorf("store: migrations sub-fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: iofs source driver: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	// m.Close() is never called here: the sqlite driver's Close() would
	// close db.DB itself, which this package's callers still own.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}
