// Package db persists analysis runs in SQLite. The schema is managed by
// embedded golang-migrate migrations applied on open.
package db

import (
	"database/sql"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/congestion.report/internal/timeutil"
)

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
	Clock timeutil.Clock // stamps created_at on saved runs
}

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// dsn appends the pragmas as driver query parameters so every connection
// the pool opens applies them, not only the first.
func dsn(path string) string {
	q := url.Values{"_pragma": pragmas}
	return path + "?" + q.Encode()
}

// OpenDB opens the database with its connection pragmas without touching
// the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, Clock: timeutil.RealClock{}}, nil
}

// Open opens the database and migrates it to the latest schema.
func Open(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
