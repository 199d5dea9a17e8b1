package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

const memoryPath = ":memory:"

// settings are applied to every new database handle. The hunt store writes
// one row per answer from many requests at once, so readers must not block
// the writer and a busy writer is waited on rather than failed.
var settings = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open returns a libSQL handle for the file at path, or a private
// in-memory database for ":memory:".
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if path == memoryPath {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database %s: %w", path, err)
	}
	return db, nil
}

// apply runs settings as queries. libSQL refuses Exec for a PRAGMA that
// answers with a row.
func apply(ctx context.Context, db *sql.DB) error {
	for _, s := range settings {
		rows, err := db.QueryContext(ctx, s)
		if err != nil {
			return fmt.Errorf("applying %q: %w", s, err)
		}
		rows.Close()
	}
	return nil
}
