package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	config "github.com/maheshrc27/skyqueue/configs"
	_ "modernc.org/sqlite"
)

// OpenDatabase opens the key-value database for the configured driver and
// makes sure its schema exists.
func OpenDatabase(driver, uri string) (*sql.DB, error) {
	switch driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(uri); dir != "." && uri != ":memory:" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	case config.DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		// one writer; the queue read-modify-write relies on it
		db.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			store_key   TEXT PRIMARY KEY,
			store_value TEXT NOT NULL,
			updated_at  BIGINT NOT NULL
		)`)
	return err
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(driver, query string) string {
	if driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
