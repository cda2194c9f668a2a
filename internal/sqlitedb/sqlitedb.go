package sqlitedb

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Open opens a WAL-mode database at path and applies schema. ":memory:" gives
// a private in-memory database.
func Open(path, schema string) (*sqlx.DB, error) {
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		dsn = path
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return db, nil
}
