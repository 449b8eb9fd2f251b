package session

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (or creates) a SQLite-backed session store at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite %q: %w", path, err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)
	return NewSQLStore(db)
}
