package session

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver
)

// NewPostgresStore opens a Postgres-backed session store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open postgres: %w", err)
	}
	return NewSQLStore(db)
}
