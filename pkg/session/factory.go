package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// NewStore opens a session store for the named backend. The dsn meaning
// depends on the backend: the SQLite file path, the Postgres connection
// string, or the Redis address. The memory backend ignores it.
func NewStore(backend, dsn string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join("data", "sessions.db")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("session: ensure data dir: %w", err)
			}
		}
		return NewSQLiteStore(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("session: a DSN is required for the postgres store")
		}
		return NewPostgresStore(dsn)
	case "redis":
		if dsn == "" {
			dsn = "localhost:6379"
		}
		return NewRedisStore(dsn, os.Getenv("REDIS_PASSWORD"), 0, 0), nil
	default:
		return nil, fmt.Errorf("session: unsupported store backend %q", backend)
	}
}

// NewStoreFromEnv selects the session store backend.
//
//   - SESSION_STORE: "memory" (default), "sqlite", "postgres", or "redis"
//   - DATA_DIR: directory for the SQLite file (default "data")
//   - DATABASE_URL: Postgres DSN
//   - REDIS_ADDR, REDIS_PASSWORD: Redis connection
func NewStoreFromEnv() (Store, error) {
	backend := os.Getenv("SESSION_STORE")
	if backend == "" {
		backend = "memory"
	}

	var dsn string
	switch backend {
	case "sqlite":
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		dsn = filepath.Join(dataDir, "sessions.db")
	case "postgres":
		dsn = os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("session: DATABASE_URL is required for the postgres store")
		}
	case "redis":
		dsn = os.Getenv("REDIS_ADDR")
	}
	return NewStore(backend, dsn)
}
