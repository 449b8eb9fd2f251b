package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// SQLStore implements Store over database/sql. It works against both
// SQLite and Postgres: the schema is portable and $N placeholders are
// valid in both dialects. The chain_len column is the optimistic guard
// for the at-most-one-writer rule.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle and ensures the schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		chain TEXT NOT NULL,
		chain_len INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	status := sess.Status
	if status == "" {
		status = StatusProposed
	}
	reqJSON, err := json.Marshal(sess.Request)
	if err != nil {
		return fmt.Errorf("session: marshal request: %w", err)
	}
	chainJSON, err := json.Marshal(sess.Chain)
	if err != nil {
		return fmt.Errorf("session: marshal chain: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, request, status, chain, chain_len, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, string(reqJSON), string(status), string(chainJSON), len(sess.Chain), now, now,
	)
	if err != nil {
		if exists, xerr := s.exists(ctx, sess.ID); xerr == nil && exists {
			return ErrExists
		}
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

func (s *SQLStore) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, request, status, chain, created_at, updated_at FROM sessions WHERE session_id = $1`, id)
	return scanSession(row)
}

func (s *SQLStore) AppendBlock(ctx context.Context, id string, b proof.Block) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.Closed() {
		return ErrClosed
	}
	chain, err := cur.Chain.Append(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	chainJSON, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("session: marshal chain: %w", err)
	}

	// chain_len guard: the update only lands if nobody appended since the
	// read above.
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET chain = $1, chain_len = $2, status = $3, updated_at = $4
		 WHERE session_id = $5 AND chain_len = $6`,
		string(chainJSON), len(chain), string(statusAfterAppend(b.Index)),
		time.Now().UTC().Format(time.RFC3339Nano), id, len(cur.Chain),
	)
	if err != nil {
		return fmt.Errorf("session: append: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session: append rows affected: %w", err)
	}
	if n == 0 {
		return ErrWriteConflict
	}
	return nil
}

func (s *SQLStore) Close(ctx context.Context, id string, status Status) error {
	if !status.Closed() {
		return fmt.Errorf("session: %q is not a terminal status", status)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.Closed() {
		return ErrClosed
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE session_id = $3`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, request, status, chain, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: list rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                 Session
		reqJSON, chainJSON   string
		createdAt, updatedAt string
		status               string
	)
	err := row.Scan(&sess.ID, &reqJSON, &status, &chainJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	sess.Status = Status(status)
	if err := json.Unmarshal([]byte(reqJSON), &sess.Request); err != nil {
		return nil, fmt.Errorf("session: unmarshal request: %w", err)
	}
	if err := json.Unmarshal([]byte(chainJSON), &sess.Chain); err != nil {
		return nil, fmt.Errorf("session: unmarshal chain: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sess.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sess.UpdatedAt = t
	}
	return &sess, nil
}
