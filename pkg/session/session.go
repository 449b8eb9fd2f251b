// Package session holds the durable mapping from session identifier to
// in-progress and completed proof chains. Appends are phase-ordered and
// guarded by an at-most-one-writer rule per session: a stale or duplicate
// append fails fast instead of silently corrupting the chain.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusProposed         Status = "proposed"
	StatusExecuting        Status = "executing"
	StatusVerifying        Status = "verifying"
	StatusConsensusReached Status = "consensus_reached"
	StatusConsensusFailed  Status = "consensus_failed"
	StatusChainInvalid     Status = "chain_invalid"
)

// Closed reports whether s is a terminal status.
func (s Status) Closed() bool {
	switch s {
	case StatusConsensusReached, StatusConsensusFailed, StatusChainInvalid:
		return true
	}
	return false
}

// Request is the proposed operation guarded by the tribunal.
type Request struct {
	Package string `json:"package"`
	UserID  int64  `json:"user_id"`
}

// Session is one tribunal run: the request, its proof chain, and status.
type Session struct {
	ID        string      `json:"session_id"`
	Request   Request     `json:"request"`
	Status    Status      `json:"status"`
	Chain     proof.Chain `json:"chain"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

var (
	// ErrNotFound reports an unknown session identifier.
	ErrNotFound = errors.New("session: not found")
	// ErrExists reports a Create with an already-used identifier.
	ErrExists = errors.New("session: already exists")
	// ErrWriteConflict reports a stale or duplicate append — a second
	// writer raced this session. Programming error, fail fast.
	ErrWriteConflict = errors.New("session: write conflict")
	// ErrClosed reports an append to a finalized session.
	ErrClosed = errors.New("session: closed")
)

// Store is the durable session repository. AppendBlock requires the
// block's index to equal the current chain length (strict phase order) and
// advances the in-progress status; Close finalizes, after which the
// session is read-only.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	AppendBlock(ctx context.Context, id string, b proof.Block) error
	Close(ctx context.Context, id string, status Status) error
	List(ctx context.Context, limit int) ([]*Session, error)
}

// statusAfterAppend is the in-progress status a session enters once the
// block at the given index lands.
func statusAfterAppend(index int) Status {
	switch index {
	case 0:
		return StatusExecuting
	default:
		return StatusVerifying
	}
}
