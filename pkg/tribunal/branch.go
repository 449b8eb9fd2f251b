// Package tribunal implements the three-branch verification protocol: the
// Proposer, Executor, and Verifier branches, the sequential pipeline that
// drives them, and the consensus aggregator that combines their verdicts
// with the deterministic chain-validity check.
package tribunal

import (
	"context"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// Request is the operation submitted to the tribunal.
type Request struct {
	SessionID string `json:"session_id"`
	Package   string `json:"package"`
	UserID    int64  `json:"user_id"`
}

// Branch is the uniform contract all three participants implement. Each
// concrete branch owns exactly one phase and returns ErrUnsupportedPhase
// for the others; the same contract is satisfied in-process and by the
// HTTP client, so protocol logic is written once.
type Branch interface {
	// Propose validates the request and produces block 0.
	Propose(ctx context.Context, req Request) (proof.Block, error)
	// Execute validates the chain so far and produces the next block by
	// attempting the side-effecting operation.
	Execute(ctx context.Context, chain proof.Chain) (proof.Block, error)
	// Verify re-validates the chain, consults the oracle, and produces
	// the final block.
	Verify(ctx context.Context, chain proof.Chain) (proof.Block, error)
}

// singlePhase provides the two rejections every concrete branch embeds.
type singlePhase struct{}

func (singlePhase) Propose(context.Context, Request) (proof.Block, error) {
	return proof.Block{}, ErrUnsupportedPhase
}

func (singlePhase) Execute(context.Context, proof.Chain) (proof.Block, error) {
	return proof.Block{}, ErrUnsupportedPhase
}

func (singlePhase) Verify(context.Context, proof.Chain) (proof.Block, error) {
	return proof.Block{}, ErrUnsupportedPhase
}

// guardChain runs the deterministic validator over the chain a branch
// received and converts a break into ChainIntegrityError.
func guardChain(chain proof.Chain) error {
	res := proof.Validate(chain)
	if res.Valid {
		return nil
	}
	idx := 0
	if res.FirstBreakIndex != nil {
		idx = *res.FirstBreakIndex
	}
	return &ChainIntegrityError{BreakIndex: idx, Reason: res.Reason}
}
