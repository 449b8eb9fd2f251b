package tribunal

import (
	"errors"
	"fmt"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// ValidationError reports a malformed or schema-invalid request at propose
// time. Fatal to the session; no later phase is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tribunal: request validation failed: %s", e.Reason)
}

// ChainIntegrityError reports a hash or link break detected by a branch
// before it acts. Fatal; the session finalizes as chain_invalid.
type ChainIntegrityError struct {
	BreakIndex int
	Reason     string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("tribunal: chain integrity broken at block %d: %s", e.BreakIndex, e.Reason)
}

// BranchUnreachableError reports a network or timeout failure calling a
// branch. Non-fatal: the branch is counted as an abstention and the
// pipeline continues with the partial chain.
type BranchUnreachableError struct {
	Branch proof.Branch
	Err    error
}

func (e *BranchUnreachableError) Error() string {
	return fmt.Sprintf("tribunal: branch %s unreachable: %v", e.Branch, e.Err)
}

func (e *BranchUnreachableError) Unwrap() error { return e.Err }

// ErrUnsupportedPhase is returned when a branch is asked to perform a
// phase it does not own.
var ErrUnsupportedPhase = errors.New("tribunal: phase not supported by this branch")
