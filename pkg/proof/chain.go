package proof

import "fmt"

// Chain is an ordered, append-only sequence of blocks for one session.
type Chain []Block

// Append returns the chain extended with b, enforcing index continuity and
// prev-hash linkage. The receiver is not mutated.
func (c Chain) Append(b Block) (Chain, error) {
	if b.Index != len(c) {
		return nil, fmt.Errorf("proof: append out of order: block index %d, chain length %d", b.Index, len(c))
	}
	want := GenesisHash
	if len(c) > 0 {
		want = c[len(c)-1].Hash
	}
	if b.PrevHash != want {
		return nil, fmt.Errorf("proof: append breaks linkage at index %d: prev_hash %s, head %s", b.Index, b.PrevHash, want)
	}
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, b), nil
}

// Head returns the hash the next block must link to.
func (c Chain) Head() string {
	if len(c) == 0 {
		return GenesisHash
	}
	return c[len(c)-1].Hash
}

// ValidationResult is the verdict of Validate.
type ValidationResult struct {
	Valid           bool   `json:"valid"`
	FirstBreakIndex *int   `json:"first_break_index,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Validate recomputes every block's hash from its stored fields and checks
// prev-hash linkage and index continuity, reporting the first broken link.
//
// This function is the sole deterministic authority on chain integrity; no
// branch verdict, oracle included, overrides it. It is idempotent and has
// no side effects.
func Validate(c Chain) ValidationResult {
	prev := GenesisHash
	for i := range c {
		b := c[i]
		if b.Index != i {
			return broken(i, fmt.Sprintf("index %d at position %d", b.Index, i))
		}
		if b.PrevHash != prev {
			return broken(i, fmt.Sprintf("prev_hash mismatch: stored %s, expected %s", b.PrevHash, prev))
		}
		computed, err := HashBlock(b)
		if err != nil {
			return broken(i, fmt.Sprintf("unhashable block: %v", err))
		}
		if computed != b.Hash {
			return broken(i, fmt.Sprintf("hash mismatch: stored %s, computed %s", b.Hash, computed))
		}
		prev = b.Hash
	}
	return ValidationResult{Valid: true}
}

func broken(index int, reason string) ValidationResult {
	i := index
	return ValidationResult{Valid: false, FirstBreakIndex: &i, Reason: fmt.Sprintf("chain broken at block %d: %s", index, reason)}
}
