// Package proof implements the tamper-evident proof chain: hash-linked
// blocks appended by the three tribunal branches, a canonical codec so
// independent branches compute identical hashes, and the chain validator
// that is the sole deterministic authority on chain integrity.
package proof

import (
	"strings"
	"time"
)

// Branch identifies which tribunal participant authored a block.
type Branch string

const (
	BranchProposer Branch = "proposer"
	BranchExecutor Branch = "executor"
	BranchVerifier Branch = "verifier"
)

// GenesisHash is the prev_hash of block 0.
var GenesisHash = strings.Repeat("0", 64)

// Block is one immutable, hash-chained entry in a proof chain.
//
// Hash covers (index, branch, payload, prev_hash, timestamp, approved,
// degraded). Sig and Signer are computed over Hash and therefore excluded
// from it.
type Block struct {
	Index     int            `json:"index"`
	Branch    Branch         `json:"branch"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Timestamp time.Time      `json:"timestamp"`
	Approved  bool           `json:"approved"`
	Degraded  bool           `json:"degraded"`
	Sig       string         `json:"sig,omitempty"`
	Signer    string         `json:"signer,omitempty"`
}

// NewBlock builds a block and seals it with its content hash.
func NewBlock(index int, branch Branch, payload map[string]any, prevHash string, ts time.Time, approved, degraded bool) (Block, error) {
	b := Block{
		Index:     index,
		Branch:    branch,
		Payload:   payload,
		PrevHash:  prevHash,
		Timestamp: ts.UTC(),
		Approved:  approved,
		Degraded:  degraded,
	}
	h, err := HashBlock(b)
	if err != nil {
		return Block{}, err
	}
	b.Hash = h
	return b, nil
}
