// Package oracle wraps the non-deterministic advisory judgment behind a
// bounded interface. A judgment can support, object to, or abstain from a
// proposed operation; it is advisory context only and never overrides the
// deterministic chain validator. Any transport, parse, or timeout failure
// is downgraded to Abstain — an oracle error never reaches the caller.
package oracle

import "context"

// Verdict is the oracle's advisory position.
type Verdict string

const (
	VerdictSupport Verdict = "support"
	VerdictObject  Verdict = "object"
	VerdictAbstain Verdict = "abstain"
)

// Judgment is the bounded result of one oracle consultation.
type Judgment struct {
	Verdict   Verdict `json:"verdict"`
	Rationale string  `json:"rationale"`
	LatencyMS int64   `json:"latency_ms"`
}

// BlockSummary is one chain block condensed for the oracle prompt.
type BlockSummary struct {
	Index    int    `json:"index"`
	Branch   string `json:"branch"`
	Approved bool   `json:"approved"`
	Degraded bool   `json:"degraded"`
}

// ChainSummary is the context handed to the oracle. It carries no hashes;
// integrity is the chain validator's job, not the oracle's.
type ChainSummary struct {
	SessionID  string         `json:"session_id"`
	Package    string         `json:"package"`
	UserID     int64          `json:"user_id"`
	ChainValid bool           `json:"chain_valid"`
	Blocks     []BlockSummary `json:"blocks"`
}

// Judge produces an advisory judgment within the caller's deadline.
// Implementations must not return errors; failure modes collapse to a
// Judgment with VerdictAbstain and the failure reason as rationale.
type Judge interface {
	Judge(ctx context.Context, summary ChainSummary) Judgment
}

// Abstain builds the safe-default judgment used on any failure.
func Abstain(reason string, latencyMS int64) Judgment {
	return Judgment{Verdict: VerdictAbstain, Rationale: reason, LatencyMS: latencyMS}
}
