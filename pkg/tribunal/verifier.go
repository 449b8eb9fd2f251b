package tribunal

import (
	"context"
	"log/slog"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/oracle"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// VerifierBranch re-validates the full chain and consults the oracle
// exactly once. The oracle is advisory context: it can narrow the
// verifier's approval (an objection withholds it) but never substitutes
// for the deterministic chain check.
type VerifierBranch struct {
	singlePhase
	judge  oracle.Judge
	signer *proof.Signer
	clock  func() time.Time
	logger *slog.Logger
}

// VerifierOption configures a VerifierBranch.
type VerifierOption func(*VerifierBranch)

// WithVerifierSigner makes the branch sign its blocks.
func WithVerifierSigner(s *proof.Signer) VerifierOption {
	return func(v *VerifierBranch) { v.signer = s }
}

// WithVerifierClock overrides the clock for testing.
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *VerifierBranch) { v.clock = clock }
}

// NewVerifier creates the verifier branch. A nil judge is treated as a
// permanent abstention.
func NewVerifier(judge oracle.Judge, opts ...VerifierOption) *VerifierBranch {
	v := &VerifierBranch{
		judge:  judge,
		clock:  time.Now,
		logger: slog.Default().With("branch", "verifier"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the chain, consults the oracle, and produces the final
// block. approved = chain valid AND oracle did not object; an oracle
// timeout or failure is an abstention and leaves approval to chain
// validity alone.
func (v *VerifierBranch) Verify(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	if err := guardChain(chain); err != nil {
		return proof.Block{}, err
	}

	judgment := oracle.Abstain("no oracle configured", 0)
	if v.judge != nil {
		judgment = v.judge.Judge(ctx, summarize(chain))
	}
	if judgment.Verdict == oracle.VerdictAbstain {
		v.logger.InfoContext(ctx, "oracle abstained", "rationale", judgment.Rationale)
	}

	approved := judgment.Verdict != oracle.VerdictObject

	payload := map[string]any{
		"chain_valid":       true,
		"blocks_reviewed":   len(chain),
		"oracle_verdict":    string(judgment.Verdict),
		"oracle_rationale":  judgment.Rationale,
		"oracle_latency_ms": judgment.LatencyMS,
	}

	b, err := proof.NewBlock(len(chain), proof.BranchVerifier, payload, chain.Head(), v.clock(), approved, false)
	if err != nil {
		return proof.Block{}, err
	}
	if v.signer != nil {
		v.signer.Sign(&b)
	}
	return b, nil
}

// summarize condenses the chain for the oracle prompt.
func summarize(chain proof.Chain) oracle.ChainSummary {
	summary := oracle.ChainSummary{ChainValid: true}
	if len(chain) > 0 {
		if req, err := requestFromProposal(chain[0]); err == nil {
			summary.SessionID = req.SessionID
			summary.Package = req.Package
			summary.UserID = req.UserID
		}
	}
	for _, b := range chain {
		summary.Blocks = append(summary.Blocks, oracle.BlockSummary{
			Index:    b.Index,
			Branch:   string(b.Branch),
			Approved: b.Approved,
			Degraded: b.Degraded,
		})
	}
	return summary
}
