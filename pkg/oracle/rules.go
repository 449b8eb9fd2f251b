package oracle

import (
	"context"
	"fmt"
	"time"
)

// RuleOracle is a deterministic judge for tests and air-gapped deployments.
// It objects when the summary is internally inconsistent and supports
// otherwise, mirroring the shape of the LLM oracle without the network.
type RuleOracle struct{}

func NewRuleOracle() *RuleOracle { return &RuleOracle{} }

func (o *RuleOracle) Judge(ctx context.Context, summary ChainSummary) Judgment {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Abstain(fmt.Sprintf("context done: %v", err), elapsed(start))
	}

	if !summary.ChainValid {
		return Judgment{
			Verdict:   VerdictObject,
			Rationale: "chain summary marked invalid",
			LatencyMS: elapsed(start),
		}
	}
	if summary.Package == "" || summary.UserID <= 0 {
		return Judgment{
			Verdict:   VerdictObject,
			Rationale: "request summary missing package or user",
			LatencyMS: elapsed(start),
		}
	}
	for _, b := range summary.Blocks {
		if !b.Approved {
			return Abstain(fmt.Sprintf("branch %s did not approve, deferring", b.Branch), elapsed(start))
		}
	}
	return Judgment{
		Verdict:   VerdictSupport,
		Rationale: "all summarized branches approved a well-formed request",
		LatencyMS: elapsed(start),
	}
}
