package tribunal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
	"github.com/Soulfra/soulfra-sub004/pkg/oracle"
	"github.com/Soulfra/soulfra-sub004/pkg/payment"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// fixedJudge returns a canned judgment and records the summary it saw.
type fixedJudge struct {
	judgment oracle.Judgment
	calls    int
	seen     oracle.ChainSummary
}

func (f *fixedJudge) Judge(_ context.Context, s oracle.ChainSummary) oracle.Judgment {
	f.calls++
	f.seen = s
	return f.judgment
}

func executedChain(t *testing.T) proof.Chain {
	t.Helper()
	chain := proposedChain(t)
	e := NewExecutor(catalog.Default(), payment.NewSimulator(), nil, WithExecutorClock(fixedClock()))
	b, err := e.Execute(context.Background(), chain)
	require.NoError(t, err)
	chain, err = chain.Append(b)
	require.NoError(t, err)
	return chain
}

func TestVerifierApprovesOnSupport(t *testing.T) {
	judge := &fixedJudge{judgment: oracle.Judgment{Verdict: oracle.VerdictSupport, Rationale: "looks consistent", LatencyMS: 12}}
	v := NewVerifier(judge, WithVerifierClock(fixedClock()))

	chain := executedChain(t)
	b, err := v.Verify(context.Background(), chain)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Index)
	assert.Equal(t, proof.BranchVerifier, b.Branch)
	assert.True(t, b.Approved)
	assert.Equal(t, "support", b.Payload["oracle_verdict"])
	assert.Equal(t, 2, b.Payload["blocks_reviewed"])
	assert.Equal(t, 1, judge.calls, "oracle is consulted exactly once")
}

func TestVerifierWithholdsOnObjection(t *testing.T) {
	judge := &fixedJudge{judgment: oracle.Judgment{Verdict: oracle.VerdictObject, Rationale: "degraded execution with high amount"}}
	v := NewVerifier(judge, WithVerifierClock(fixedClock()))

	b, err := v.Verify(context.Background(), executedChain(t))
	require.NoError(t, err)

	assert.False(t, b.Approved, "an objection withholds the verifier's approval")
	assert.Equal(t, "object", b.Payload["oracle_verdict"])
}

func TestVerifierApprovesOnAbstention(t *testing.T) {
	judge := &fixedJudge{judgment: oracle.Abstain("timeout", 10_000)}
	v := NewVerifier(judge, WithVerifierClock(fixedClock()))

	b, err := v.Verify(context.Background(), executedChain(t))
	require.NoError(t, err)

	assert.True(t, b.Approved, "abstention leaves approval to the chain check")
	assert.Equal(t, "abstain", b.Payload["oracle_verdict"])
}

func TestVerifierNilJudgeAbstains(t *testing.T) {
	v := NewVerifier(nil, WithVerifierClock(fixedClock()))

	b, err := v.Verify(context.Background(), executedChain(t))
	require.NoError(t, err)

	assert.True(t, b.Approved)
	assert.Equal(t, "abstain", b.Payload["oracle_verdict"])
}

func TestVerifierRefusesBrokenChainWithoutOracle(t *testing.T) {
	judge := &fixedJudge{judgment: oracle.Judgment{Verdict: oracle.VerdictSupport}}
	v := NewVerifier(judge, WithVerifierClock(fixedClock()))

	chain := executedChain(t)
	chain[1].Hash = chain[0].Hash

	_, err := v.Verify(context.Background(), chain)

	var integrity *ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Zero(t, judge.calls, "the oracle never sees a broken chain")
}

func TestVerifierSummary(t *testing.T) {
	judge := &fixedJudge{judgment: oracle.Judgment{Verdict: oracle.VerdictSupport}}
	v := NewVerifier(judge, WithVerifierClock(fixedClock()))

	_, err := v.Verify(context.Background(), executedChain(t))
	require.NoError(t, err)

	assert.Equal(t, "sess-1", judge.seen.SessionID)
	assert.Equal(t, "pro", judge.seen.Package)
	assert.True(t, judge.seen.ChainValid)
	require.Len(t, judge.seen.Blocks, 2)
	assert.Equal(t, "proposer", judge.seen.Blocks[0].Branch)
	assert.Equal(t, "executor", judge.seen.Blocks[1].Branch)
}
