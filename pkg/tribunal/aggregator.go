package tribunal

import (
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/session"
)

// QuorumThreshold is the number of explicit approvals required for
// consensus. Rejections and abstentions are both non-approvals; the
// threshold tolerates exactly one unreachable or dissenting branch.
const QuorumThreshold = 2

// Participation is a branch's recorded stance in the final report.
type Participation string

const (
	ParticipationApproved  Participation = "approved"
	ParticipationRejected  Participation = "rejected"
	ParticipationAbstained Participation = "abstained"
)

// Outcome is the aggregator's final verdict over one session.
type Outcome struct {
	Status          session.Status
	ChainValid      bool
	FirstBreakIndex *int
	Approvals       int
	Participation   map[proof.Branch]Participation
	DegradedBranches []proof.Branch
	// CompensationRequired marks a session where a real, non-degraded
	// charge happened but consensus was not reached. No compensating
	// action is attempted; the flag routes the case to a human.
	CompensationRequired bool
}

// Aggregate applies the consensus rule over the chain that was actually
// built. Chain validity is checked first and tamper evidence outranks any
// approval count; branches with no block in the chain abstained.
func Aggregate(chain proof.Chain) Outcome {
	out := Outcome{
		Participation: map[proof.Branch]Participation{
			proof.BranchProposer: ParticipationAbstained,
			proof.BranchExecutor: ParticipationAbstained,
			proof.BranchVerifier: ParticipationAbstained,
		},
	}

	res := proof.Validate(chain)
	out.ChainValid = res.Valid
	out.FirstBreakIndex = res.FirstBreakIndex

	var executedForReal bool
	for _, b := range chain {
		if b.Approved {
			out.Participation[b.Branch] = ParticipationApproved
			out.Approvals++
		} else {
			out.Participation[b.Branch] = ParticipationRejected
		}
		if b.Degraded {
			out.DegradedBranches = append(out.DegradedBranches, b.Branch)
		}
		// A successful, non-degraded executor block is a real side effect.
		if b.Branch == proof.BranchExecutor && !b.Degraded && b.Approved {
			executedForReal = true
		}
	}

	switch {
	case !out.ChainValid:
		out.Status = session.StatusChainInvalid
	case out.Approvals >= QuorumThreshold:
		out.Status = session.StatusConsensusReached
	default:
		out.Status = session.StatusConsensusFailed
	}

	out.CompensationRequired = executedForReal && out.Status != session.StatusConsensusReached
	return out
}
