package tribunal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Soulfra/soulfra-sub004/pkg/observability"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/report"
	"github.com/Soulfra/soulfra-sub004/pkg/session"
)

// Timeouts bounds each phase of the pipeline.
type Timeouts struct {
	Propose time.Duration
	Execute time.Duration
	Verify  time.Duration
}

// DefaultTimeouts returns the standard per-phase bounds. Verify leaves
// headroom over the oracle's own 10s ceiling.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Propose: 10 * time.Second,
		Execute: 20 * time.Second,
		Verify:  15 * time.Second,
	}
}

// Pipeline drives the strictly sequential Propose -> Execute -> Verify
// protocol for one session at a time, persists each block in phase order,
// aggregates, and writes the final report. Sessions are independent;
// a single Pipeline may run many concurrently.
type Pipeline struct {
	proposer Branch
	executor Branch
	verifier Branch
	store    session.Store
	reports  *report.Writer
	timeouts Timeouts
	keys     map[string]string
	logger   *slog.Logger
	tracer   trace.Tracer
	obs      *observability.Provider
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTimeouts overrides the per-phase timeouts.
func WithTimeouts(t Timeouts) PipelineOption {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithPublicKeys embeds the branch verification keys in every report so
// signatures can be checked offline.
func WithPublicKeys(keys map[string]string) PipelineOption {
	return func(p *Pipeline) { p.keys = keys }
}

// WithObservability routes phase spans and RED metrics through the
// provider instead of the global tracer.
func WithObservability(obs *observability.Provider) PipelineOption {
	return func(p *Pipeline) { p.obs = obs }
}

// NewPipeline wires the three branches to the session store and report
// writer.
func NewPipeline(proposer, executor, verifier Branch, store session.Store, reports *report.Writer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		proposer: proposer,
		executor: executor,
		verifier: verifier,
		store:    store,
		reports:  reports,
		timeouts: DefaultTimeouts(),
		logger:   slog.Default().With("component", "pipeline"),
		tracer:   otel.Tracer("tribunal"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives one full session. The returned report is always populated
// when a chain exists, even alongside a non-nil error, so callers can
// persist partial evidence. Error taxonomy:
//
//   - *ValidationError: the proposer rejected the request; the session is
//     closed consensus_failed with the auditable block 0.
//   - *ChainIntegrityError: tampering detected mid-protocol; the session
//     is closed chain_invalid.
//   - other errors: infrastructure failure (store unavailable, proposer
//     crash) — no verdict was reached.
func (p *Pipeline) Run(ctx context.Context, req Request) (*report.Report, error) {
	sess := &session.Session{
		ID:      req.SessionID,
		Request: session.Request{Package: req.Package, UserID: req.UserID},
		Status:  session.StatusProposed,
	}
	if err := p.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("tribunal: create session: %w", err)
	}

	ctx, span := p.tracer.Start(ctx, "tribunal.session", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("request.package", req.Package),
	))
	defer span.End()

	var chain proof.Chain

	// Propose. Failure here aborts everything: no chain exists yet and
	// no side effect occurred.
	block0, err := p.phase(ctx, "propose", p.timeouts.Propose, func(ctx context.Context) (proof.Block, error) {
		return p.proposer.Propose(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("tribunal: propose: %w", err)
	}
	chain = proof.Chain{block0}
	if err := p.store.AppendBlock(ctx, sess.ID, block0); err != nil {
		return nil, fmt.Errorf("tribunal: persist proposal: %w", err)
	}
	if !block0.Approved {
		rep, err := p.finalize(ctx, sess.ID, req, chain, nil)
		if err != nil {
			return rep, err
		}
		reason, _ := block0.Payload["reject_reason"].(string)
		return rep, &ValidationError{Reason: reason}
	}

	// Execute.
	abstained := make(map[proof.Branch]string)
	block1, err := p.phase(ctx, "execute", p.timeouts.Execute, func(ctx context.Context) (proof.Block, error) {
		return p.executor.Execute(ctx, chain)
	})
	switch {
	case err == nil:
		chain, err = chain.Append(block1)
		if err != nil {
			return nil, fmt.Errorf("tribunal: chain executor block: %w", err)
		}
		if err := p.store.AppendBlock(ctx, sess.ID, block1); err != nil {
			return nil, fmt.Errorf("tribunal: persist execution: %w", err)
		}
	case isIntegrityErr(err):
		return p.finalizeWithErr(ctx, sess.ID, req, chain, nil, err)
	case isUnreachable(err):
		p.logger.WarnContext(ctx, "executor abstained", "session_id", sess.ID, "error", err)
		abstained[proof.BranchExecutor] = err.Error()
	default:
		return nil, fmt.Errorf("tribunal: execute: %w", err)
	}

	// Verify. Runs over the chain that actually exists, one block short
	// when the executor abstained.
	block2, err := p.phase(ctx, "verify", p.timeouts.Verify, func(ctx context.Context) (proof.Block, error) {
		return p.verifier.Verify(ctx, chain)
	})
	switch {
	case err == nil:
		chain, err = chain.Append(block2)
		if err != nil {
			return nil, fmt.Errorf("tribunal: chain verifier block: %w", err)
		}
		if err := p.store.AppendBlock(ctx, sess.ID, block2); err != nil {
			return nil, fmt.Errorf("tribunal: persist verification: %w", err)
		}
	case isIntegrityErr(err):
		return p.finalizeWithErr(ctx, sess.ID, req, chain, abstained, err)
	case isUnreachable(err):
		p.logger.WarnContext(ctx, "verifier abstained", "session_id", sess.ID, "error", err)
		abstained[proof.BranchVerifier] = err.Error()
	default:
		return nil, fmt.Errorf("tribunal: verify: %w", err)
	}

	return p.finalize(ctx, sess.ID, req, chain, abstained)
}

// phase runs one branch call under its timeout, converting a deadline or
// transport failure into BranchUnreachableError.
func (p *Pipeline) phase(ctx context.Context, name string, timeout time.Duration, call func(context.Context) (proof.Block, error)) (proof.Block, error) {
	var finish func(error)
	if p.obs != nil {
		ctx, finish = p.obs.TrackPhase(ctx, name)
	} else {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "tribunal."+name)
		finish = func(err error) {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := call(ctx)
	finish(err)
	if err == nil {
		return b, nil
	}
	var integrity *ChainIntegrityError
	if errors.As(err, &integrity) {
		return proof.Block{}, err
	}
	if isTransient(err) {
		return proof.Block{}, &BranchUnreachableError{Branch: branchForPhase(name), Err: err}
	}
	return proof.Block{}, err
}

func branchForPhase(name string) proof.Branch {
	switch name {
	case "propose":
		return proof.BranchProposer
	case "execute":
		return proof.BranchExecutor
	default:
		return proof.BranchVerifier
	}
}

// isTransient reports whether err is a timeout or network failure — the
// class treated as abstention rather than crash.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var unreachable *BranchUnreachableError
	return errors.As(err, &unreachable)
}

func isIntegrityErr(err error) bool {
	var e *ChainIntegrityError
	return errors.As(err, &e)
}

func isUnreachable(err error) bool {
	var e *BranchUnreachableError
	return errors.As(err, &e)
}

// finalize aggregates, closes the session, and writes the report.
func (p *Pipeline) finalize(ctx context.Context, sessionID string, req Request, chain proof.Chain, abstained map[proof.Branch]string) (*report.Report, error) {
	out := Aggregate(chain)

	if err := p.store.Close(ctx, sessionID, out.Status); err != nil {
		return nil, fmt.Errorf("tribunal: close session: %w", err)
	}

	rep := buildReport(sessionID, req, chain, out, abstained)
	rep.PublicKeys = p.keys

	if p.reports != nil {
		if _, err := p.reports.Write(ctx, rep); err != nil {
			return rep, fmt.Errorf("tribunal: write report: %w", err)
		}
	}
	p.logger.InfoContext(ctx, "session finalized",
		"session_id", sessionID,
		"status", string(out.Status),
		"approvals", out.Approvals,
		"chain_valid", out.ChainValid,
		"degraded", len(out.DegradedBranches) > 0,
	)
	return rep, nil
}

// finalizeWithErr finalizes after a branch reported an integrity break,
// preserving the error for the caller. The break outranks whatever the
// local copy of the chain says: the session closes chain_invalid even if
// the copy held here still validates.
func (p *Pipeline) finalizeWithErr(ctx context.Context, sessionID string, req Request, chain proof.Chain, abstained map[proof.Branch]string, cause error) (*report.Report, error) {
	var integrity *ChainIntegrityError
	if !errors.As(cause, &integrity) {
		return nil, cause
	}

	if err := p.store.Close(ctx, sessionID, session.StatusChainInvalid); err != nil {
		return nil, fmt.Errorf("tribunal: close session: %w", err)
	}

	out := Aggregate(chain)
	out.Status = session.StatusChainInvalid
	out.ChainValid = false
	if out.FirstBreakIndex == nil {
		idx := integrity.BreakIndex
		out.FirstBreakIndex = &idx
	}
	for _, b := range chain {
		if b.Branch == proof.BranchExecutor && b.Approved && !b.Degraded {
			out.CompensationRequired = true
		}
	}

	rep := buildReport(sessionID, req, chain, out, abstained)
	rep.PublicKeys = p.keys
	rep.Notes = append(rep.Notes, "integrity break reported by a branch: "+integrity.Reason)

	if p.reports != nil {
		if _, err := p.reports.Write(ctx, rep); err != nil {
			return rep, fmt.Errorf("tribunal: write report: %w", err)
		}
	}
	p.logger.WarnContext(ctx, "session closed on integrity break",
		"session_id", sessionID, "break_index", integrity.BreakIndex, "reason", integrity.Reason)
	return rep, cause
}

func buildReport(sessionID string, req Request, chain proof.Chain, out Outcome, abstained map[proof.Branch]string) *report.Report {
	rep := &report.Report{
		FormatVersion:        report.FormatVersion,
		SessionID:            sessionID,
		Request:              session.Request{Package: req.Package, UserID: req.UserID},
		Status:               out.Status,
		Chain:                chain,
		ChainValid:           out.ChainValid,
		FirstBreakIndex:      out.FirstBreakIndex,
		Approvals:            out.Approvals,
		CompensationRequired: out.CompensationRequired,
	}

	for _, branch := range []proof.Branch{proof.BranchProposer, proof.BranchExecutor, proof.BranchVerifier} {
		br := report.BranchReport{
			Branch:        string(branch),
			Participation: string(out.Participation[branch]),
		}
		for _, d := range out.DegradedBranches {
			if d == branch {
				br.Degraded = true
			}
		}
		rep.Branches = append(rep.Branches, br)
	}

	for _, d := range out.DegradedBranches {
		rep.DegradedBranches = append(rep.DegradedBranches, string(d))
		rep.Notes = append(rep.Notes, fmt.Sprintf("%s ran degraded: result is simulated, not a real execution", d))
	}
	if reason, ok := abstained[proof.BranchExecutor]; ok {
		rep.Notes = append(rep.Notes, "execution incomplete: "+reason)
	}
	if reason, ok := abstained[proof.BranchVerifier]; ok {
		rep.Notes = append(rep.Notes, "verification incomplete: "+reason)
	}
	if out.CompensationRequired {
		rep.Notes = append(rep.Notes, "compensation required: a real charge occurred without consensus")
	}
	return rep
}
