package tribunal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
	"github.com/Soulfra/soulfra-sub004/pkg/payment"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// DefaultExecuteTimeout bounds one real charge attempt.
const DefaultExecuteTimeout = 15 * time.Second

// ExecutorBranch attempts the side-effecting operation. It refuses to act
// on a broken chain, charges through the real gateway when it can, and
// falls back to simulated execution — flagged degraded, never hidden —
// when the gateway is unreachable.
type ExecutorBranch struct {
	singlePhase
	catalog  *catalog.Catalog
	gateway  payment.Executor
	fallback payment.Executor
	timeout  time.Duration
	signer   *proof.Signer
	clock    func() time.Time
	logger   *slog.Logger
}

// ExecutorOption configures an ExecutorBranch.
type ExecutorOption func(*ExecutorBranch)

// WithExecuteTimeout overrides the charge timeout.
func WithExecuteTimeout(d time.Duration) ExecutorOption {
	return func(e *ExecutorBranch) { e.timeout = d }
}

// WithExecutorSigner makes the branch sign its blocks.
func WithExecutorSigner(s *proof.Signer) ExecutorOption {
	return func(e *ExecutorBranch) { e.signer = s }
}

// WithExecutorClock overrides the clock for testing.
func WithExecutorClock(clock func() time.Time) ExecutorOption {
	return func(e *ExecutorBranch) { e.clock = clock }
}

// NewExecutor creates the executor branch. gateway is the real Payment
// Executor dependency; fallback handles degraded execution and defaults
// to the local simulator when nil.
func NewExecutor(cat *catalog.Catalog, gateway payment.Executor, fallback payment.Executor, opts ...ExecutorOption) *ExecutorBranch {
	if fallback == nil {
		fallback = payment.NewSimulator()
	}
	e := &ExecutorBranch{
		catalog:  cat,
		gateway:  gateway,
		fallback: fallback,
		timeout:  DefaultExecuteTimeout,
		clock:    time.Now,
		logger:   slog.Default().With("branch", "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates the chain so far, then charges. The block's approved
// field reflects whether the (real or simulated) charge succeeded;
// degraded marks the fallback path.
func (e *ExecutorBranch) Execute(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	if err := guardChain(chain); err != nil {
		return proof.Block{}, err
	}
	if len(chain) == 0 {
		return proof.Block{}, fmt.Errorf("tribunal: execute requires a proposed block")
	}

	req, err := requestFromProposal(chain[0])
	if err != nil {
		return proof.Block{}, err
	}
	pkg, ok := e.catalog.Lookup(req.Package)
	if !ok {
		return proof.Block{}, fmt.Errorf("tribunal: execute: unknown package %q", req.Package)
	}

	charge := payment.Charge{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Package:   req.Package,
		Amount:    pkg.Price,
	}

	chargeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	method := "gateway"
	degraded := false
	receipt, err := e.gateway.Charge(chargeCtx, charge)
	if err != nil {
		// Unreachable gateway, not a decline: simulate and self-report.
		e.logger.WarnContext(ctx, "payment gateway unreachable, running degraded", "session_id", req.SessionID, "error", err)
		method = "simulated"
		degraded = true
		receipt, err = e.fallback.Charge(ctx, charge)
		if err != nil {
			return proof.Block{}, fmt.Errorf("tribunal: degraded execution failed: %w", err)
		}
	}

	payload := map[string]any{
		"method":       method,
		"package":      req.Package,
		"amount_minor": pkg.Price.AmountMinor,
		"currency":     pkg.Price.Currency,
		"reference":    receipt.Reference,
	}
	if !receipt.Succeeded {
		payload["decline_reason"] = receipt.DeclineReason
	}

	b, err := proof.NewBlock(len(chain), proof.BranchExecutor, payload, chain.Head(), e.clock(), receipt.Succeeded, degraded)
	if err != nil {
		return proof.Block{}, err
	}
	if e.signer != nil {
		e.signer.Sign(&b)
	}
	return b, nil
}

// requestFromProposal recovers the original request from block 0's payload.
func requestFromProposal(b proof.Block) (Request, error) {
	if b.Branch != proof.BranchProposer {
		return Request{}, fmt.Errorf("tribunal: block 0 authored by %s, want proposer", b.Branch)
	}
	pkg, _ := b.Payload["package"].(string)
	if pkg == "" {
		return Request{}, fmt.Errorf("tribunal: proposal payload missing package")
	}
	sessionID, _ := b.Payload["session_id"].(string)
	var userID int64
	switch v := b.Payload["user_id"].(type) {
	case int64:
		userID = v
	case int:
		userID = int64(v)
	case float64:
		userID = int64(v)
	default:
		return Request{}, fmt.Errorf("tribunal: proposal payload missing user_id")
	}
	return Request{SessionID: sessionID, Package: pkg, UserID: userID}, nil
}
