package payment

import (
	"context"
	"fmt"
)

// Simulator is the local fallback executor used for degraded execution
// when the real gateway is unreachable. Its receipts are deterministic so
// degraded sessions stay reproducible.
type Simulator struct {
	// DeclineOver declines any charge above this amount in minor units.
	// Zero means never decline.
	DeclineOver int64
}

// NewSimulator creates a simulator that approves everything.
func NewSimulator() *Simulator { return &Simulator{} }

func (s *Simulator) Charge(ctx context.Context, c Charge) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("payment: simulator: %w", err)
	}
	if s.DeclineOver > 0 && c.Amount.AmountMinor > s.DeclineOver {
		return Receipt{
			Reference:     "sim-" + c.SessionID,
			Succeeded:     false,
			DeclineReason: fmt.Sprintf("simulated decline: amount %d over limit %d", c.Amount.AmountMinor, s.DeclineOver),
		}, nil
	}
	return Receipt{Reference: "sim-" + c.SessionID, Succeeded: true}, nil
}
