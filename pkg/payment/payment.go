// Package payment is the boundary around the external Payment Executor
// dependency. The tribunal's Executor branch charges through it and falls
// back to the local simulator when the gateway is unreachable; a declined
// charge is an outcome, not a transport failure, and the two are never
// conflated.
package payment

import (
	"context"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
)

// Charge describes one requested charge.
type Charge struct {
	SessionID string        `json:"session_id"`
	UserID    int64         `json:"user_id"`
	Package   string        `json:"package"`
	Amount    catalog.Money `json:"amount"`
}

// Receipt is the result of a charge attempt that reached a decision.
// Succeeded=false with a DeclineReason is a legitimate business outcome.
type Receipt struct {
	Reference     string `json:"reference"`
	Succeeded     bool   `json:"succeeded"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

// Executor attempts a charge. An error return means the executor could not
// reach a decision (gateway unreachable, timeout); callers treat that as a
// trigger for degraded execution, never as a decline.
type Executor interface {
	Charge(ctx context.Context, c Charge) (Receipt, error)
}
