package payment

import (
	"os"
	"time"
)

// NewExecutorFromEnv builds the payment executor from environment variables.
//
//   - PAYMENT_GATEWAY_URL: base URL of the gateway; empty selects the
//     local simulator (dev/air-gapped deployments).
//   - PAYMENT_GATEWAY_API_KEY: bearer token for the gateway.
//   - PAYMENT_GATEWAY_TIMEOUT: Go duration, default 15s.
func NewExecutorFromEnv() Executor {
	url := os.Getenv("PAYMENT_GATEWAY_URL")
	if url == "" {
		return NewSimulator()
	}

	timeout := DefaultTimeout
	if raw := os.Getenv("PAYMENT_GATEWAY_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			timeout = d
		}
	}
	return NewGateway(url, os.Getenv("PAYMENT_GATEWAY_API_KEY"), timeout)
}
