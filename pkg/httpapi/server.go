package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

func newSessionID() string { return uuid.New().String() }

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr       string
	AuthSecret string
	RateRPS    int
	RateBurst  int
}

// NewHandler assembles the routed, middleware-wrapped handler for one
// branch node.
func NewHandler(svc *BranchService, cfg ServerConfig) http.Handler {
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}

	branches := http.NewServeMux()
	branches.HandleFunc("POST /tribunal/propose", svc.HandlePropose)
	branches.HandleFunc("POST /tribunal/execute", svc.HandleExecute)
	branches.HandleFunc("POST /tribunal/verify", svc.HandleVerify)

	// The health probe bypasses auth; everything else carries the full
	// middleware stack.
	mux := http.NewServeMux()
	mux.Handle("/tribunal/", BearerAuth(cfg.AuthSecret)(BodyLimit(branches)))
	mux.HandleFunc("GET /health", svc.HandleHealth)

	limiter := NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	return RequestID(limiter.Middleware(mux))
}

// Serve runs the branch server until ctx is canceled, then drains with a
// 10s grace period.
func Serve(ctx context.Context, svc *BranchService, cfg ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(svc, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("branch server listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
