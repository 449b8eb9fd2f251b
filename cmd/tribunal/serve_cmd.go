package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Soulfra/soulfra-sub004/pkg/config"
	"github.com/Soulfra/soulfra-sub004/pkg/httpapi"
	"github.com/Soulfra/soulfra-sub004/pkg/observability"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/tribunal"
)

// collocatedBranches serves all three phases from one node.
type collocatedBranches struct {
	proposer tribunal.Branch
	executor tribunal.Branch
	verifier tribunal.Branch
}

func (c collocatedBranches) Propose(ctx context.Context, req tribunal.Request) (proof.Block, error) {
	return c.proposer.Propose(ctx, req)
}

func (c collocatedBranches) Execute(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	return c.executor.Execute(ctx, chain)
}

func (c collocatedBranches) Verify(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	return c.verifier.Verify(ctx, chain)
}

// runServeCmd implements `tribunal serve`: the branch HTTP server with
// all three branches collocated.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		addr         string
		otlpEndpoint string
		profileName  string
	)
	cmd.StringVar(&addr, "addr", "", "Listen address (default TRIBUNAL_ADDR or :8080)")
	cmd.StringVar(&otlpEndpoint, "otlp", "", "OTLP gRPC endpoint for telemetry (disabled when empty)")
	cmd.StringVar(&profileName, "profile", "", "Deployment profile name (profiles/profile_<name>.yaml)")

	if err := cmd.Parse(args); err != nil {
		return 3
	}

	cfg := config.Load()
	if profileName != "" {
		prof, err := config.LoadProfile(profilesDir(), profileName)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 3
		}
		cfg.ApplyProfile(prof)
	}
	if addr == "" {
		addr = cfg.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if otlpEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = otlpEndpoint
		obsCfg.Insecure = true
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: telemetry init: %v\n", err)
			return 3
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
	}

	branches, _, err := buildBranches(cfg, "", "", "", "")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
	svc := httpapi.NewBranchService(collocatedBranches{
		proposer: branches[0],
		executor: branches[1],
		verifier: branches[2],
	})

	if err := httpapi.Serve(ctx, svc, httpapi.ServerConfig{
		Addr:       addr,
		AuthSecret: cfg.AuthSecret,
		RateRPS:    cfg.RateRPS,
		RateBurst:  cfg.RateBurst,
	}); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
	return 0
}
