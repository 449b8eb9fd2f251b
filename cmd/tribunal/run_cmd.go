package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
	"github.com/Soulfra/soulfra-sub004/pkg/client"
	"github.com/Soulfra/soulfra-sub004/pkg/config"
	"github.com/Soulfra/soulfra-sub004/pkg/observability"
	"github.com/Soulfra/soulfra-sub004/pkg/oracle"
	"github.com/Soulfra/soulfra-sub004/pkg/payment"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/report"
	"github.com/Soulfra/soulfra-sub004/pkg/session"
	"github.com/Soulfra/soulfra-sub004/pkg/tribunal"
)

// runSessionCmd implements `tribunal run`: drive one full session through
// Propose, Execute, Verify, aggregation, and report writing.
//
// Exit codes:
//
//	0 = consensus reached
//	1 = consensus failed (including rejected proposals)
//	2 = chain invalid
//	3 = internal error
func runSessionCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		pkg         string
		userID      int64
		sessionID   string
		outDir      string
		proposeURL  string
		executeURL  string
		verifyURL   string
		token       string
		profileName string
		otlp        string
	)
	cmd.StringVar(&pkg, "package", "", "Package to purchase (REQUIRED)")
	cmd.Int64Var(&userID, "user", 0, "User ID (REQUIRED)")
	cmd.StringVar(&sessionID, "session", "", "Session ID (generated when omitted)")
	cmd.StringVar(&outDir, "out-dir", "", "Report output directory (default REPORT_OUT_DIR or .)")
	cmd.StringVar(&proposeURL, "propose-url", "", "Remote proposer base URL (in-process when omitted)")
	cmd.StringVar(&executeURL, "execute-url", "", "Remote executor base URL (in-process when omitted)")
	cmd.StringVar(&verifyURL, "verify-url", "", "Remote verifier base URL (in-process when omitted)")
	cmd.StringVar(&token, "token", "", "Bearer token for remote branches")
	cmd.StringVar(&profileName, "profile", "", "Deployment profile name (profiles/profile_<name>.yaml)")
	cmd.StringVar(&otlp, "otlp", "", "OTLP gRPC endpoint for telemetry (disabled when empty)")

	if err := cmd.Parse(args); err != nil {
		return 3
	}
	if pkg == "" || userID == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --package and --user are required")
		return 3
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	cfg := config.Load()
	if outDir == "" {
		outDir = cfg.OutDir
	}

	var prof *config.DeploymentProfile
	if profileName != "" {
		var err error
		prof, err = config.LoadProfile(profilesDir(), profileName)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 3
		}
		cfg.ApplyProfile(prof)
	}

	ctx := context.Background()

	var obs *observability.Provider
	if otlp != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = otlp
		obsCfg.Insecure = true
		var err error
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: telemetry init: %v\n", err)
			return 3
		}
		defer func() { _ = obs.Shutdown(context.Background()) }()
	}

	pipeline, err := buildPipeline(ctx, cfg, prof, obs, outDir, proposeURL, executeURL, verifyURL, token)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	rep, err := pipeline.Run(ctx, tribunal.Request{SessionID: sessionID, Package: pkg, UserID: userID})

	if rep != nil {
		printOutcome(stdout, rep)
	}

	switch {
	case err == nil:
		// Aggregate can detect tampering that no branch refused, e.g. a
		// remote branch returning a block whose hash does not match its
		// own payload. The status is authoritative, not the error.
		switch rep.Status {
		case session.StatusConsensusReached:
			return 0
		case session.StatusChainInvalid:
			return 2
		default:
			return 1
		}
	case isValidation(err):
		return 1
	case isIntegrity(err):
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
}

// profilesDir resolves the profile search directory, PROFILES_DIR or
// ./profiles.
func profilesDir() string {
	if dir := os.Getenv("PROFILES_DIR"); dir != "" {
		return dir
	}
	return "profiles"
}

func buildPipeline(ctx context.Context, cfg *config.Config, prof *config.DeploymentProfile, obs *observability.Provider, outDir, proposeURL, executeURL, verifyURL, token string) (*tribunal.Pipeline, error) {
	var (
		store session.Store
		err   error
	)
	if prof != nil && prof.Store.Backend != "" {
		store, err = session.NewStore(prof.Store.Backend, prof.Store.DSN)
	} else {
		store, err = session.NewStoreFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	writer, err := report.NewWriter(outDir)
	if err != nil {
		return nil, err
	}
	var arc report.Archive
	if prof != nil && prof.Archive.Backend != "" {
		arc, err = report.NewArchive(ctx, prof.Archive.Backend, prof.Archive.Bucket, prof.Archive.Dir)
	} else {
		arc, err = report.NewArchiveFromEnv(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("report archive: %w", err)
	}
	if arc != nil {
		writer = writer.WithArchive(arc)
	}

	branches, keys, err := buildBranches(cfg, proposeURL, executeURL, verifyURL, token)
	if err != nil {
		return nil, err
	}

	opts := []tribunal.PipelineOption{
		tribunal.WithTimeouts(tribunal.Timeouts{
			Propose: cfg.ProposeTimeout,
			Execute: cfg.ExecuteTimeout,
			Verify:  cfg.VerifyTimeout,
		}),
	}
	if len(keys) > 0 {
		opts = append(opts, tribunal.WithPublicKeys(keys))
	}
	if obs != nil {
		opts = append(opts, tribunal.WithObservability(obs))
	}
	return tribunal.NewPipeline(branches[0], branches[1], branches[2], store, writer, opts...), nil
}

// buildBranches assembles the three branches: remote clients for phases
// with a URL, in-process implementations otherwise. Returned keys map
// branch name to hex public key when local signing is configured.
func buildBranches(cfg *config.Config, proposeURL, executeURL, verifyURL, token string) ([3]tribunal.Branch, map[string]string, error) {
	var branches [3]tribunal.Branch
	keys := map[string]string{}

	var remote *client.BranchClient
	if proposeURL != "" || executeURL != "" || verifyURL != "" {
		var copts []client.Option
		if token != "" {
			copts = append(copts, client.WithToken(token))
		}
		remote = client.New(proposeURL, executeURL, verifyURL, copts...)
	}

	signerFor := func(branch proof.Branch) (*proof.Signer, error) {
		if cfg.MasterSeed == "" {
			return nil, nil
		}
		s, err := proof.NewSigner([]byte(cfg.MasterSeed), branch)
		if err != nil {
			return nil, err
		}
		keys[string(branch)] = hex.EncodeToString(s.PublicKey())
		return s, nil
	}

	cat := catalog.Default()

	if proposeURL != "" {
		branches[0] = remote
	} else {
		signer, err := signerFor(proof.BranchProposer)
		if err != nil {
			return branches, nil, err
		}
		var popts []tribunal.ProposerOption
		if signer != nil {
			popts = append(popts, tribunal.WithProposerSigner(signer))
		}
		if cfg.PolicyExpr != "" {
			popts = append(popts, tribunal.WithPolicy(cfg.PolicyExpr))
		}
		proposer, err := tribunal.NewProposer(cat, popts...)
		if err != nil {
			return branches, nil, err
		}
		branches[0] = proposer
	}

	if executeURL != "" {
		branches[1] = remote
	} else {
		signer, err := signerFor(proof.BranchExecutor)
		if err != nil {
			return branches, nil, err
		}
		var eopts []tribunal.ExecutorOption
		if signer != nil {
			eopts = append(eopts, tribunal.WithExecutorSigner(signer))
		}
		branches[1] = tribunal.NewExecutor(cat, payment.NewExecutorFromEnv(), nil, eopts...)
	}

	if verifyURL != "" {
		branches[2] = remote
	} else {
		signer, err := signerFor(proof.BranchVerifier)
		if err != nil {
			return branches, nil, err
		}
		var vopts []tribunal.VerifierOption
		if signer != nil {
			vopts = append(vopts, tribunal.WithVerifierSigner(signer))
		}
		branches[2] = tribunal.NewVerifier(buildOracle(cfg), vopts...)
	}

	return branches, keys, nil
}

func buildOracle(cfg *config.Config) oracle.Judge {
	switch cfg.OracleKind {
	case "rules":
		return oracle.NewRuleOracle()
	case "llm":
		if cfg.OracleURL == "" {
			return nil
		}
		return oracle.NewLLMOracle(oracle.LLMConfig{
			URL:     cfg.OracleURL,
			APIKey:  cfg.OracleAPIKey,
			Model:   cfg.OracleModel,
			Timeout: cfg.OracleTimeout,
		})
	default:
		return nil
	}
}

func printOutcome(w io.Writer, rep *report.Report) {
	_, _ = fmt.Fprintf(w, "Session:  %s\n", rep.SessionID)
	_, _ = fmt.Fprintf(w, "Status:   %s\n", rep.Status)
	_, _ = fmt.Fprintf(w, "Approvals: %d/3\n", rep.Approvals)
	for _, b := range rep.Branches {
		suffix := ""
		if b.Degraded {
			suffix = " (degraded)"
		}
		_, _ = fmt.Fprintf(w, "  %-9s %s%s\n", b.Branch+":", b.Participation, suffix)
	}
	if rep.FirstBreakIndex != nil {
		_, _ = fmt.Fprintf(w, "Chain break at block %d\n", *rep.FirstBreakIndex)
	}
	if rep.CompensationRequired {
		_, _ = fmt.Fprintln(w, "COMPENSATION REQUIRED: a real charge occurred without consensus")
	}
	for _, n := range rep.Notes {
		_, _ = fmt.Fprintf(w, "Note: %s\n", n)
	}
	_, _ = fmt.Fprintf(w, "Report:   %s\n", report.Filename(rep.SessionID))
}

func isValidation(err error) bool {
	var v *tribunal.ValidationError
	return errors.As(err, &v)
}

func isIntegrity(err error) bool {
	var c *tribunal.ChainIntegrityError
	return errors.As(err, &c)
}
