package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
	"github.com/Soulfra/soulfra-sub004/pkg/httpapi"
	"github.com/Soulfra/soulfra-sub004/pkg/payment"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/report"
	"github.com/Soulfra/soulfra-sub004/pkg/tribunal"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"tribunal"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	if code != 3 {
		t.Fatalf("exit = %d, want 3", code)
	}
	if !strings.Contains(stderr, "Unknown command") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "help")
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, cmd := range []string{"run", "serve", "verify", "health"} {
		if !strings.Contains(stdout, cmd) {
			t.Errorf("usage missing %q", cmd)
		}
	}
}

func TestRunMissingFlags(t *testing.T) {
	code, _, stderr := runCLI(t, "run")
	if code != 3 {
		t.Fatalf("exit = %d, want 3", code)
	}
	if !strings.Contains(stderr, "--package") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunConsensusReached(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("PAYMENT_GATEWAY_URL", "")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, stdout, stderr := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-s1", "--out-dir", dir)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout, "consensus_reached") {
		t.Errorf("stdout = %q", stdout)
	}

	rep, err := report.Load(filepath.Join(dir, report.Filename("cli-s1")))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if len(rep.Chain) != 3 {
		t.Errorf("chain length = %d, want 3", len(rep.Chain))
	}
}

func TestRunWithRuleOracle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_KIND", "rules")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, _, stderr := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-rules", "--out-dir", dir)
	if code != 0 {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, stderr)
	}

	rep, err := report.Load(filepath.Join(dir, report.Filename("cli-rules")))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var verdict string
	for _, b := range rep.Chain {
		if b.Branch == proof.BranchVerifier {
			verdict, _ = b.Payload["oracle_verdict"].(string)
		}
	}
	if verdict != "support" {
		t.Errorf("oracle_verdict = %q, want support", verdict)
	}
}

func TestRunRejectedRequest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, stdout, _ := runCLI(t, "run",
		"--package", "platinum", "--user", "42", "--session", "cli-s2", "--out-dir", dir)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stdout, "consensus_failed") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunWithSigningKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")
	t.Setenv("TRIBUNAL_MASTER_SEED", "cli-test-master-seed-0123456789ab")

	code, _, stderr := runCLI(t, "run",
		"--package", "free", "--user", "7", "--session", "cli-s3", "--out-dir", dir)
	if code != 0 {
		t.Fatalf("exit = %d (stderr: %s)", code, stderr)
	}

	path := filepath.Join(dir, report.Filename("cli-s3"))
	rep, err := report.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.PublicKeys) != 3 {
		t.Fatalf("public keys = %d, want 3", len(rep.PublicKeys))
	}
	for _, b := range rep.Chain {
		if b.Sig == "" {
			t.Errorf("block %d unsigned", b.Index)
		}
	}

	// Signed reports survive offline verification end to end.
	vcode, _, _ := runCLI(t, "verify", "--report", path)
	if vcode != 0 {
		t.Errorf("verify exit = %d, want 0", vcode)
	}
}

func TestRunAgainstRemoteBranches(t *testing.T) {
	proposer, err := tribunal.NewProposer(catalog.Default())
	if err != nil {
		t.Fatal(err)
	}
	svc := httpapi.NewBranchService(collocatedBranches{
		proposer: proposer,
		executor: tribunal.NewExecutor(catalog.Default(), payment.NewSimulator(), nil),
		verifier: tribunal.NewVerifier(nil),
	})
	ts := httptest.NewServer(httpapi.NewHandler(svc, httpapi.ServerConfig{}))
	defer ts.Close()

	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("REPORT_ARCHIVE", "")

	code, _, stderr := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-s4", "--out-dir", dir,
		"--propose-url", ts.URL, "--execute-url", ts.URL, "--verify-url", ts.URL)
	if code != 0 {
		t.Fatalf("exit = %d (stderr: %s)", code, stderr)
	}
}

func TestRunWithProfile(t *testing.T) {
	profDir := t.TempDir()
	profile := []byte(`
name: ci
oracle:
  kind: rules
store:
  backend: memory
timeouts:
  execute: 12s
`)
	if err := os.WriteFile(filepath.Join(profDir, "profile_ci.yaml"), profile, 0o644); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	t.Setenv("PROFILES_DIR", profDir)
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, _, stderr := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-prof", "--out-dir", dir,
		"--profile", "ci")
	if code != 0 {
		t.Fatalf("exit = %d (stderr: %s)", code, stderr)
	}

	rep, err := report.Load(filepath.Join(dir, report.Filename("cli-prof")))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var verdict string
	for _, b := range rep.Chain {
		if b.Branch == proof.BranchVerifier {
			verdict, _ = b.Payload["oracle_verdict"].(string)
		}
	}
	if verdict != "support" {
		t.Errorf("oracle_verdict = %q, want support from the profile's rule oracle", verdict)
	}

	if code, _, stderr := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--profile", "missing", "--out-dir", dir); code != 3 {
		t.Errorf("exit = %d, want 3 for an unknown profile (stderr: %s)", code, stderr)
	}
}

func TestRunForgedRemoteVerifier(t *testing.T) {
	// A remote verifier returning a block whose hash does not match its
	// own payload: linkage is intact, so nothing refuses the chain, but
	// aggregation must still close the session chain_invalid and the
	// CLI must exit 2.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpapi.ChainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chain request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, err := proof.NewBlock(len(req.Chain), proof.BranchVerifier,
			map[string]any{"oracle_verdict": "support"},
			req.Chain.Head(), time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC), true, false)
		if err != nil {
			t.Errorf("build block: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		b.Hash = strings.Repeat("d", 64)
		_ = json.NewEncoder(w).Encode(httpapi.PhaseResponse{Status: "ok", Branch: "verifier", Block: b})
	}))
	defer ts.Close()

	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, stdout, _ := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-forged", "--out-dir", dir,
		"--verify-url", ts.URL)
	if code != 2 {
		t.Fatalf("exit = %d, want 2 (stdout: %s)", code, stdout)
	}
	if !strings.Contains(stdout, "chain_invalid") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("REPORT_ARCHIVE", "")

	code, _, _ := runCLI(t, "run",
		"--package", "pro", "--user", "42", "--session", "cli-s5", "--out-dir", dir)
	if code != 0 {
		t.Fatalf("run exit = %d", code)
	}
	path := filepath.Join(dir, report.Filename("cli-s5"))

	t.Run("clean report passes", func(t *testing.T) {
		code, stdout, _ := runCLI(t, "verify", "--report", path)
		if code != 0 {
			t.Fatalf("exit = %d, want 0", code)
		}
		if !strings.Contains(stdout, "PASS") {
			t.Errorf("stdout = %q", stdout)
		}
	})

	t.Run("json output", func(t *testing.T) {
		code, stdout, _ := runCLI(t, "verify", "--report", path, "--json")
		if code != 0 {
			t.Fatalf("exit = %d", code)
		}
		var vr report.VerifyReport
		if err := json.Unmarshal([]byte(stdout), &vr); err != nil {
			t.Fatalf("not JSON: %v", err)
		}
		if !vr.Verified {
			t.Error("verified = false")
		}
	})

	t.Run("tampered report exits 2", func(t *testing.T) {
		rep, err := report.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		rep.Chain[1].Payload["amount_minor"] = 1
		data, _ := json.Marshal(rep)
		tampered := filepath.Join(dir, "tampered.json")
		if err := os.WriteFile(tampered, data, 0o644); err != nil {
			t.Fatal(err)
		}

		code, _, _ := runCLI(t, "verify", "--report", tampered)
		if code != 2 {
			t.Errorf("exit = %d, want 2", code)
		}
	})

	t.Run("missing report exits 3", func(t *testing.T) {
		code, _, _ := runCLI(t, "verify", "--report", filepath.Join(dir, "absent.json"))
		if code != 3 {
			t.Errorf("exit = %d, want 3", code)
		}
	})
}

func TestHealthCommand(t *testing.T) {
	proposer, err := tribunal.NewProposer(catalog.Default())
	if err != nil {
		t.Fatal(err)
	}
	svc := httpapi.NewBranchService(collocatedBranches{
		proposer: proposer,
		executor: tribunal.NewExecutor(catalog.Default(), payment.NewSimulator(), nil),
		verifier: tribunal.NewVerifier(nil),
	})
	ts := httptest.NewServer(httpapi.NewHandler(svc, httpapi.ServerConfig{}))
	defer ts.Close()

	code, stdout, _ := runCLI(t, "health", "--url", ts.URL)
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "OK") {
		t.Errorf("stdout = %q", stdout)
	}

	code, _, _ = runCLI(t, "health", "--url", "http://127.0.0.1:1")
	if code != 1 {
		t.Errorf("unreachable node: exit = %d, want 1", code)
	}
}
