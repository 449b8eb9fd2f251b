package report

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/session"
)

var testSeed = []byte("report-test-master-seed-0123456789")

func sampleChain(t *testing.T, signed bool) (proof.Chain, map[string]string) {
	t.Helper()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	keys := map[string]string{}

	var chain proof.Chain
	specs := []struct {
		branch  proof.Branch
		payload map[string]any
	}{
		{proof.BranchProposer, map[string]any{"session_id": "s1", "package": "pro", "user_id": 7}},
		{proof.BranchExecutor, map[string]any{"reference": "sim-s1", "method": "gateway"}},
		{proof.BranchVerifier, map[string]any{"oracle_verdict": "support"}},
	}
	for i, s := range specs {
		b, err := proof.NewBlock(i, s.branch, s.payload, chain.Head(), ts.Add(time.Duration(i)*time.Second), true, false)
		require.NoError(t, err)
		if signed {
			signer, err := proof.NewSigner(testSeed, s.branch)
			require.NoError(t, err)
			signer.Sign(&b)
			keys[string(s.branch)] = hex.EncodeToString(signer.PublicKey())
		}
		chain, err = chain.Append(b)
		require.NoError(t, err)
	}
	return chain, keys
}

func sampleReport(t *testing.T, signed bool) *Report {
	chain, keys := sampleChain(t, signed)
	return &Report{
		SessionID:  "s1",
		Request:    session.Request{Package: "pro", UserID: 7},
		Status:     session.StatusConsensusReached,
		Chain:      chain,
		ChainValid: true,
		Approvals:  3,
		Branches: []BranchReport{
			{Branch: "proposer", Participation: "approved"},
			{Branch: "executor", Participation: "approved"},
			{Branch: "verifier", Participation: "approved"},
		},
		PublicKeys: keys,
	}
}

func writeSample(t *testing.T, signed bool) string {
	t.Helper()
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	path, err := w.Write(context.Background(), sampleReport(t, signed))
	require.NoError(t, err)
	return path
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	path := writeSample(t, false)
	assert.Equal(t, "tribunal-proof-s1.json", filepath.Base(path))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, r.FormatVersion, "writer stamps the version")
	assert.False(t, r.CreatedAt.IsZero(), "writer stamps created_at")
	assert.Equal(t, session.StatusConsensusReached, r.Status)
	assert.Len(t, r.Chain, 3)
	assert.True(t, proof.Validate(r.Chain).Valid, "chain survives the round trip byte-exactly")
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	_, err = w.Write(context.Background(), sampleReport(t, false))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tribunal-proof-s1.json", entries[0].Name())
}

func TestVerifyFileCleanReport(t *testing.T) {
	vr, err := VerifyFile(writeSample(t, false))
	require.NoError(t, err)

	assert.True(t, vr.Verified)
	assert.False(t, vr.ChainInvalid)
	assert.Zero(t, vr.IssueCount)
	assert.Contains(t, vr.Summary, "PASS")
}

func TestVerifyFileSignedReport(t *testing.T) {
	vr, err := VerifyFile(writeSample(t, true))
	require.NoError(t, err)

	assert.True(t, vr.Verified)
	var sawSignatures bool
	for _, c := range vr.Checks {
		if c.Name == "signatures" {
			sawSignatures = true
			assert.True(t, c.Pass)
		}
	}
	assert.True(t, sawSignatures)
}

func TestVerifyFileDetectsTamper(t *testing.T) {
	path := writeSample(t, false)

	r, err := Load(path)
	require.NoError(t, err)
	r.Chain[1].Payload["reference"] = "forged"
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	vr, err := VerifyFile(path)
	require.NoError(t, err)

	assert.False(t, vr.Verified)
	assert.True(t, vr.ChainInvalid)

	var chainCheck CheckResult
	for _, c := range vr.Checks {
		if c.Name == "chain_integrity" {
			chainCheck = c
		}
	}
	assert.False(t, chainCheck.Pass)
	assert.Contains(t, chainCheck.Reason, "1", "break index is named")
}

func TestVerifyFileForgedSignature(t *testing.T) {
	path := writeSample(t, true)

	r, err := Load(path)
	require.NoError(t, err)
	// Swap in a signature from a different key; hash and chain remain
	// intact, only the attestation is wrong.
	rogue, err := proof.NewSigner([]byte("rogue-seed-abcdefghijklmnopqrstuv"), proof.BranchExecutor)
	require.NoError(t, err)
	rogue.Sign(&r.Chain[1])
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	vr, err := VerifyFile(path)
	require.NoError(t, err)

	assert.True(t, proof.Validate(r.Chain).Valid, "hashes still validate")
	assert.False(t, vr.Verified, "signature check catches the forgery")
	assert.False(t, vr.ChainInvalid, "a bad signature is not a chain break")
}

func TestVerifyFileUnsupportedFormat(t *testing.T) {
	path := writeSample(t, false)

	r, err := Load(path)
	require.NoError(t, err)
	r.FormatVersion = "2.0.0"
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	vr, err := VerifyFile(path)
	require.NoError(t, err)

	assert.False(t, vr.Verified)
	var versionCheck CheckResult
	for _, c := range vr.Checks {
		if c.Name == "format_version" {
			versionCheck = c
		}
	}
	assert.False(t, versionCheck.Pass)
}

func TestVerifyFileNonTerminalStatus(t *testing.T) {
	path := writeSample(t, false)

	r, err := Load(path)
	require.NoError(t, err)
	r.Status = session.StatusVerifying
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	vr, err := VerifyFile(path)
	require.NoError(t, err)
	assert.False(t, vr.Verified)
}

func TestVerifyFileMissing(t *testing.T) {
	_, err := VerifyFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestFileArchiveIdempotent(t *testing.T) {
	arc, err := NewFileArchive(t.TempDir())
	require.NoError(t, err)

	data := []byte(`{"session_id":"s1"}`)
	key1, err := arc.Store(context.Background(), data)
	require.NoError(t, err)
	key2, err := arc.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	got, err := arc.Get(context.Background(), key1)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
