package proof

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func testTime() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
}

func TestHashDeterminism(t *testing.T) {
	payload := map[string]any{"package": "pro", "user_id": 1}
	b1, err := NewBlock(0, BranchProposer, payload, GenesisHash, testTime(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := NewBlock(0, BranchProposer, map[string]any{"user_id": 1, "package": "pro"}, GenesisHash, testTime(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	if b1.Hash != b2.Hash {
		t.Fatalf("hash differs for identical inputs: %s vs %s", b1.Hash, b2.Hash)
	}
	if len(b1.Hash) != 64 {
		t.Fatalf("expected 64-char hex digest, got %q", b1.Hash)
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	b := Block{
		Index:     0,
		Branch:    BranchProposer,
		Payload:   map[string]any{"zeta": 1, "alpha": 2, "mid": 3},
		PrevHash:  GenesisHash,
		Timestamp: testTime(),
	}
	raw, err := EncodeBlock(b)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	if strings.Contains(s, " ") || strings.Contains(s, "\n") {
		t.Fatalf("canonical form contains whitespace: %q", s)
	}
	a, m, z := strings.Index(s, `"alpha"`), strings.Index(s, `"mid"`), strings.Index(s, `"zeta"`)
	if !(a < m && m < z) {
		t.Fatalf("payload keys not sorted: %q", s)
	}
}

func TestEncodeNoHTMLEscaping(t *testing.T) {
	b := Block{
		Branch:    BranchProposer,
		Payload:   map[string]any{"note": "a<b&c>d"},
		PrevHash:  GenesisHash,
		Timestamp: testTime(),
	}
	raw, err := EncodeBlock(b)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "a<b&c>d") {
		t.Fatalf("HTML characters were escaped: %q", string(raw))
	}
}

func TestEncodeNFCNormalization(t *testing.T) {
	// "é" precomposed (U+00E9) vs decomposed (e + U+0301)
	precomposed := map[string]any{"name": "café"}
	decomposed := map[string]any{"name": "café"}

	h1, err := HashBlock(Block{Branch: BranchProposer, Payload: precomposed, PrevHash: GenesisHash, Timestamp: testTime()})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashBlock(Block{Branch: BranchProposer, Payload: decomposed, PrevHash: GenesisHash, Timestamp: testTime()})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("NFC-equivalent payloads hash differently")
	}
}

func TestEncodeRejectsNaN(t *testing.T) {
	b := Block{
		Branch:    BranchExecutor,
		Payload:   map[string]any{"amount": math.NaN()},
		PrevHash:  GenesisHash,
		Timestamp: testTime(),
	}
	_, err := EncodeBlock(b)
	if err == nil {
		t.Fatal("expected EncodingError for NaN payload")
	}
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncodingError, got %T", err)
	}
}

func TestTimestampPrecisionMatters(t *testing.T) {
	base := testTime()
	h1, _ := HashBlock(Block{Branch: BranchProposer, PrevHash: GenesisHash, Timestamp: base})
	h2, _ := HashBlock(Block{Branch: BranchProposer, PrevHash: GenesisHash, Timestamp: base.Add(time.Nanosecond)})
	if h1 == h2 {
		t.Fatal("nanosecond timestamp change did not change hash")
	}
}
