package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func summary() ChainSummary {
	return ChainSummary{
		SessionID:  "s-1",
		Package:    "pro",
		UserID:     1,
		ChainValid: true,
		Blocks: []BlockSummary{
			{Index: 0, Branch: "proposer", Approved: true},
			{Index: 1, Branch: "executor", Approved: true},
		},
	}
}

func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		})
	}))
}

func TestLLMOracleSupport(t *testing.T) {
	srv := chatServer(t, "SUPPORT\nTransaction looks consistent.")
	defer srv.Close()

	o := NewLLMOracle(LLMConfig{URL: srv.URL, Model: "test"})
	j := o.Judge(context.Background(), summary())
	if j.Verdict != VerdictSupport {
		t.Fatalf("expected support, got %s (%s)", j.Verdict, j.Rationale)
	}
	if j.Rationale != "Transaction looks consistent." {
		t.Fatalf("unexpected rationale: %q", j.Rationale)
	}
	if j.LatencyMS < 0 {
		t.Fatal("negative latency")
	}
}

func TestLLMOracleObject(t *testing.T) {
	srv := chatServer(t, "OBJECT\nSuspicious downgrade.")
	defer srv.Close()

	o := NewLLMOracle(LLMConfig{URL: srv.URL, Model: "test"})
	if j := o.Judge(context.Background(), summary()); j.Verdict != VerdictObject {
		t.Fatalf("expected object, got %s", j.Verdict)
	}
}

func TestLLMOracleGarbledReplyAbstains(t *testing.T) {
	srv := chatServer(t, "MAYBE? hard to say")
	defer srv.Close()

	o := NewLLMOracle(LLMConfig{URL: srv.URL, Model: "test"})
	if j := o.Judge(context.Background(), summary()); j.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain on garbled reply, got %s", j.Verdict)
	}
}

func TestLLMOracleUnreachableAbstains(t *testing.T) {
	o := NewLLMOracle(LLMConfig{URL: "http://127.0.0.1:1/v1/chat/completions", Model: "test", Timeout: 500 * time.Millisecond})
	j := o.Judge(context.Background(), summary())
	if j.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain when unreachable, got %s", j.Verdict)
	}
	if j.Rationale == "" {
		t.Fatal("abstention should carry the failure reason")
	}
}

func TestLLMOracleTimeoutAbstains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	o := NewLLMOracle(LLMConfig{URL: srv.URL, Model: "test", Timeout: 100 * time.Millisecond})
	start := time.Now()
	j := o.Judge(context.Background(), summary())
	if j.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain on timeout, got %s", j.Verdict)
	}
	if time.Since(start) > time.Second {
		t.Fatal("oracle blocked past its timeout")
	}
}

func TestLLMOracleServerErrorAbstains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewLLMOracle(LLMConfig{URL: srv.URL, Model: "test"})
	if j := o.Judge(context.Background(), summary()); j.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain on 500, got %s", j.Verdict)
	}
}

func TestRuleOracleDeterministic(t *testing.T) {
	o := NewRuleOracle()
	j1 := o.Judge(context.Background(), summary())
	j2 := o.Judge(context.Background(), summary())
	if j1.Verdict != j2.Verdict || j1.Verdict != VerdictSupport {
		t.Fatalf("rule oracle not deterministic: %s vs %s", j1.Verdict, j2.Verdict)
	}
}

func TestRuleOracleObjectsToInvalidSummary(t *testing.T) {
	s := summary()
	s.ChainValid = false
	if j := NewRuleOracle().Judge(context.Background(), s); j.Verdict != VerdictObject {
		t.Fatalf("expected object, got %s", j.Verdict)
	}
}

func TestRuleOracleAbstainsOnDissent(t *testing.T) {
	s := summary()
	s.Blocks[1].Approved = false
	if j := NewRuleOracle().Judge(context.Background(), s); j.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain, got %s", j.Verdict)
	}
}
