package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the hard ceiling on one oracle consultation.
const DefaultTimeout = 10 * time.Second

const systemPrompt = `You are an advisory judge reviewing a token-purchase verification chain.
Reply with exactly one word on the first line: SUPPORT, OBJECT, or ABSTAIN.
On the second line, give a one-sentence rationale.
Object only if the summarized transaction looks inconsistent or abusive.`

// LLMOracle consults an OpenAI-compatible chat completion endpoint.
type LLMOracle struct {
	url        string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// LLMConfig configures an LLMOracle.
type LLMConfig struct {
	URL     string        // chat completions endpoint
	APIKey  string        // bearer token, optional for local endpoints
	Model   string        // model identifier
	Timeout time.Duration // hard timeout, DefaultTimeout when zero
}

// NewLLMOracle creates an oracle over an OpenAI-compatible endpoint.
func NewLLMOracle(cfg LLMConfig) *LLMOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LLMOracle{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "oracle"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Judge sends the chain summary for advisory review. It is called at most
// once per verification; the caller's context plus the configured timeout
// bound it, and every failure collapses to Abstain.
func (o *LLMOracle) Judge(ctx context.Context, summary ChainSummary) Judgment {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	sb, err := json.Marshal(summary)
	if err != nil {
		return Abstain(fmt.Sprintf("summary not serializable: %v", err), elapsed(start))
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(sb)},
		},
	})
	if err != nil {
		return Abstain(fmt.Sprintf("request marshal failed: %v", err), elapsed(start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return Abstain(fmt.Sprintf("request build failed: %v", err), elapsed(start))
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.WarnContext(ctx, "oracle unreachable, abstaining", "error", err)
		return Abstain(fmt.Sprintf("oracle unreachable: %v", err), elapsed(start))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		o.logger.WarnContext(ctx, "oracle returned non-200, abstaining", "status", resp.StatusCode)
		return Abstain(fmt.Sprintf("oracle status %d", resp.StatusCode), elapsed(start))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Abstain(fmt.Sprintf("oracle response unparsable: %v", err), elapsed(start))
	}
	if len(cr.Choices) == 0 {
		return Abstain("oracle returned no choices", elapsed(start))
	}

	verdict, rationale := parseVerdict(cr.Choices[0].Message.Content)
	return Judgment{Verdict: verdict, Rationale: rationale, LatencyMS: elapsed(start)}
}

// parseVerdict extracts the verdict keyword from the first line of the
// model's reply. Anything unrecognized is an abstention.
func parseVerdict(content string) (Verdict, string) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	head := strings.ToUpper(strings.TrimSpace(lines[0]))
	rationale := ""
	if len(lines) > 1 {
		rationale = strings.TrimSpace(lines[1])
	}

	switch {
	case strings.HasPrefix(head, "SUPPORT"):
		return VerdictSupport, rationale
	case strings.HasPrefix(head, "OBJECT"):
		return VerdictObject, rationale
	case strings.HasPrefix(head, "ABSTAIN"):
		return VerdictAbstain, rationale
	default:
		return VerdictAbstain, "unrecognized verdict: " + head
	}
}

func elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
