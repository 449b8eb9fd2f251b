// Package client provides a typed HTTP client for remote tribunal
// branches. It satisfies the same branch contract as the in-process
// implementations, so the pipeline drives local and remote branches
// identically. Transport failures surface as BranchUnreachableError and
// count as abstention; a 422 problem becomes ChainIntegrityError with
// the break index the remote branch reported.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/httpapi"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/tribunal"
)

// DefaultTimeout bounds one branch HTTP call.
const DefaultTimeout = 15 * time.Second

// APIError is returned when a branch responds with a non-2xx status that
// is not a chain integrity failure.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tribunal api %d: %s: %s", e.Status, e.Title, e.Detail)
}

// BranchClient calls one remote branch node. Different phases may point
// at different nodes; leave a URL empty to mark the phase unserved.
type BranchClient struct {
	proposeURL string
	executeURL string
	verifyURL  string
	token      string
	httpc      *http.Client
}

// Option configures a BranchClient.
type Option func(*BranchClient)

// WithToken sets the bearer token sent on every call.
func WithToken(token string) Option {
	return func(c *BranchClient) { c.token = token }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *BranchClient) { c.httpc.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *BranchClient) { c.httpc = hc }
}

// New creates a client over per-phase base URLs. Each URL is the node's
// base address; the /tribunal/<phase> path is appended.
func New(proposeURL, executeURL, verifyURL string, opts ...Option) *BranchClient {
	c := &BranchClient{
		proposeURL: proposeURL,
		executeURL: executeURL,
		verifyURL:  verifyURL,
		httpc:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewSingle creates a client where one node serves all three phases.
func NewSingle(baseURL string, opts ...Option) *BranchClient {
	return New(baseURL, baseURL, baseURL, opts...)
}

// Propose calls the remote proposer.
func (c *BranchClient) Propose(ctx context.Context, req tribunal.Request) (proof.Block, error) {
	if c.proposeURL == "" {
		return proof.Block{}, tribunal.ErrUnsupportedPhase
	}
	body := httpapi.ProposeRequest{SessionID: req.SessionID, Package: req.Package, UserID: req.UserID}
	return c.phase(ctx, proof.BranchProposer, c.proposeURL+"/tribunal/propose", body)
}

// Execute calls the remote executor with the chain so far.
func (c *BranchClient) Execute(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	if c.executeURL == "" {
		return proof.Block{}, tribunal.ErrUnsupportedPhase
	}
	body := httpapi.ChainRequest{SessionID: sessionIDOf(chain), Chain: chain}
	return c.phase(ctx, proof.BranchExecutor, c.executeURL+"/tribunal/execute", body)
}

// Verify calls the remote verifier with the full chain.
func (c *BranchClient) Verify(ctx context.Context, chain proof.Chain) (proof.Block, error) {
	if c.verifyURL == "" {
		return proof.Block{}, tribunal.ErrUnsupportedPhase
	}
	body := httpapi.ChainRequest{SessionID: sessionIDOf(chain), Chain: chain}
	return c.phase(ctx, proof.BranchVerifier, c.verifyURL+"/tribunal/verify", body)
}

func (c *BranchClient) phase(ctx context.Context, branch proof.Branch, url string, body any) (proof.Block, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return proof.Block{}, fmt.Errorf("client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return proof.Block{}, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return proof.Block{}, &tribunal.BranchUnreachableError{Branch: branch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return proof.Block{}, c.decodeProblem(resp)
	}

	var pr httpapi.PhaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return proof.Block{}, fmt.Errorf("client: decode response: %w", err)
	}
	return pr.Block, nil
}

func (c *BranchClient) decodeProblem(resp *http.Response) error {
	var p httpapi.Problem
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return &APIError{Status: resp.StatusCode, Title: "Unreadable Error", Detail: err.Error()}
	}
	if resp.StatusCode == http.StatusUnprocessableEntity && p.BreakIndex != nil {
		return &tribunal.ChainIntegrityError{BreakIndex: *p.BreakIndex, Reason: p.Detail}
	}
	return &APIError{Status: p.Status, Title: p.Title, Detail: p.Detail}
}

// sessionIDOf recovers the session ID from block 0's payload for request
// correlation; it is advisory on the wire, the chain is authoritative.
func sessionIDOf(chain proof.Chain) string {
	if len(chain) == 0 {
		return ""
	}
	id, _ := chain[0].Payload["session_id"].(string)
	return id
}
