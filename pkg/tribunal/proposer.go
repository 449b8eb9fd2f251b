package tribunal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Soulfra/soulfra-sub004/pkg/catalog"
	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// requestSchema is the compiled-in JSON Schema for tribunal requests.
const requestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["session_id", "package", "user_id"],
	"properties": {
		"session_id": {"type": "string", "minLength": 1},
		"package": {"type": "string", "minLength": 1},
		"user_id": {"type": "integer", "minimum": 1}
	}
}`

// ProposerBranch validates the request and produces block 0. It fails
// closed: a malformed request still yields an auditable block with
// approved=false.
type ProposerBranch struct {
	singlePhase
	catalog *catalog.Catalog
	schema  *jsonschema.Schema
	policy  cel.Program
	signer  *proof.Signer
	clock   func() time.Time
	logger  *slog.Logger

	// policyBroken marks an expression that failed to compile; the gate
	// then fails closed.
	policyBroken bool
}

// ProposerOption configures a ProposerBranch.
type ProposerOption func(*ProposerBranch)

// WithProposerSigner makes the branch sign its blocks.
func WithProposerSigner(s *proof.Signer) ProposerOption {
	return func(p *ProposerBranch) { p.signer = s }
}

// WithProposerClock overrides the clock for testing.
func WithProposerClock(clock func() time.Time) ProposerOption {
	return func(p *ProposerBranch) { p.clock = clock }
}

// WithPolicy adds a CEL policy expression evaluated as an extra
// propose-time gate. The expression sees a `request` map; evaluation
// failure is a policy rejection, not a crash.
func WithPolicy(expr string) ProposerOption {
	return func(p *ProposerBranch) {
		prg, err := compilePolicy(expr)
		if err != nil {
			p.logger.Warn("policy expression rejected, treating all requests as policy failures", "error", err)
			p.policy = nil
			p.policyBroken = true
			return
		}
		p.policy = prg
	}
}

func compilePolicy(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

// NewProposer creates the proposer branch over the given package catalog.
func NewProposer(cat *catalog.Catalog, opts ...ProposerOption) (*ProposerBranch, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://tribunal.schemas.local/request.schema.json"
	if err := c.AddResource(url, strings.NewReader(requestSchema)); err != nil {
		return nil, fmt.Errorf("tribunal: load request schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tribunal: compile request schema: %w", err)
	}

	p := &ProposerBranch{
		catalog: cat,
		schema:  schema,
		clock:   time.Now,
		logger:  slog.Default().With("branch", "proposer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Propose produces block 0. approved = schema valid AND package known AND
// policy passes. The block is produced for every request, approved or
// not, so rejections stay auditable.
func (p *ProposerBranch) Propose(ctx context.Context, req Request) (proof.Block, error) {
	schemaValid, schemaReason := p.checkSchema(req)
	packageKnown := p.catalog.Known(req.Package)
	policyOK, policyReason := p.checkPolicy(req)

	approved := schemaValid && packageKnown && policyOK

	payload := map[string]any{
		"session_id":    req.SessionID,
		"package":       req.Package,
		"user_id":       req.UserID,
		"schema_valid":  schemaValid,
		"package_known": packageKnown,
		"policy_ok":     policyOK,
	}
	if !approved {
		reasons := make([]string, 0, 3)
		if !schemaValid {
			reasons = append(reasons, schemaReason)
		}
		if !packageKnown {
			reasons = append(reasons, fmt.Sprintf("unknown package %q", req.Package))
		}
		if !policyOK {
			reasons = append(reasons, policyReason)
		}
		payload["reject_reason"] = strings.Join(reasons, "; ")
		p.logger.InfoContext(ctx, "request rejected", "session_id", req.SessionID, "reason", payload["reject_reason"])
	}

	b, err := proof.NewBlock(0, proof.BranchProposer, payload, proof.GenesisHash, p.clock(), approved, false)
	if err != nil {
		return proof.Block{}, err
	}
	if p.signer != nil {
		p.signer.Sign(&b)
	}
	return b, nil
}

func (p *ProposerBranch) checkSchema(req Request) (bool, string) {
	doc := map[string]any{
		"session_id": req.SessionID,
		"package":    req.Package,
		"user_id":    req.UserID,
	}
	if err := p.schema.Validate(doc); err != nil {
		return false, fmt.Sprintf("schema: %v", err)
	}
	return true, ""
}

func (p *ProposerBranch) checkPolicy(req Request) (bool, string) {
	if p.policyBroken {
		return false, "policy: expression did not compile"
	}
	if p.policy == nil {
		return true, ""
	}
	out, _, err := p.policy.Eval(map[string]any{
		"request": map[string]any{
			"session_id": req.SessionID,
			"package":    req.Package,
			"user_id":    req.UserID,
		},
	})
	if err != nil {
		return false, fmt.Sprintf("policy: evaluation failed: %v", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, "policy: expression is not boolean"
	}
	if !ok {
		return false, "policy: expression denied request"
	}
	return true, ""
}
