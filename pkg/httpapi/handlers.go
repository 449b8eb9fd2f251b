package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/tribunal"
)

// ProposeRequest is the body of POST /tribunal/propose.
type ProposeRequest struct {
	SessionID string `json:"session_id"`
	Package   string `json:"package"`
	UserID    int64  `json:"user_id"`
}

// ChainRequest is the body of POST /tribunal/execute and /tribunal/verify.
type ChainRequest struct {
	SessionID string      `json:"session_id"`
	Chain     proof.Chain `json:"chain"`
}

// PhaseResponse is the success body of every branch endpoint.
type PhaseResponse struct {
	Status string      `json:"status"`
	Branch string      `json:"branch"`
	Block  proof.Block `json:"block"`
}

// BranchService serves one branch (or all three collocated) over HTTP.
type BranchService struct {
	branch tribunal.Branch
	logger *slog.Logger
}

// NewBranchService wraps a branch for HTTP serving.
func NewBranchService(branch tribunal.Branch) *BranchService {
	return &BranchService{
		branch: branch,
		logger: slog.Default().With("component", "httpapi"),
	}
}

// HandlePropose serves POST /tribunal/propose.
func (s *BranchService) HandlePropose(w http.ResponseWriter, r *http.Request) {
	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}

	b, err := s.branch.Propose(r.Context(), tribunal.Request{
		SessionID: req.SessionID,
		Package:   req.Package,
		UserID:    req.UserID,
	})
	if err != nil {
		s.writePhaseError(w, r, "propose", err)
		return
	}
	s.writeBlock(w, r, "proposer", b)
}

// HandleExecute serves POST /tribunal/execute.
func (s *BranchService) HandleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChain(w, r)
	if !ok {
		return
	}
	b, err := s.branch.Execute(r.Context(), req.Chain)
	if err != nil {
		s.writePhaseError(w, r, "execute", err)
		return
	}
	s.writeBlock(w, r, "executor", b)
}

// HandleVerify serves POST /tribunal/verify.
func (s *BranchService) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChain(w, r)
	if !ok {
		return
	}
	b, err := s.branch.Verify(r.Context(), req.Chain)
	if err != nil {
		s.writePhaseError(w, r, "verify", err)
		return
	}
	s.writeBlock(w, r, "verifier", b)
}

// HandleHealth serves GET /health. Liveness only: it makes no claims
// about downstream stores or gateways.
func (s *BranchService) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *BranchService) decodeChain(w http.ResponseWriter, r *http.Request) (ChainRequest, bool) {
	var req ChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body: "+err.Error())
		return ChainRequest{}, false
	}
	if len(req.Chain) == 0 {
		writeBadRequest(w, r, "chain is required")
		return ChainRequest{}, false
	}
	return req, true
}

func (s *BranchService) writeBlock(w http.ResponseWriter, r *http.Request, branch string, b proof.Block) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PhaseResponse{Status: "ok", Branch: branch, Block: b})
}

func (s *BranchService) writePhaseError(w http.ResponseWriter, r *http.Request, phase string, err error) {
	var integrity *tribunal.ChainIntegrityError
	if errors.As(err, &integrity) {
		s.logger.WarnContext(r.Context(), "chain integrity failure",
			"phase", phase, "break_index", integrity.BreakIndex, "request_id", GetRequestID(r.Context()))
		writeChainInvalid(w, r, integrity.BreakIndex, integrity.Reason)
		return
	}
	if errors.Is(err, tribunal.ErrUnsupportedPhase) {
		writeProblem(w, r, http.StatusNotFound, "Phase Not Served", "this node does not serve the "+phase+" phase", nil)
		return
	}
	s.logger.ErrorContext(r.Context(), "phase failed",
		"phase", phase, "error", err, "request_id", GetRequestID(r.Context()))
	writeInternal(w, r, err.Error())
}
