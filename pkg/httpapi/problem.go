// Package httpapi exposes the three branch phases over HTTP with JSON
// bodies and RFC 7807 problem responses, plus a liveness probe. A node
// serving this API is one (or all) of the tribunal branches; the typed
// client in pkg/client is its counterpart.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem implements RFC 7807 (Problem Details for HTTP APIs). All error
// responses use this format.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	// BreakIndex carries the first broken block when the problem is a
	// chain integrity failure.
	BreakIndex *int `json:"break_index,omitempty"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, breakIndex *int) {
	p := &Problem{
		Type:       fmt.Sprintf("https://tribunal.soulfra.dev/errors/%d", status),
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   r.URL.Path,
		TraceID:    w.Header().Get("X-Request-ID"),
		BreakIndex: breakIndex,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "Bad Request", detail, nil)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", detail, nil)
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSec int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSec))
	writeProblem(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded", nil)
}

func writeChainInvalid(w http.ResponseWriter, r *http.Request, breakIndex int, detail string) {
	writeProblem(w, r, http.StatusUnprocessableEntity, "Chain Integrity Failure", detail, &breakIndex)
}

func writeInternal(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", detail, nil)
}
