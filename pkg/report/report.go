// Package report produces the durable audit record of a tribunal session:
// a JSON file carrying the full proof chain, per-branch participation,
// and the final verdict. A report is re-validatable offline with no
// network access, and can additionally be archived to content-addressed
// storage.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
	"github.com/Soulfra/soulfra-sub004/pkg/session"
)

// FormatVersion is the report schema version, gated by the offline
// verifier with a semver range.
const FormatVersion = "1.0.0"

// BranchReport records one branch's stance.
type BranchReport struct {
	Branch        string `json:"branch"`
	Participation string `json:"participation"` // approved | rejected | abstained
	Degraded      bool   `json:"degraded,omitempty"`
}

// Report is the persisted audit record for one session.
type Report struct {
	FormatVersion        string          `json:"format_version"`
	SessionID            string          `json:"session_id"`
	Request              session.Request `json:"request"`
	Status               session.Status  `json:"status"`
	Chain                proof.Chain     `json:"chain"`
	ChainValid           bool            `json:"chain_valid"`
	FirstBreakIndex      *int            `json:"first_break_index,omitempty"`
	Approvals            int             `json:"approvals"`
	Branches             []BranchReport  `json:"branches"`
	DegradedBranches     []string        `json:"degraded_branches,omitempty"`
	CompensationRequired bool            `json:"compensation_required,omitempty"`
	Notes                []string        `json:"notes,omitempty"`
	PublicKeys           map[string]string `json:"public_keys,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Filename returns the canonical report filename for a session.
func Filename(sessionID string) string {
	return fmt.Sprintf("tribunal-proof-%s.json", sessionID)
}

// Writer persists reports to a directory, optionally mirroring each one
// into a content-addressed archive.
type Writer struct {
	dir     string
	archive Archive
}

// NewWriter creates a report writer rooted at dir.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: ensure out dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// WithArchive mirrors every written report into arc.
func (w *Writer) WithArchive(arc Archive) *Writer {
	w.archive = arc
	return w
}

// Write persists the report atomically (tmp + rename) and returns the
// final path.
func (w *Writer) Write(ctx context.Context, r *Report) (string, error) {
	if r.FormatVersion == "" {
		r.FormatVersion = FormatVersion
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}

	final := filepath.Join(w.dir, Filename(r.SessionID))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("report: rename: %w", err)
	}

	if w.archive != nil {
		// The local file is the authoritative record; archival is best
		// effort and must not fail the session.
		if _, err := w.archive.Store(ctx, data); err != nil {
			slog.WarnContext(ctx, "report archival failed", "session_id", r.SessionID, "error", err)
		}
	}
	return final, nil
}

// Load reads a report file from disk.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %q: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: parse %q: %w", path, err)
	}
	return &r, nil
}
