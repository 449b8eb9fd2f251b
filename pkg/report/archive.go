package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Archive is content-addressed storage for report artifacts. Store
// persists data and returns its SHA-256 content hash.
type Archive interface {
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
}

// FileArchive is a filesystem-backed Archive.
type FileArchive struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileArchive creates a content-addressed archive under baseDir.
func NewFileArchive(baseDir string) (*FileArchive, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: ensure archive dir: %w", err)
	}
	return &FileArchive{baseDir: baseDir}, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (a *FileArchive) Store(ctx context.Context, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hash := contentHash(data)
	path := filepath.Join(a.baseDir, hash+".json")
	if _, err := os.Stat(path); err == nil {
		// Idempotent: content-addressed, already present.
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("report: archive write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("report: archive rename: %w", err)
	}
	return hash, nil
}

func (a *FileArchive) Get(ctx context.Context, hash string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.baseDir, hash+".json"))
	if err != nil {
		return nil, fmt.Errorf("report: archive get %q: %w", hash, err)
	}
	return data, nil
}
