package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

// MemoryStore is the in-memory Store used in tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (m *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	m.clock = clock
	return m
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	if _, ok := m.sessions[s.ID]; ok {
		return ErrExists
	}
	cp := cloneSession(s)
	now := m.clock().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.Status == "" {
		cp.Status = StatusProposed
	}
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) AppendBlock(ctx context.Context, id string, b proof.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status.Closed() {
		return ErrClosed
	}
	if b.Index != len(s.Chain) {
		return fmt.Errorf("%w: block index %d, chain length %d", ErrWriteConflict, b.Index, len(s.Chain))
	}
	chain, err := s.Chain.Append(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	s.Chain = chain
	s.Status = statusAfterAppend(b.Index)
	s.UpdatedAt = m.clock().UTC()
	return nil
}

func (m *MemoryStore) Close(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !status.Closed() {
		return fmt.Errorf("session: %q is not a terminal status", status)
	}
	if s.Status.Closed() {
		return ErrClosed
	}
	s.Status = status
	s.UpdatedAt = m.clock().UTC()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Chain = make(proof.Chain, len(s.Chain))
	copy(cp.Chain, s.Chain)
	return &cp
}
