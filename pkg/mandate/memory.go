package mandate

import (
	"context"
	"sort"
	"sync"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// MemoryStore is the in-memory mandate Store for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*contracts.Mandate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*contracts.Mandate)}
}

func (s *MemoryStore) Insert(ctx context.Context, m *contracts.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, contracts.ErrMandateNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetActive(ctx context.Context, ownerID string) (*contracts.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.byID {
		if m.OwnerID == ownerID && m.IsActive {
			cp := *m
			return &cp, nil
		}
	}
	return nil, contracts.ErrNoActiveMandate
}

func (s *MemoryStore) SetInactive(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return false, contracts.ErrMandateNotFound
	}
	if !m.IsActive {
		return false, nil
	}
	m.IsActive = false
	return true, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*contracts.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Mandate, 0)
	for _, m := range s.byID {
		if m.OwnerID == ownerID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
