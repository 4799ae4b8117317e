package violations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// MemoryStore is the in-memory violation Store for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	list []*contracts.Violation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, v *contracts.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.list = append(s.list, &cp)
	return nil
}

func (s *MemoryStore) CountSince(ctx context.Context, ownerID, mandateID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.list {
		if v.OwnerID != ownerID {
			continue
		}
		if mandateID != "" && v.MandateID != mandateID {
			continue
		}
		if v.CreatedAt.Before(since) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) ListByMandate(ctx context.Context, mandateID string) ([]*contracts.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Violation, 0)
	for _, v := range s.list {
		if v.MandateID == mandateID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
