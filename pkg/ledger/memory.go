package ledger

import (
	"context"
	"sync"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// MemoryStore is the in-memory Store used by tests and by single-process
// deployments that persist nothing locally.
type MemoryStore struct {
	mu      sync.RWMutex
	events  []*contracts.MandateEvent
	byID    map[string]*contracts.MandateEvent
	head    map[string]uint64 // owner -> latest sequence
	headsBy map[string]string // owner -> latest entry hash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*contracts.MandateEvent),
		head:    make(map[string]uint64),
		headsBy: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, e *contracts.MandateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	s.byID[cp.ID] = &cp
	s.head[cp.OwnerID] = cp.Sequence
	s.headsBy[cp.OwnerID] = cp.ContentHash
	return nil
}

func (s *MemoryStore) Head(ctx context.Context, ownerID string) (uint64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.head[ownerID]
	if !ok {
		return 0, GenesisHash, nil
	}
	return seq, s.headsBy[ownerID], nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.MandateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, contracts.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string, f Filter, p Page) ([]*contracts.MandateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*contracts.MandateEvent, 0)
	// Newest first: iterate backwards over insertion order.
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.OwnerID != ownerID {
			continue
		}
		if f.MandateID != "" && e.MandateID != f.MandateID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		matched = append(matched, e)
	}

	if p.Offset > 0 {
		if p.Offset >= len(matched) {
			return []*contracts.MandateEvent{}, nil
		}
		matched = matched[p.Offset:]
	}
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}

	out := make([]*contracts.MandateEvent, len(matched))
	for i, e := range matched {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) Uncommitted(ctx context.Context, ownerID string) ([]*contracts.MandateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*contracts.MandateEvent, 0)
	for _, e := range s.events {
		if e.Proof != nil {
			continue
		}
		if e.Type == contracts.EventCommitmentRecorded {
			continue
		}
		if ownerID != "" && e.OwnerID != ownerID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AttachProof(ctx context.Context, eventID string, proof contracts.ChainProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[eventID]
	if !ok {
		return contracts.ErrEventNotFound
	}
	if e.Proof != nil {
		return contracts.ErrAlreadyCommitted
	}
	p := proof
	e.Proof = &p
	return nil
}
