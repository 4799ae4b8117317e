package mandate

import (
	"sync"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// lastKnownCache holds the last successfully loaded active mandate per
// owner. It exists only for the fail-closed enforcement path: when the
// backing store is unreachable, enforcement runs against the cached mandate
// instead of being unable to decide.
type lastKnownCache struct {
	mu sync.RWMutex
	m  map[string]*contracts.Mandate
}

func (c *lastKnownCache) put(ownerID string, m *contracts.Mandate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]*contracts.Mandate)
	}
	cp := *m
	c.m[ownerID] = &cp
}

func (c *lastKnownCache) get(ownerID string) *contracts.Mandate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.m[ownerID]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// drop removes the cached entry only if it is the given mandate, so a stale
// deactivation cannot evict a newer replacement.
func (c *lastKnownCache) drop(ownerID, mandateID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.m[ownerID]; ok && m.ID == mandateID {
		delete(c.m, ownerID)
	}
}
