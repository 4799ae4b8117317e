// Package ownerlock serializes mandate creation/replacement per owner.
// A single-process deployment uses the in-memory Locker; multi-replica
// deployments use the Redis variant so two replicas can never run a
// create/replace for the same owner concurrently.
package ownerlock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive per-owner scope. The returned release
// function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, ownerID string) (release func(), err error)
}

// Local is a process-local Locker.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the owner's lock is held.
func (l *Local) Acquire(ctx context.Context, ownerID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[ownerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[ownerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
