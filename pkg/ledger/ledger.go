// Package ledger is the append-only, hash-chained audit ledger of mandate
// lifecycle, violation, and commitment events. It exclusively owns the
// append/read path for events; MandateStore, ViolationRecorder, and the
// chain committer all write through it.
//
// Each event carries a content hash computed over a canonical (RFC 8785)
// envelope of (schema version, owner, sequence, type, payload, timestamp,
// previous hash). The per-owner sequence makes the hash input unique even
// for events sharing a timestamp, and the previous-hash link makes the
// owner's history a verifiable chain.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/covenantlabs/mandate/pkg/auth"
	"github.com/covenantlabs/mandate/pkg/canonical"
	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/schema"
)

// GenesisHash anchors the first event of every owner's chain.
const GenesisHash = "genesis"

// ErrChainBroken reports a failed chain verification.
var ErrChainBroken = errors.New("hash chain is broken")

// Filter narrows history queries.
type Filter struct {
	MandateID string
	Type      contracts.EventType
}

// Page bounds history queries. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Store is the persistence contract for events. Implementations must treat
// inserted events as immutable except for the one-time proof attachment.
type Store interface {
	// Insert persists a fully formed event.
	Insert(ctx context.Context, e *contracts.MandateEvent) error

	// Head returns the owner's latest sequence and entry hash, or (0,
	// GenesisHash) when the owner has no events.
	Head(ctx context.Context, ownerID string) (uint64, string, error)

	// Get returns the event with the given id, or contracts.ErrEventNotFound.
	Get(ctx context.Context, id string) (*contracts.MandateEvent, error)

	// List returns the owner's events newest first.
	List(ctx context.Context, ownerID string, f Filter, p Page) ([]*contracts.MandateEvent, error)

	// Uncommitted returns events without proof, oldest first, excluding
	// COMMITMENT_RECORDED bookkeeping events. Empty ownerID means all owners.
	Uncommitted(ctx context.Context, ownerID string) ([]*contracts.MandateEvent, error)

	// AttachProof sets proof fields exactly once. Returns
	// contracts.ErrAlreadyCommitted when proof is already present.
	AttachProof(ctx context.Context, eventID string, proof contracts.ChainProof) error
}

// AppendOptions carries the optional references and actor attribution of an
// append.
type AppendOptions struct {
	MandateID         string
	PreviousMandateID string
	ViolationID       string
	ActorID           string
	ActorRole         string
}

// Ledger serializes appends per owner and computes the hash chain.
type Ledger struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	owner map[string]*sync.Mutex
}

// New creates a Ledger over the given store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		logger: logger,
		clock:  time.Now,
		owner:  make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) ownerLock(ownerID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.owner[ownerID]
	if !ok {
		m = &sync.Mutex{}
		l.owner[ownerID] = m
	}
	return m
}

// Append validates, hashes, and persists one event. Appends for distinct
// owners proceed concurrently; within an owner they are serialized so the
// chain order is total.
func (l *Ledger) Append(ctx context.Context, ownerID string, payload contracts.EventPayload, opts AppendOptions) (*contracts.MandateEvent, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ledger: owner id required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode payload: %w", err)
	}
	eventType := payload.EventType()
	if err := schema.ValidatePayload(eventType, raw); err != nil {
		return nil, err
	}

	actorID, actorRole := opts.ActorID, opts.ActorRole
	if actorID == "" {
		p := auth.PrincipalOrSystem(ctx)
		actorID, actorRole = p.ID, p.Role
	}

	lock := l.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	seq, head, err := l.store.Head(ctx, ownerID)
	if err != nil {
		return nil, contracts.Storage("ledger head", err)
	}

	e := &contracts.MandateEvent{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Sequence:          seq + 1,
		Type:              eventType,
		Payload:           raw,
		Timestamp:         l.clock().UTC(),
		PrevHash:          head,
		MandateID:         opts.MandateID,
		PreviousMandateID: opts.PreviousMandateID,
		ViolationID:       opts.ViolationID,
		ActorID:           actorID,
		ActorRole:         actorRole,
	}
	e.ContentHash, err = ComputeEventHash(e)
	if err != nil {
		return nil, err
	}

	if err := l.store.Insert(ctx, e); err != nil {
		return nil, contracts.Storage("ledger insert", err)
	}

	l.logger.Info("event appended",
		"owner", ownerID,
		"type", string(eventType),
		"sequence", e.Sequence,
		"hash", e.ContentHash)
	return e, nil
}

// History returns the owner's events newest first.
func (l *Ledger) History(ctx context.Context, ownerID string, f Filter, p Page) ([]*contracts.MandateEvent, error) {
	events, err := l.store.List(ctx, ownerID, f, p)
	if err != nil {
		return nil, contracts.Storage("ledger list", err)
	}
	return events, nil
}

// Get returns one event by id.
func (l *Ledger) Get(ctx context.Context, eventID string) (*contracts.MandateEvent, error) {
	e, err := l.store.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, contracts.ErrEventNotFound) {
			return nil, err
		}
		return nil, contracts.Storage("ledger get", err)
	}
	return e, nil
}

// Uncommitted returns the queue the chain committer drains: events without
// proof, oldest first. Commitment bookkeeping events are excluded so the
// queue can never feed itself.
func (l *Ledger) Uncommitted(ctx context.Context, ownerID string) ([]*contracts.MandateEvent, error) {
	events, err := l.store.Uncommitted(ctx, ownerID)
	if err != nil {
		return nil, contracts.Storage("ledger uncommitted", err)
	}
	return events, nil
}

// AttachProof sets an event's external proof exactly once. A second call
// returns contracts.ErrAlreadyCommitted; retrying callers treat that as a
// no-op success.
func (l *Ledger) AttachProof(ctx context.Context, eventID string, proof contracts.ChainProof) error {
	err := l.store.AttachProof(ctx, eventID, proof)
	switch err {
	case nil:
		l.logger.Info("proof attached", "event", eventID, "slot", proof.Slot, "cluster", proof.Cluster)
		return nil
	case contracts.ErrAlreadyCommitted, contracts.ErrEventNotFound:
		return err
	default:
		return contracts.Storage("ledger attach proof", err)
	}
}

// VerifyChain walks the owner's chain oldest first, checking previous-hash
// continuity and recomputing every content hash.
func (l *Ledger) VerifyChain(ctx context.Context, ownerID string) error {
	events, err := l.store.List(ctx, ownerID, Filter{}, Page{})
	if err != nil {
		return contracts.Storage("ledger list", err)
	}
	// List is newest first; walk backwards.
	expectedPrev := GenesisHash
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.PrevHash != expectedPrev {
			return fmt.Errorf("%w: sequence %d has prev_hash %s, expected %s",
				ErrChainBroken, e.Sequence, e.PrevHash, expectedPrev)
		}
		computed, err := ComputeEventHash(e)
		if err != nil {
			return fmt.Errorf("%w: sequence %d: %v", ErrChainBroken, e.Sequence, err)
		}
		if computed != e.ContentHash {
			return fmt.Errorf("%w: sequence %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, e.Sequence, computed, e.ContentHash)
		}
		expectedPrev = e.ContentHash
	}
	return nil
}

// hashEnvelope is the versioned hash input. Any external verifier holding an
// event can rebuild this envelope and recompute the hash.
type hashEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	OwnerID       string          `json:"owner_id"`
	Sequence      uint64          `json:"sequence"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     string          `json:"timestamp"`
	PrevHash      string          `json:"prev_hash"`
}

// ComputeEventHash returns the canonical content hash of an event.
func ComputeEventHash(e *contracts.MandateEvent) (string, error) {
	env := hashEnvelope{
		SchemaVersion: schema.Version,
		OwnerID:       e.OwnerID,
		Sequence:      e.Sequence,
		Type:          string(e.Type),
		Payload:       e.Payload,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:      e.PrevHash,
	}
	hash, err := canonical.Hash(env)
	if err != nil {
		return "", fmt.Errorf("ledger: hash envelope: %w", err)
	}
	return hash, nil
}
