// Package export produces verifiable evidence bundles from the audit
// ledger. A bundle freezes an owner's event range, its chain head, and a
// bundle hash so a recipient can check integrity offline without access
// to the database.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/covenantlabs/mandate/pkg/canonical"
	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/ledger"
)

// BundleVersion identifies the bundle format.
const BundleVersion = "1.0.0"

// Bundle is an exportable, self-verifying slice of an owner's ledger.
type Bundle struct {
	BundleID   string                    `json:"bundle_id"`
	Version    string                    `json:"version"`
	CreatedAt  time.Time                 `json:"created_at"`
	OwnerID    string                    `json:"owner_id"`
	StartSeq   uint64                    `json:"start_sequence"`
	EndSeq     uint64                    `json:"end_sequence"`
	EntryCount int                       `json:"entry_count"`
	Events     []*contracts.MandateEvent `json:"events"`
	ChainHead  string                    `json:"chain_head"`
	BundleHash string                    `json:"bundle_hash"`
}

// Sink stores a serialized bundle and returns its location.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// Exporter builds and ships evidence bundles.
type Exporter struct {
	ledger *ledger.Ledger
	sink   Sink
	prefix string
	logger *slog.Logger
	clock  func() time.Time
}

// New creates an exporter. sink may be nil when bundles are only built
// in-process (API downloads).
func New(lg *ledger.Ledger, sink Sink, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		ledger: lg,
		sink:   sink,
		prefix: prefix,
		logger: logger.With("component", "export"),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export verifies the owner's chain and freezes it into a bundle,
// oldest event first. A broken chain aborts the export; evidence from a
// tampered ledger is worse than no evidence.
func (e *Exporter) Export(ctx context.Context, ownerID string) (*Bundle, error) {
	if err := e.ledger.VerifyChain(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("chain verification failed for %s: %w", ownerID, err)
	}

	events, err := e.ledger.History(ctx, ownerID, ledger.Filter{}, ledger.Page{})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("owner %s has no events", ownerID)
	}

	// History is newest first; bundles read oldest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	b := &Bundle{
		BundleID:   uuid.New().String(),
		Version:    BundleVersion,
		CreatedAt:  e.clock().UTC(),
		OwnerID:    ownerID,
		StartSeq:   events[0].Sequence,
		EndSeq:     events[len(events)-1].Sequence,
		EntryCount: len(events),
		Events:     events,
		ChainHead:  events[len(events)-1].ContentHash,
	}

	hash, err := canonical.Hash(b.Events)
	if err != nil {
		return nil, fmt.Errorf("bundle hash: %w", err)
	}
	b.BundleHash = hash

	return b, nil
}

// Upload serializes the bundle canonically and writes it to the sink.
func (e *Exporter) Upload(ctx context.Context, b *Bundle) (string, error) {
	if e.sink == nil {
		return "", fmt.Errorf("no export sink configured")
	}
	data, err := canonical.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("serialize bundle: %w", err)
	}
	key := fmt.Sprintf("%s/%s/%s.json", e.prefix, b.OwnerID, b.BundleID)
	loc, err := e.sink.Put(ctx, key, data)
	if err != nil {
		return "", err
	}
	e.logger.Info("evidence bundle exported",
		"owner", b.OwnerID,
		"bundle", b.BundleID,
		"events", b.EntryCount,
		"location", loc)
	return loc, nil
}

// VerifyBundle checks a bundle's integrity offline: the bundle hash,
// every event's content hash, and the chain links between events.
func VerifyBundle(b *Bundle) error {
	if len(b.Events) == 0 {
		return fmt.Errorf("bundle is empty")
	}

	hash, err := canonical.Hash(b.Events)
	if err != nil {
		return fmt.Errorf("bundle hash: %w", err)
	}
	if hash != b.BundleHash {
		return fmt.Errorf("bundle hash mismatch")
	}

	for i, ev := range b.Events {
		recomputed, err := ledger.ComputeEventHash(ev)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if recomputed != ev.ContentHash {
			return fmt.Errorf("event %s content hash mismatch", ev.ID)
		}
		if i > 0 && ev.PrevHash != b.Events[i-1].ContentHash {
			return fmt.Errorf("chain broken at sequence %d", ev.Sequence)
		}
	}

	if b.ChainHead != b.Events[len(b.Events)-1].ContentHash {
		return fmt.Errorf("chain head mismatch")
	}
	return nil
}
