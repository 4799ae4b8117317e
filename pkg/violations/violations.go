// Package violations persists mandate breaches and their ledger events.
// A violation and its VIOLATION_BLOCKED event are created atomically with
// the enforcement decision that produced it; the record never changes
// afterwards.
package violations

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/ledger"
	"github.com/covenantlabs/mandate/pkg/store"
)

// Store is the persistence contract for violation records.
type Store interface {
	Insert(ctx context.Context, v *contracts.Violation) error

	// CountSince counts the mandate's violations recorded at or after the
	// given time. Empty mandateID counts across all of the owner's mandates.
	CountSince(ctx context.Context, ownerID, mandateID string, since time.Time) (int, error)

	// ListByMandate returns the mandate's violations, newest first.
	ListByMandate(ctx context.Context, mandateID string) ([]*contracts.Violation, error)
}

// Recorder writes violations and their ledger events.
type Recorder struct {
	store  Store
	ledger *ledger.Ledger
	atomic store.Atomic
	logger *slog.Logger
	clock  func() time.Time
}

// New creates a Recorder. atomic binds the violation insert and its event
// append into one unit, mirroring the mandate service.
func New(st Store, lg *ledger.Ledger, atomic store.Atomic, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if atomic == nil {
		atomic = store.NoTx
	}
	return &Recorder{
		store:  st,
		ledger: lg,
		atomic: atomic,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Breach is what the rule engine found, ready to persist.
type Breach struct {
	Type         contracts.ViolationType
	Action       contracts.ViolationAction
	Attempted    string
	Limit        string
	TradeContext string
}

// Record persists the breach against the mandate and appends exactly one
// VIOLATION_BLOCKED event referencing the new violation id.
func (r *Recorder) Record(ctx context.Context, m *contracts.Mandate, b Breach) (*contracts.Violation, error) {
	v := &contracts.Violation{
		ID:           uuid.New().String(),
		MandateID:    m.ID,
		OwnerID:      m.OwnerID,
		Type:         b.Type,
		Attempted:    b.Attempted,
		Limit:        b.Limit,
		Action:       b.Action,
		TradeContext: b.TradeContext,
		CreatedAt:    r.clock().UTC(),
	}

	err := r.atomic(ctx, func(ctx context.Context) error {
		if err := r.store.Insert(ctx, v); err != nil {
			return contracts.Storage("violation insert", err)
		}
		_, err := r.ledger.Append(ctx, m.OwnerID, contracts.ViolationBlockedPayload{
			ViolationID:   v.ID,
			ViolationType: v.Type,
			Action:        v.Action,
			Attempted:     v.Attempted,
			Limit:         v.Limit,
			TradeContext:  v.TradeContext,
		}, ledger.AppendOptions{
			MandateID:   m.ID,
			ViolationID: v.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Warn("mandate violation recorded",
		"owner", m.OwnerID,
		"mandate", m.ID,
		"violation", v.ID,
		"type", string(v.Type),
		"action", string(v.Action))
	return v, nil
}

// CountSince is the read-only aggregate for monthly and summary views. It
// is never consulted by enforcement itself: the daily-loss check runs off
// live account state so historical counts cannot double-count.
func (r *Recorder) CountSince(ctx context.Context, ownerID, mandateID string, since time.Time) (int, error) {
	n, err := r.store.CountSince(ctx, ownerID, mandateID, since)
	if err != nil {
		return 0, contracts.Storage("violation count", err)
	}
	return n, nil
}

// ListByMandate returns the mandate's violations, newest first.
func (r *Recorder) ListByMandate(ctx context.Context, mandateID string) ([]*contracts.Violation, error) {
	vs, err := r.store.ListByMandate(ctx, mandateID)
	if err != nil {
		return nil, contracts.Storage("violation list", err)
	}
	return vs, nil
}
