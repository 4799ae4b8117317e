// Package mandate owns mandate records and their lifecycle. Rules are
// frozen at creation; the only transitions are deactivation and replacement,
// both recorded through the event ledger in the same atomic unit as the
// mandate write.
package mandate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/covenantlabs/mandate/pkg/canonical"
	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/ledger"
	"github.com/covenantlabs/mandate/pkg/mandate/ownerlock"
	"github.com/covenantlabs/mandate/pkg/store"
)

// Store is the persistence contract for mandate records.
type Store interface {
	Insert(ctx context.Context, m *contracts.Mandate) error

	// Get returns the mandate by id, or contracts.ErrMandateNotFound.
	Get(ctx context.Context, id string) (*contracts.Mandate, error)

	// GetActive returns the owner's active mandate, or
	// contracts.ErrNoActiveMandate.
	GetActive(ctx context.Context, ownerID string) (*contracts.Mandate, error)

	// SetInactive flips is_active to false. Returns false when the mandate
	// was already inactive.
	SetInactive(ctx context.Context, id string) (bool, error)

	// ListByOwner returns all of the owner's mandates, newest first.
	// History stays queryable forever; nothing is ever deleted.
	ListByOwner(ctx context.Context, ownerID string) ([]*contracts.Mandate, error)
}

// CreateOptions modifies Create behavior.
type CreateOptions struct {
	// Replace permits superseding an existing active mandate. Without it,
	// Create fails when one is active.
	Replace bool
}

// Service coordinates mandate lifecycle: validation, the per-owner critical
// section, the atomic mandate+events write, and the fail-closed cache.
type Service struct {
	store  Store
	ledger *ledger.Ledger
	locks  ownerlock.Locker
	atomic store.Atomic
	logger *slog.Logger
	clock  func() time.Time

	cache lastKnownCache
}

// New creates a mandate Service. atomic binds the mandate write and its
// ledger events into one unit; pass store.SQLAtomic(db) for SQL backends or
// store.NoTx for memory.
func New(st Store, lg *ledger.Ledger, locks ownerlock.Locker, atomic store.Atomic, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = ownerlock.NewLocal()
	}
	if atomic == nil {
		atomic = store.NoTx
	}
	return &Service{
		store:  st,
		ledger: lg,
		locks:  locks,
		atomic: atomic,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create validates rules and persists a new active mandate for the owner.
// When opts.Replace is set and a prior active mandate exists, the prior one
// is deactivated and both the MANDATE_DEACTIVATED and MANDATE_CREATED events
// are appended in the same atomic unit as the mandate writes.
func (s *Service) Create(ctx context.Context, ownerID string, rules contracts.MandateRules, opts CreateOptions) (*contracts.Mandate, error) {
	if ownerID == "" {
		return nil, &contracts.ValidationError{Field: "owner_id", Reason: "required"}
	}
	normalized, err := validateRules(rules)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("mandate create: %w", err)
	}
	defer release()

	prior, err := s.store.GetActive(ctx, ownerID)
	if err != nil && !errors.Is(err, contracts.ErrNoActiveMandate) {
		return nil, contracts.Storage("mandate get active", err)
	}
	if prior != nil && !opts.Replace {
		return nil, contracts.ErrActiveMandateExists
	}

	rulesHash, err := canonical.Hash(normalized)
	if err != nil {
		return nil, err
	}
	m := &contracts.Mandate{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Rules:       normalized,
		IsActive:    true,
		CreatedAt:   s.clock().UTC(),
		ContentHash: rulesHash,
	}

	err = s.atomic(ctx, func(ctx context.Context) error {
		if prior != nil {
			flipped, err := s.store.SetInactive(ctx, prior.ID)
			if err != nil {
				return contracts.Storage("mandate deactivate prior", err)
			}
			if !flipped {
				return fmt.Errorf("mandate %s changed concurrently", prior.ID)
			}
		}
		if err := s.store.Insert(ctx, m); err != nil {
			return contracts.Storage("mandate insert", err)
		}

		if prior != nil {
			_, err := s.ledger.Append(ctx, ownerID, contracts.MandateDeactivatedPayload{
				MandateID:    prior.ID,
				Reason:       "superseded",
				SupersededBy: m.ID,
			}, ledger.AppendOptions{
				MandateID:         prior.ID,
				PreviousMandateID: prior.ID,
			})
			if err != nil {
				return err
			}
		}
		_, err := s.ledger.Append(ctx, ownerID, contracts.MandateCreatedPayload{
			MandateID:  m.ID,
			Rules:      m.Rules,
			RulesHash:  m.ContentHash,
			ReplacesID: priorID(prior),
		}, ledger.AppendOptions{
			MandateID:         m.ID,
			PreviousMandateID: priorID(prior),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.put(ownerID, m)
	s.logger.Info("mandate created",
		"owner", ownerID,
		"mandate", m.ID,
		"replaced", priorID(prior),
		"rules_hash", m.ContentHash)
	return m, nil
}

// Deactivate flips a mandate to inactive and records the event. It is
// idempotent: deactivating an inactive mandate is a no-op with no new event.
func (s *Service) Deactivate(ctx context.Context, mandateID, reason string) error {
	m, err := s.store.Get(ctx, mandateID)
	if err != nil {
		if errors.Is(err, contracts.ErrMandateNotFound) {
			return err
		}
		return contracts.Storage("mandate get", err)
	}
	if !m.IsActive {
		return nil
	}

	release, err := s.locks.Acquire(ctx, m.OwnerID)
	if err != nil {
		return fmt.Errorf("mandate deactivate: %w", err)
	}
	defer release()

	err = s.atomic(ctx, func(ctx context.Context) error {
		flipped, err := s.store.SetInactive(ctx, mandateID)
		if err != nil {
			return contracts.Storage("mandate set inactive", err)
		}
		if !flipped {
			// Lost the race to another deactivation; nothing to record.
			return nil
		}
		_, err = s.ledger.Append(ctx, m.OwnerID, contracts.MandateDeactivatedPayload{
			MandateID: mandateID,
			Reason:    reason,
		}, ledger.AppendOptions{MandateID: mandateID})
		return err
	})
	if err != nil {
		return err
	}

	s.cache.drop(m.OwnerID, mandateID)
	s.logger.Info("mandate deactivated", "owner", m.OwnerID, "mandate", mandateID, "reason", reason)
	return nil
}

// GetActive returns the owner's active mandate, or
// contracts.ErrNoActiveMandate. A successful load refreshes the fail-closed
// cache.
func (s *Service) GetActive(ctx context.Context, ownerID string) (*contracts.Mandate, error) {
	m, err := s.store.GetActive(ctx, ownerID)
	if err != nil {
		if errors.Is(err, contracts.ErrNoActiveMandate) {
			return nil, err
		}
		return nil, contracts.Storage("mandate get active", err)
	}
	s.cache.put(ownerID, m)
	return m, nil
}

// ActiveForEnforcement is the enforcement-path lookup. When the backing
// store is unreachable it falls back to the last successfully loaded
// mandate; with no cached mandate either, the error propagates and the
// caller blocks the proposal. Absence of rule state is never "no rules".
func (s *Service) ActiveForEnforcement(ctx context.Context, ownerID string) (*contracts.Mandate, error) {
	m, err := s.GetActive(ctx, ownerID)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, contracts.ErrNoActiveMandate) {
		return nil, err
	}
	if cached := s.cache.get(ownerID); cached != nil {
		s.logger.Warn("mandate store unreachable, using cached mandate",
			"owner", ownerID, "mandate", cached.ID, "error", err)
		return cached, nil
	}
	return nil, err
}

// History returns all of the owner's mandates, newest first.
func (s *Service) History(ctx context.Context, ownerID string) ([]*contracts.Mandate, error) {
	ms, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, contracts.Storage("mandate list", err)
	}
	return ms, nil
}

func priorID(m *contracts.Mandate) string {
	if m == nil {
		return ""
	}
	return m.ID
}

// validateRules normalizes and checks rule structure. Symbols are stored
// upper-case and deduplicated; order is preserved for the content hash.
func validateRules(r contracts.MandateRules) (contracts.MandateRules, error) {
	seen := make(map[string]bool)
	symbols := make([]string, 0, len(r.AllowedSymbols))
	for _, sym := range r.AllowedSymbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return r, &contracts.ValidationError{Field: "allowed_symbols", Reason: "at least one symbol required"}
	}
	r.AllowedSymbols = symbols

	switch r.Direction {
	case contracts.DirectionSellToOpen, contracts.DirectionBuyToOpen:
	case contracts.DirectionSellToClose, contracts.DirectionBuyToClose:
		return r, &contracts.ValidationError{Field: "direction", Reason: "mandate directionality must be an opening direction"}
	default:
		return r, &contracts.ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", r.Direction)}
	}

	if r.MinDelta < 0 || r.MaxDelta < 0 {
		return r, &contracts.ValidationError{Field: "delta_band", Reason: "deltas must be non-negative"}
	}
	if r.MinDelta > r.MaxDelta {
		return r, &contracts.ValidationError{Field: "delta_band", Reason: "min_delta exceeds max_delta"}
	}
	if r.MaxDelta > 1 {
		return r, &contracts.ValidationError{Field: "delta_band", Reason: "max_delta exceeds 1.0"}
	}
	if r.MaxDailyLossPercent <= 0 || r.MaxDailyLossPercent > 1 {
		return r, &contracts.ValidationError{Field: "max_daily_loss_percent", Reason: "must be in (0, 1]"}
	}
	if r.NoOvernightPositions {
		if r.ExitDeadline == "" {
			return r, &contracts.ValidationError{Field: "exit_deadline", Reason: "required when no_overnight_positions is set"}
		}
		if _, _, err := contracts.ParseClockTime(r.ExitDeadline); err != nil {
			return r, &contracts.ValidationError{Field: "exit_deadline", Reason: err.Error()}
		}
	}
	if w := r.TradingWindow; w != nil {
		if _, _, err := contracts.ParseClockTime(w.Start); err != nil {
			return r, &contracts.ValidationError{Field: "trading_window.start", Reason: err.Error()}
		}
		if _, _, err := contracts.ParseClockTime(w.End); err != nil {
			return r, &contracts.ValidationError{Field: "trading_window.end", Reason: err.Error()}
		}
	}
	return r, nil
}
