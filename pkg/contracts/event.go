package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes ledger events. The set is closed: payload decoding
// switches exhaustively on it and rejects anything else.
type EventType string

const (
	EventMandateCreated     EventType = "MANDATE_CREATED"
	EventMandateDeactivated EventType = "MANDATE_DEACTIVATED"
	EventViolationBlocked   EventType = "VIOLATION_BLOCKED"
	EventCommitmentRecorded EventType = "COMMITMENT_RECORDED"
)

// EventPayload is the tagged variant carried by a ledger event.
type EventPayload interface {
	EventType() EventType
}

// MandateCreatedPayload records a new mandate and its frozen rules.
type MandateCreatedPayload struct {
	MandateID  string       `json:"mandate_id"`
	Rules      MandateRules `json:"rules"`
	RulesHash  string       `json:"rules_hash"`
	ReplacesID string       `json:"replaces_id,omitempty"`
}

func (MandateCreatedPayload) EventType() EventType { return EventMandateCreated }

// MandateDeactivatedPayload records a mandate going inactive.
type MandateDeactivatedPayload struct {
	MandateID    string `json:"mandate_id"`
	Reason       string `json:"reason,omitempty"`
	SupersededBy string `json:"superseded_by,omitempty"`
}

func (MandateDeactivatedPayload) EventType() EventType { return EventMandateDeactivated }

// ViolationBlockedPayload records an enforcement breach.
type ViolationBlockedPayload struct {
	ViolationID   string          `json:"violation_id"`
	ViolationType ViolationType   `json:"violation_type"`
	Action        ViolationAction `json:"action"`
	Attempted     string          `json:"attempted_value"`
	Limit         string          `json:"limit_value"`
	TradeContext  string          `json:"trade_context,omitempty"`
}

func (ViolationBlockedPayload) EventType() EventType { return EventViolationBlocked }

// CommitmentRecordedPayload records a successful external attestation of a
// prior event. Commitment events are local bookkeeping and are themselves
// never submitted to the external ledger.
type CommitmentRecordedPayload struct {
	CommittedEventID string `json:"committed_event_id"`
	Signature        string `json:"signature"`
	Slot             uint64 `json:"slot"`
	Cluster          string `json:"cluster"`
}

func (CommitmentRecordedPayload) EventType() EventType { return EventCommitmentRecorded }

// DecodePayload interprets raw event data according to its type tag.
func DecodePayload(t EventType, raw json.RawMessage) (EventPayload, error) {
	switch t {
	case EventMandateCreated:
		var p MandateCreatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case EventMandateDeactivated:
		var p MandateDeactivatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case EventViolationBlocked:
		var p ViolationBlockedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case EventCommitmentRecorded:
		var p CommitmentRecordedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// ChainProof is the externally verifiable attestation attached to an event
// exactly once after the commitment transaction confirms.
type ChainProof struct {
	Signature   string    `json:"signature"`
	Slot        uint64    `json:"slot"`
	Cluster     string    `json:"cluster"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// MandateEvent is one immutable entry of the audit ledger. Events are
// appended, read, and enriched with a ChainProof exactly once; nothing else.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type MandateEvent struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// Sequence is per-owner and strictly increasing. It is folded into the
	// hash envelope so two events for one owner never hash identically.
	Sequence uint64 `json:"sequence"`

	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`

	// ContentHash is recomputable from the canonical envelope
	// (schema version, owner, sequence, type, payload, timestamp, prev hash).
	ContentHash string `json:"content_hash"`
	// PrevHash chains to the owner's previous event ("genesis" for the first).
	PrevHash string `json:"prev_hash"`

	MandateID         string `json:"mandate_id,omitempty"`
	PreviousMandateID string `json:"previous_mandate_id,omitempty"`
	ViolationID       string `json:"violation_id,omitempty"`

	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`

	// Proof is nil until the event is committed externally.
	Proof *ChainProof `json:"proof,omitempty"`
}

// Committed reports whether external proof has been attached.
func (e *MandateEvent) Committed() bool { return e.Proof != nil }
