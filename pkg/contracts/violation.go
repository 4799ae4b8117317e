package contracts

import "time"

// ViolationType categorizes a mandate breach.
type ViolationType string

const (
	ViolationDisallowedSymbol  ViolationType = "disallowed-symbol"
	ViolationDeltaOutOfBand    ViolationType = "delta-out-of-band"
	ViolationWrongDirection    ViolationType = "wrong-directionality"
	ViolationOvernightHold     ViolationType = "overnight-hold"
	ViolationDailyLossExceeded ViolationType = "daily-loss-exceeded"
)

// ViolationAction is what enforcement did about a breach.
type ViolationAction string

const (
	ActionBlocked ViolationAction = "blocked"
	ActionWarning ViolationAction = "warning"
)

// Violation records that a proposed trade breached the active mandate.
// Created atomically with the enforcement decision; immutable thereafter.
type Violation struct {
	ID        string          `json:"id"`
	MandateID string          `json:"mandate_id"`
	OwnerID   string          `json:"owner_id"`
	Type      ViolationType   `json:"type"`
	Attempted string          `json:"attempted_value"`
	Limit     string          `json:"limit_value"`
	Action    ViolationAction `json:"action"`

	// TradeContext is free-form caller context (symbol, strategy, order id).
	TradeContext string    `json:"trade_context,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// Proof-of-publication fields, set once the violation event is attested.
	ChainSignature string `json:"chain_signature,omitempty"`
	ChainReference string `json:"chain_reference,omitempty"`
}
