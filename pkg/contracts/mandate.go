// Package contracts defines the shared data model of the mandate kernel:
// mandates, violations, ledger events, and the error taxonomy. All other
// packages depend on contracts; contracts depends on nothing internal.
package contracts

import (
	"fmt"
	"strings"
	"time"
)

// TradeDirection is the intent of an order leg.
type TradeDirection string

const (
	DirectionSellToOpen  TradeDirection = "SELL_TO_OPEN"
	DirectionBuyToOpen   TradeDirection = "BUY_TO_OPEN"
	DirectionSellToClose TradeDirection = "SELL_TO_CLOSE"
	DirectionBuyToClose  TradeDirection = "BUY_TO_CLOSE"
)

// Opens reports whether the direction opens a new position.
func (d TradeDirection) Opens() bool {
	return d == DirectionSellToOpen || d == DirectionBuyToOpen
}

// TradingWindow is an advisory intraday window. It is informational only;
// the engine never blocks on it.
type TradingWindow struct {
	Start string `json:"start"` // "HH:MM", exchange-local
	End   string `json:"end"`
}

// MandateRules is the frozen rule set of a mandate. Once the mandate is
// created these fields are never mutated; a rule change is a replacement.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type MandateRules struct {
	// AllowedSymbols is the closed set of permitted underlyings.
	AllowedSymbols []string `json:"allowed_symbols"`

	// Direction is the required directionality for opening trades.
	Direction TradeDirection `json:"direction"`

	// MinDelta and MaxDelta bound |delta| per leg.
	MinDelta float64 `json:"min_delta"`
	MaxDelta float64 `json:"max_delta"`

	// MaxDailyLossPercent is the daily loss ceiling as a fraction of NAV.
	MaxDailyLossPercent float64 `json:"max_daily_loss_percent"`

	// NoOvernightPositions forbids opening past ExitDeadline.
	NoOvernightPositions bool `json:"no_overnight_positions"`

	// ExitDeadline is "HH:MM" (exchange-local) after which opens are refused
	// when NoOvernightPositions is set.
	ExitDeadline string `json:"exit_deadline,omitempty"`

	// TradingWindow is advisory only.
	TradingWindow *TradingWindow `json:"trading_window,omitempty"`

	// StrictDelta controls whether a delta breach blocks (true, the default)
	// or is recorded as a warning.
	StrictDelta bool `json:"strict_delta"`
}

// AllowsSymbol reports whether sym is in the permitted set. Matching is
// case-insensitive; symbols are stored upper-case.
func (r MandateRules) AllowsSymbol(sym string) bool {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	for _, s := range r.AllowedSymbols {
		if strings.ToUpper(s) == sym {
			return true
		}
	}
	return false
}

// Mandate is an owner-authored, frozen rule set gating automated trading.
// At most one mandate per owner is active at a time. Mandates are never
// deleted; superseded mandates stay queryable with IsActive=false.
type Mandate struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Rules     MandateRules `json:"rules"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`

	// ContentHash is the canonical hash of Rules, filled at creation.
	ContentHash string `json:"content_hash,omitempty"`

	// Proof-of-publication fields, set once the creation event is attested.
	ChainSignature string `json:"chain_signature,omitempty"`
	ChainReference string `json:"chain_reference,omitempty"`
}

// ParseClockTime parses an "HH:MM" rule field into hour and minute.
func ParseClockTime(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return hour, minute, nil
}
