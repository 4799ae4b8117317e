// Package rules is the enforcement check: a pure function from (mandate,
// trade proposal, account state) to a decision. It performs no I/O and holds
// no state, so it is safe on every concurrent proposal path and testable
// without storage.
package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// Proposal is a trade about to be placed.
type Proposal struct {
	Symbol    string                   `json:"symbol"`
	Direction contracts.TradeDirection `json:"direction"`

	// Delta is the per-leg option delta; the band check compares |Delta|.
	Delta float64 `json:"delta"`

	// ProspectiveLossFraction is the additional loss this trade could
	// realize today, as a fraction of NAV.
	ProspectiveLossFraction float64 `json:"prospective_loss_fraction"`

	// Context is free-form caller detail carried onto any violation record.
	Context string `json:"context,omitempty"`
}

// AccountState is the live account snapshot supplied by the broker layer.
// The daily-loss check reads only this, never historical violation counts,
// so a tripped limit cannot be double-counted.
type AccountState struct {
	// DailyLossFraction is today's realized loss as a fraction of NAV.
	// Positive means losing.
	DailyLossFraction float64 `json:"daily_loss_fraction"`

	NetAssetValue float64 `json:"net_asset_value"`

	// Now is the broker clock reading, in the exchange's local time zone.
	Now time.Time `json:"now"`
}

// Finding is one rule breach. A proposal may collect several.
type Finding struct {
	Type      contracts.ViolationType
	Action    contracts.ViolationAction
	Attempted string
	Limit     string
}

// Result is the enforcement decision. Allowed is false when any finding
// blocks; warning findings are recorded but do not stop the trade.
type Result struct {
	Allowed  bool
	Findings []Finding
}

// Blocked returns only the findings that block.
func (r Result) Blocked() []Finding {
	out := make([]Finding, 0, len(r.Findings))
	for _, f := range r.Findings {
		if f.Action == contracts.ActionBlocked {
			out = append(out, f)
		}
	}
	return out
}

// Evaluate checks the proposal against every rule independently and returns
// all findings, not just the first. The engine is stateless per call: a
// tripped daily-loss limit blocks subsequent proposals only because the
// caller re-supplies the live account state each time.
func Evaluate(m *contracts.Mandate, p Proposal, a AccountState) Result {
	findings := make([]Finding, 0, 4)

	// 1. Symbol permitted.
	if !m.Rules.AllowsSymbol(p.Symbol) {
		findings = append(findings, Finding{
			Type:      contracts.ViolationDisallowedSymbol,
			Action:    contracts.ActionBlocked,
			Attempted: strings.ToUpper(strings.TrimSpace(p.Symbol)),
			Limit:     strings.Join(m.Rules.AllowedSymbols, ","),
		})
	}

	// 2. Directionality. Closing an existing position is always permitted;
	// the mandate constrains how positions are opened.
	if p.Direction.Opens() && p.Direction != m.Rules.Direction {
		findings = append(findings, Finding{
			Type:      contracts.ViolationWrongDirection,
			Action:    contracts.ActionBlocked,
			Attempted: string(p.Direction),
			Limit:     string(m.Rules.Direction),
		})
	}

	// 3. Delta band, direction-agnostic.
	if d := math.Abs(p.Delta); d < m.Rules.MinDelta || d > m.Rules.MaxDelta {
		action := contracts.ActionBlocked
		if !m.Rules.StrictDelta {
			action = contracts.ActionWarning
		}
		findings = append(findings, Finding{
			Type:      contracts.ViolationDeltaOutOfBand,
			Action:    action,
			Attempted: formatFloat(d),
			Limit:     fmt.Sprintf("%s..%s", formatFloat(m.Rules.MinDelta), formatFloat(m.Rules.MaxDelta)),
		})
	}

	// 4. Daily loss, from the live feed only.
	if prospective := a.DailyLossFraction + p.ProspectiveLossFraction; prospective >= m.Rules.MaxDailyLossPercent {
		findings = append(findings, Finding{
			Type:      contracts.ViolationDailyLossExceeded,
			Action:    contracts.ActionBlocked,
			Attempted: formatFloat(prospective),
			Limit:     formatFloat(m.Rules.MaxDailyLossPercent),
		})
	}

	// 5. Overnight: no new positions past the exit deadline.
	if m.Rules.NoOvernightPositions && p.Direction.Opens() && pastDeadline(a.Now, m.Rules.ExitDeadline) {
		findings = append(findings, Finding{
			Type:      contracts.ViolationOvernightHold,
			Action:    contracts.ActionBlocked,
			Attempted: a.Now.Format("15:04"),
			Limit:     m.Rules.ExitDeadline,
		})
	}

	allowed := true
	for _, f := range findings {
		if f.Action == contracts.ActionBlocked {
			allowed = false
			break
		}
	}
	return Result{Allowed: allowed, Findings: findings}
}

func pastDeadline(now time.Time, deadline string) bool {
	h, m, err := contracts.ParseClockTime(deadline)
	if err != nil {
		// An unparseable deadline on an overnight-restricted mandate fails
		// closed: treat every open as past the deadline.
		return true
	}
	return now.Hour()*60+now.Minute() >= h*60+m
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
