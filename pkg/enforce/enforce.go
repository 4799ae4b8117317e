// Package enforce is the trading gate. It binds mandate lookup, rule
// evaluation, and violation recording into a single Check call that the
// order path invokes before routing any proposal.
//
// The gate fails closed: if the active mandate cannot be resolved at all
// the proposal is blocked, never waved through. Recording failures are
// the one exception — a broken audit store must not take down trading,
// so the decision itself is still returned and the failure is logged.
package enforce

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/mandate"
	"github.com/covenantlabs/mandate/pkg/observability"
	"github.com/covenantlabs/mandate/pkg/rules"
	"github.com/covenantlabs/mandate/pkg/violations"
)

// Reasons attached to decisions that never reached rule evaluation.
const (
	ReasonNoActiveMandate    = "no active mandate"
	ReasonMandateUnavailable = "mandate unavailable"
)

// Decision is the gate's answer for one proposal.
type Decision struct {
	Allowed bool

	// Reason is set only when the proposal was blocked before rule
	// evaluation ran (no mandate, or mandate state unavailable).
	Reason string

	// MandateID is the mandate the proposal was evaluated against,
	// empty when none could be resolved.
	MandateID string

	Findings []rules.Finding

	// ViolationIDs are the persisted violation records, one per finding
	// in finding order, warnings included. Empty when recording failed.
	ViolationIDs []string
}

// Enforcer wires the mandate service, rule engine, and violation
// recorder behind one gate.
type Enforcer struct {
	mandates *mandate.Service
	recorder *violations.Recorder
	obs      *observability.Provider
	logger   *slog.Logger
}

// New creates the gate. obs may be nil; tracing and metrics are then
// skipped.
func New(mandates *mandate.Service, recorder *violations.Recorder, obs *observability.Provider, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		mandates: mandates,
		recorder: recorder,
		obs:      obs,
		logger:   logger.With("component", "enforce"),
	}
}

// Check evaluates one proposal for the owner and returns a decision.
// It always returns a decision: resolution and recording failures block
// or degrade, they never error out of the gate.
func (e *Enforcer) Check(ctx context.Context, ownerID string, p rules.Proposal, state rules.AccountState) *Decision {
	var span trace.Span
	if e.obs != nil {
		ctx, span = e.obs.StartSpan(ctx, "mandate.enforce.check",
			trace.WithAttributes(
				attribute.String("mandate.owner_id", ownerID),
				attribute.String("trade.symbol", p.Symbol),
				attribute.String("trade.direction", string(p.Direction)),
			))
		defer span.End()
	}

	m, err := e.mandates.ActiveForEnforcement(ctx, ownerID)
	if err != nil {
		d := &Decision{Allowed: false}
		switch {
		case errors.Is(err, contracts.ErrNoActiveMandate):
			d.Reason = ReasonNoActiveMandate
		default:
			d.Reason = ReasonMandateUnavailable
			e.logger.Error("mandate resolution failed, blocking proposal",
				"owner", ownerID, "error", err)
		}
		e.finish(ctx, span, d)
		return d
	}

	result := rules.Evaluate(m, p, state)
	d := &Decision{
		Allowed:   result.Allowed,
		MandateID: m.ID,
		Findings:  result.Findings,
	}

	// Warnings are persisted with action=warning just like blocking
	// findings; only the Allowed verdict distinguishes them.
	for _, f := range result.Findings {
		v, err := e.recorder.Record(ctx, m, violations.Breach{
			Type:         f.Type,
			Action:       f.Action,
			Attempted:    f.Attempted,
			Limit:        f.Limit,
			TradeContext: p.Context,
		})
		if err != nil {
			// The decision stands either way; losing the audit
			// record must not unblock or re-block the trade.
			e.logger.Error("violation recording failed",
				"owner", ownerID,
				"mandate", m.ID,
				"type", string(f.Type),
				"error", err)
			continue
		}
		d.ViolationIDs = append(d.ViolationIDs, v.ID)
		if e.obs != nil {
			e.obs.RecordViolation(ctx,
				attribute.String("mandate.violation_type", string(f.Type)),
				attribute.String("mandate.violation_action", string(f.Action)))
		}
	}

	e.finish(ctx, span, d)
	return d
}

func (e *Enforcer) finish(ctx context.Context, span trace.Span, d *Decision) {
	if e.obs == nil {
		return
	}
	e.obs.RecordEvaluation(ctx, d.Allowed)
	if span != nil {
		span.SetAttributes(attribute.Bool("mandate.allowed", d.Allowed))
		if !d.Allowed {
			span.SetStatus(codes.Ok, "blocked")
		}
	}
}
