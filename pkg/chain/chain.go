// Package chain anchors ledger events to an external chain. Each
// uncommitted event becomes one signed memo transaction; the confirmed
// signature and slot come back as a ChainProof attached to the event,
// followed by a COMMITMENT_RECORDED bookkeeping entry.
//
// Commitment is best-effort by construction. A dead endpoint, a rejected
// transaction, or a missing keypair all degrade to per-event failure
// results that a later drain pass retries; nothing in this package can
// block the enforcement path.
package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/ledger"
	"github.com/covenantlabs/mandate/pkg/observability"
)

// Status classifies the outcome of one event's commitment attempt.
type Status string

const (
	// StatusCommitted means the memo confirmed and the proof is attached.
	StatusCommitted Status = "committed"

	// StatusAlreadyCommitted means a proof was present before or arrived
	// concurrently; the event needs no further work.
	StatusAlreadyCommitted Status = "already_committed"

	// StatusFailed means submission or attachment failed; the event stays
	// in the uncommitted queue for the next pass.
	StatusFailed Status = "failed"

	// StatusNotConfigured means no chain client or signer is wired.
	StatusNotConfigured Status = "not_configured"

	// StatusSkipped means the batch context was canceled before this
	// event's turn, or the event is commitment bookkeeping.
	StatusSkipped Status = "skipped"
)

// Result is the per-event outcome of a commitment pass.
type Result struct {
	EventID string
	Status  Status
	Proof   *contracts.ChainProof
	Err     error
}

// Config tunes the committer.
type Config struct {
	// Interval is the minimum spacing between consecutive submissions.
	// Public RPC endpoints rate-limit aggressively; the default 500ms
	// keeps a drain pass under typical limits.
	Interval time.Duration

	// SubmitTimeout bounds one submission including confirmation.
	SubmitTimeout time.Duration
}

// DefaultConfig returns the spacing and timeout defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      500 * time.Millisecond,
		SubmitTimeout: 30 * time.Second,
	}
}

// Committer drains uncommitted ledger events onto the chain, strictly
// sequentially and rate-spaced.
type Committer struct {
	ledger  *ledger.Ledger
	client  Client
	signer  Signer
	limiter *rate.Limiter
	cfg     Config
	obs     *observability.Provider
	logger  *slog.Logger
	clock   func() time.Time
}

// New creates a committer. client and signer may both be nil, which
// leaves the committer unconfigured: every attempt reports
// StatusNotConfigured and the audit trail simply accrues locally.
func New(lg *ledger.Ledger, client Client, signer Signer, cfg Config, obs *observability.Provider, logger *slog.Logger) *Committer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		ledger:  lg,
		client:  client,
		signer:  signer,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		cfg:     cfg,
		obs:     obs,
		logger:  logger.With("component", "chain"),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for testing.
func (c *Committer) WithClock(clock func() time.Time) *Committer {
	c.clock = clock
	return c
}

// Configured reports whether the committer has a chain client and a
// signing identity.
func (c *Committer) Configured() bool {
	return c.client != nil && c.signer != nil
}

// CommitOne submits a single event's memo and attaches the resulting
// proof. It never returns an error; failures are carried in the Result.
func (c *Committer) CommitOne(ctx context.Context, e *contracts.MandateEvent) Result {
	if !c.Configured() {
		return Result{EventID: e.ID, Status: StatusNotConfigured, Err: contracts.ErrNotConfigured}
	}
	if e.Committed() {
		return Result{EventID: e.ID, Status: StatusAlreadyCommitted, Proof: e.Proof}
	}
	if e.Type == contracts.EventCommitmentRecorded {
		return Result{EventID: e.ID, Status: StatusSkipped}
	}

	memo, err := BuildMemo(e)
	if err != nil {
		return c.failed(ctx, e, &contracts.SubmissionError{Stage: "sign", Err: err})
	}
	sig, err := c.signer.Sign(memo)
	if err != nil {
		return c.failed(ctx, e, &contracts.SubmissionError{Stage: "sign", Err: err})
	}

	// A batch cancellation must not abandon a memo that is already on
	// the wire: once submitted, the memo confirms externally no matter
	// what happens to the batch, so the proof write has to land too or
	// the next drain pass would attest the same event twice. The whole
	// submit-attach-record sequence therefore runs on a detached
	// context bounded only by the submit timeout.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SubmitTimeout)
	defer cancel()

	start := c.clock()
	receipt, err := c.client.SubmitMemo(opCtx, memo, sig, c.signer.PublicKey())
	elapsed := c.clock().Sub(start)
	if err != nil {
		if c.obs != nil {
			c.obs.RecordCommit(ctx, elapsed, err)
		}
		return c.failed(ctx, e, err)
	}

	proof := contracts.ChainProof{
		Signature:   receipt.Signature,
		Slot:        receipt.Slot,
		Cluster:     c.client.Cluster(),
		ConfirmedAt: c.clock().UTC(),
	}

	if err := c.ledger.AttachProof(opCtx, e.ID, proof); err != nil {
		if errors.Is(err, contracts.ErrAlreadyCommitted) {
			return Result{EventID: e.ID, Status: StatusAlreadyCommitted}
		}
		return c.failed(ctx, e, &contracts.SubmissionError{Stage: "confirm", Err: err})
	}

	// Bookkeeping only. The proof is durable at this point, so a failed
	// commitment event is logged and dropped rather than failing the
	// result and re-submitting the memo.
	_, err = c.ledger.Append(opCtx, e.OwnerID, contracts.CommitmentRecordedPayload{
		CommittedEventID: e.ID,
		Signature:        proof.Signature,
		Slot:             proof.Slot,
		Cluster:          proof.Cluster,
	}, ledger.AppendOptions{MandateID: e.MandateID})
	if err != nil {
		c.logger.Error("commitment bookkeeping append failed",
			"owner", e.OwnerID, "event", e.ID, "error", err)
	}

	if c.obs != nil {
		c.obs.RecordCommit(ctx, elapsed, nil,
			attribute.String("mandate.event_type", string(e.Type)))
	}
	c.logger.Info("event committed",
		"owner", e.OwnerID,
		"event", e.ID,
		"signature", proof.Signature,
		"slot", proof.Slot,
		"cluster", proof.Cluster)

	return Result{EventID: e.ID, Status: StatusCommitted, Proof: &proof}
}

// CommitByID looks up one event and commits it. This is the retry entry
// point for operators and scheduled jobs holding only an event id; the
// idempotence guard on proof attachment makes re-invocation always safe.
func (c *Committer) CommitByID(ctx context.Context, eventID string) Result {
	e, err := c.ledger.Get(ctx, eventID)
	if err != nil {
		return Result{EventID: eventID, Status: StatusFailed, Err: err}
	}
	return c.CommitOne(ctx, e)
}

func (c *Committer) failed(ctx context.Context, e *contracts.MandateEvent, err error) Result {
	c.logger.Warn("event commitment failed",
		"owner", e.OwnerID, "event", e.ID, "error", err)
	return Result{EventID: e.ID, Status: StatusFailed, Err: err}
}

// CommitBatch drains the owner's uncommitted events (all owners when
// ownerID is empty), one submission at a time with the configured
// spacing. Every queued event gets a Result; a mid-batch failure moves
// on to the next event, and cancellation marks the remainder skipped.
func (c *Committer) CommitBatch(ctx context.Context, ownerID string) ([]Result, error) {
	events, err := c.ledger.Uncommitted(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	if !c.Configured() {
		// No spacing: nothing is being submitted, only reported.
		results := make([]Result, 0, len(events))
		for _, e := range events {
			results = append(results, Result{
				EventID: e.ID,
				Status:  StatusNotConfigured,
				Err:     contracts.ErrNotConfigured,
			})
		}
		return results, nil
	}

	results := make([]Result, 0, len(events))
	for i, e := range events {
		if ctx.Err() != nil {
			for _, rest := range events[i:] {
				results = append(results, Result{
					EventID: rest.ID,
					Status:  StatusSkipped,
					Err:     ctx.Err(),
				})
			}
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			for _, rest := range events[i:] {
				results = append(results, Result{
					EventID: rest.ID,
					Status:  StatusSkipped,
					Err:     err,
				})
			}
			break
		}
		results = append(results, c.CommitOne(ctx, e))
	}
	return results, nil
}

// Run drains every owner's queue on the given interval until the context
// is canceled. It is the background half of commit-on-write: events are
// appended synchronously, anchored asynchronously.
func (c *Committer) Run(ctx context.Context, drainInterval time.Duration) {
	if drainInterval <= 0 {
		drainInterval = time.Minute
	}
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	c.logger.Info("commit drain loop started",
		"interval", drainInterval, "configured", c.Configured())

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("commit drain loop stopped")
			return
		case <-ticker.C:
			results, err := c.CommitBatch(ctx, "")
			if err != nil {
				c.logger.Error("drain pass failed", "error", err)
				continue
			}
			if n := len(results); n > 0 {
				committed := 0
				for _, r := range results {
					if r.Status == StatusCommitted {
						committed++
					}
				}
				c.logger.Info("drain pass complete",
					"queued", n, "committed", committed)
			}
		}
	}
}
