package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

func testPayload(id string) contracts.MandateDeactivatedPayload {
	return contracts.MandateDeactivatedPayload{MandateID: id, Reason: "revoked"}
}

func newTestLedger() *Ledger {
	return New(NewMemoryStore(), nil)
}

func TestAppend_ChainsEvents(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	e1, err := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{MandateID: "mnd-1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	e2, err := l.Append(ctx, "owner-1", testPayload("mnd-2"), AppendOptions{MandateID: "mnd-2"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if e1.PrevHash != GenesisHash {
		t.Errorf("first event should chain to genesis, got %s", e1.PrevHash)
	}
	if e2.PrevHash != e1.ContentHash {
		t.Errorf("second event should chain to first")
	}
	if e1.Sequence != 1 || e2.Sequence != 2 {
		t.Errorf("sequences wrong: %d, %d", e1.Sequence, e2.Sequence)
	}
}

func TestAppend_IndependentChainsPerOwner(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	a, _ := l.Append(ctx, "owner-a", testPayload("m1"), AppendOptions{})
	b, _ := l.Append(ctx, "owner-b", testPayload("m2"), AppendOptions{})

	if a.Sequence != 1 || b.Sequence != 1 {
		t.Errorf("owners must have independent sequences: %d, %d", a.Sequence, b.Sequence)
	}
	if a.PrevHash != GenesisHash || b.PrevHash != GenesisHash {
		t.Error("both owners should start at genesis")
	}
}

func TestAppend_HashIsRecomputable(t *testing.T) {
	l := newTestLedger()
	e, err := l.Append(context.Background(), "owner-1", testPayload("mnd-1"), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	recomputed, err := ComputeEventHash(e)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if recomputed != e.ContentHash {
		t.Errorf("hash not recomputable: %s vs %s", recomputed, e.ContentHash)
	}
}

func TestAppend_SameTimestampDistinctHashes(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l := newTestLedger().WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	e1, _ := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{})
	e2, _ := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{})

	if !e1.Timestamp.Equal(e2.Timestamp) {
		t.Fatal("test requires identical timestamps")
	}
	if e1.ContentHash == e2.ContentHash {
		t.Error("sequence must disambiguate equal timestamps in the hash input")
	}
}

func TestAppend_RejectsInvalidPayload(t *testing.T) {
	l := newTestLedger()
	_, err := l.Append(context.Background(), "owner-1",
		contracts.MandateDeactivatedPayload{}, AppendOptions{}) // missing mandate_id
	if err == nil {
		t.Fatal("expected schema rejection")
	}
}

func TestHistory_FiltersAndOrder(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, _ = l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{MandateID: "mnd-1"})
	_, _ = l.Append(ctx, "owner-1", testPayload("mnd-2"), AppendOptions{MandateID: "mnd-2"})
	_, _ = l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{MandateID: "mnd-1"})

	all, err := l.History(ctx, "owner-1", Filter{}, Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Sequence != 3 {
		t.Errorf("history must be newest first, got sequence %d first", all[0].Sequence)
	}

	filtered, _ := l.History(ctx, "owner-1", Filter{MandateID: "mnd-1"}, Page{})
	if len(filtered) != 2 {
		t.Errorf("expected 2 events for mnd-1, got %d", len(filtered))
	}

	paged, _ := l.History(ctx, "owner-1", Filter{}, Page{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].Sequence != 2 {
		t.Errorf("expected page [seq 2], got %+v", paged)
	}
}

func TestUncommitted_ExcludesCommitmentEvents(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	e, _ := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{})
	_, _ = l.Append(ctx, "owner-1", contracts.CommitmentRecordedPayload{
		CommittedEventID: e.ID,
		Signature:        "sig",
		Slot:             1,
		Cluster:          "devnet",
	}, AppendOptions{})

	queue, err := l.Uncommitted(ctx, "")
	if err != nil {
		t.Fatalf("uncommitted: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != e.ID {
		t.Errorf("commitment bookkeeping events must not enter the commit queue: %+v", queue)
	}
}

func TestAttachProof_ExactlyOnce(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	e, _ := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{})

	proof := contracts.ChainProof{Signature: "sig", Slot: 42, Cluster: "devnet", ConfirmedAt: time.Now()}
	if err := l.AttachProof(ctx, e.ID, proof); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	err := l.AttachProof(ctx, e.ID, proof)
	if !errors.Is(err, contracts.ErrAlreadyCommitted) {
		t.Errorf("second attach must return ErrAlreadyCommitted, got %v", err)
	}

	queue, _ := l.Uncommitted(ctx, "")
	if len(queue) != 0 {
		t.Errorf("committed event must leave the queue, got %d", len(queue))
	}
}

func TestAttachProof_UnknownEvent(t *testing.T) {
	l := newTestLedger()
	err := l.AttachProof(context.Background(), "nope", contracts.ChainProof{Signature: "s"})
	if !errors.Is(err, contracts.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestVerifyChain(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, "owner-1", testPayload("mnd-1"), AppendOptions{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.VerifyChain(ctx, "owner-1"); err != nil {
		t.Fatalf("chain should verify: %v", err)
	}

	// Tamper with a stored payload and verify the chain breaks.
	store.mu.Lock()
	store.events[2].Payload = []byte(`{"mandate_id":"tampered"}`)
	store.mu.Unlock()

	err := l.VerifyChain(ctx, "owner-1")
	if !errors.Is(err, ErrChainBroken) {
		t.Errorf("tampered chain must fail verification, got %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	l := newTestLedger()
	e, _ := l.Append(context.Background(), "owner-1", contracts.ViolationBlockedPayload{
		ViolationID:   "vio-1",
		ViolationType: contracts.ViolationDeltaOutOfBand,
		Action:        contracts.ActionBlocked,
		Attempted:     "0.42",
		Limit:         "0.20..0.35",
	}, AppendOptions{ViolationID: "vio-1"})

	decoded, err := contracts.DecodePayload(e.Type, e.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := decoded.(contracts.ViolationBlockedPayload)
	if !ok {
		t.Fatalf("wrong variant %T", decoded)
	}
	if p.ViolationType != contracts.ViolationDeltaOutOfBand {
		t.Errorf("payload lost its type: %+v", p)
	}
}
