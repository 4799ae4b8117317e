package export

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/ledger"
)

type fakeSink struct {
	key  string
	data []byte
}

func (f *fakeSink) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.key = key
	f.data = data
	return "s3://test-bucket/" + key, nil
}

func seededLedger(t *testing.T, owner string, n int) *ledger.Ledger {
	t.Helper()
	lg := ledger.New(ledger.NewMemoryStore(), nil)
	for i := 0; i < n; i++ {
		_, err := lg.Append(context.Background(), owner, contracts.MandateDeactivatedPayload{
			MandateID: fmt.Sprintf("mnd-%d", i),
			Reason:    "revoked",
		}, ledger.AppendOptions{})
		require.NoError(t, err)
	}
	return lg
}

func TestExport_BuildsVerifiableBundle(t *testing.T) {
	lg := seededLedger(t, "owner-1", 3)
	ex := New(lg, nil, "evidence", nil)

	b, err := ex.Export(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, "owner-1", b.OwnerID)
	assert.Equal(t, uint64(1), b.StartSeq)
	assert.Equal(t, uint64(3), b.EndSeq)
	assert.Equal(t, 3, b.EntryCount)
	assert.Equal(t, b.Events[2].ContentHash, b.ChainHead)
	assert.NotEmpty(t, b.BundleHash)

	// Oldest first inside the bundle.
	for i, ev := range b.Events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}

	require.NoError(t, VerifyBundle(b))
}

func TestVerifyBundle_DetectsTampering(t *testing.T) {
	lg := seededLedger(t, "owner-1", 3)
	ex := New(lg, nil, "evidence", nil)

	b, err := ex.Export(context.Background(), "owner-1")
	require.NoError(t, err)

	tampered := *b
	events := make([]*contracts.MandateEvent, len(b.Events))
	for i, ev := range b.Events {
		cp := *ev
		events[i] = &cp
	}
	events[1].Payload = []byte(`{"mandate_id":"mnd-evil","reason":"revoked"}`)
	tampered.Events = events

	err = VerifyBundle(&tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestExport_EmptyOwnerFails(t *testing.T) {
	lg := ledger.New(ledger.NewMemoryStore(), nil)
	ex := New(lg, nil, "evidence", nil)

	_, err := ex.Export(context.Background(), "owner-nobody")
	assert.Error(t, err)
}

func TestUpload_WritesToSink(t *testing.T) {
	lg := seededLedger(t, "owner-1", 2)
	sink := &fakeSink{}
	ex := New(lg, sink, "evidence", nil)

	b, err := ex.Export(context.Background(), "owner-1")
	require.NoError(t, err)

	loc, err := ex.Upload(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "s3://test-bucket/evidence/owner-1/"))
	assert.Equal(t, fmt.Sprintf("evidence/owner-1/%s.json", b.BundleID), sink.key)
	assert.Contains(t, string(sink.data), b.BundleHash)
}

func TestUpload_NoSinkConfigured(t *testing.T) {
	lg := seededLedger(t, "owner-1", 1)
	ex := New(lg, nil, "evidence", nil)

	b, err := ex.Export(context.Background(), "owner-1")
	require.NoError(t, err)

	_, err = ex.Upload(context.Background(), b)
	assert.Error(t, err)
}
