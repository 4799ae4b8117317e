package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

func TestSQLStore_HeadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT sequence, content_hash FROM mandate_events").
		WithArgs("owner-1").
		WillReturnError(errSQLNoRows())

	store := NewSQLStore(db)
	seq, hash, err := store.Head(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if seq != 0 || hash != GenesisHash {
		t.Errorf("empty owner must start at genesis, got %d %s", seq, hash)
	}
}

func TestSQLStore_InsertFailureSurfacesAsStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT sequence, content_hash FROM mandate_events").
		WithArgs("owner-1").
		WillReturnError(errors.New("connection refused"))

	l := New(NewSQLStore(db), nil)
	_, err = l.Append(context.Background(), "owner-1", testPayload("mnd-1"), AppendOptions{})
	if !contracts.IsStorage(err) {
		t.Errorf("backing store failure must surface as StorageError, got %v", err)
	}
}

func TestSQLStore_AttachProofAlreadyCommitted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Update matches nothing because proof is already set.
	mock.ExpectExec("UPDATE mandate_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The follow-up existence check finds the committed event.
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "sequence", "event_type", "payload", "ts", "content_hash",
		"prev_hash", "mandate_id", "previous_mandate_id", "violation_id",
		"actor_id", "actor_role", "chain_signature", "chain_slot", "chain_cluster", "confirmed_at",
	}).AddRow("evt-1", "owner-1", 1, "MANDATE_CREATED", "{}", now, "sha256:aa",
		GenesisHash, "mnd-1", "", "", "system", "system", "sig", 42, "devnet", now)
	mock.ExpectQuery("SELECT .* FROM mandate_events WHERE id").
		WithArgs("evt-1").
		WillReturnRows(rows)

	store := NewSQLStore(db)
	err = store.AttachProof(context.Background(), "evt-1", contracts.ChainProof{Signature: "sig"})
	if !errors.Is(err, contracts.ErrAlreadyCommitted) {
		t.Errorf("expected ErrAlreadyCommitted, got %v", err)
	}
}

func TestSQLStore_AttachProofUnknownEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE mandate_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM mandate_events WHERE id").
		WithArgs("ghost").
		WillReturnError(errSQLNoRows())

	store := NewSQLStore(db)
	err = store.AttachProof(context.Background(), "ghost", contracts.ChainProof{Signature: "sig"})
	if !errors.Is(err, contracts.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func errSQLNoRows() error {
	// sqlmock forwards raw errors; database/sql's sentinel keeps scan
	// behavior identical to a real driver.
	return sql.ErrNoRows
}
