package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/store"
)

// SQLStore implements Store on database/sql. It works against both Postgres
// (lib/pq) and SQLite (modernc.org/sqlite); both accept $N placeholders.
//
// Timestamps are persisted as fixed-width RFC 3339 strings so the hash
// envelope can be recomputed byte-for-byte regardless of driver time
// precision and so the TEXT columns sort correctly.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const eventSchema = `
CREATE TABLE IF NOT EXISTS mandate_events (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	ts TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	mandate_id TEXT NOT NULL DEFAULT '',
	previous_mandate_id TEXT NOT NULL DEFAULT '',
	violation_id TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	chain_signature TEXT,
	chain_slot BIGINT,
	chain_cluster TEXT,
	confirmed_at TEXT,
	UNIQUE (owner_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_mandate_events_owner ON mandate_events (owner_id, sequence);
`

// Init creates the events table.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := store.Runner(ctx, s.db).ExecContext(ctx, eventSchema)
	return err
}

const eventColumns = `id, owner_id, sequence, event_type, payload, ts, content_hash, prev_hash,
	mandate_id, previous_mandate_id, violation_id, actor_id, actor_role,
	chain_signature, chain_slot, chain_cluster, confirmed_at`

func (s *SQLStore) Insert(ctx context.Context, e *contracts.MandateEvent) error {
	query := `
		INSERT INTO mandate_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULL, NULL, NULL, NULL)
	`
	_, err := store.Runner(ctx, s.db).ExecContext(ctx, query,
		e.ID, e.OwnerID, e.Sequence, string(e.Type), string(e.Payload),
		store.FormatTime(e.Timestamp), e.ContentHash, e.PrevHash,
		e.MandateID, e.PreviousMandateID, e.ViolationID, e.ActorID, e.ActorRole,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLStore) Head(ctx context.Context, ownerID string) (uint64, string, error) {
	query := `
		SELECT sequence, content_hash FROM mandate_events
		WHERE owner_id = $1 ORDER BY sequence DESC LIMIT 1
	`
	var seq uint64
	var hash string
	err := store.Runner(ctx, s.db).QueryRowContext(ctx, query, ownerID).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, GenesisHash, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("query head: %w", err)
	}
	return seq, hash, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*contracts.MandateEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM mandate_events WHERE id = $1`
	e, err := scanEvent(store.Runner(ctx, s.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrEventNotFound
	}
	return e, err
}

func (s *SQLStore) List(ctx context.Context, ownerID string, f Filter, p Page) ([]*contracts.MandateEvent, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + eventColumns + ` FROM mandate_events WHERE owner_id = $1`)
	args := []any{ownerID}
	if f.MandateID != "" {
		args = append(args, f.MandateID)
		fmt.Fprintf(&b, " AND mandate_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		fmt.Fprintf(&b, " AND event_type = $%d", len(args))
	}
	b.WriteString(" ORDER BY sequence DESC")
	if p.Limit > 0 {
		args = append(args, p.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if p.Offset > 0 {
		args = append(args, p.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := store.Runner(ctx, s.db).QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

func (s *SQLStore) Uncommitted(ctx context.Context, ownerID string) ([]*contracts.MandateEvent, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + eventColumns + ` FROM mandate_events
		WHERE chain_signature IS NULL AND event_type != $1`)
	args := []any{string(contracts.EventCommitmentRecorded)}
	if ownerID != "" {
		args = append(args, ownerID)
		fmt.Fprintf(&b, " AND owner_id = $%d", len(args))
	}
	b.WriteString(" ORDER BY owner_id, sequence ASC")

	rows, err := store.Runner(ctx, s.db).QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list uncommitted: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

func (s *SQLStore) AttachProof(ctx context.Context, eventID string, proof contracts.ChainProof) error {
	query := `
		UPDATE mandate_events
		SET chain_signature = $1, chain_slot = $2, chain_cluster = $3, confirmed_at = $4
		WHERE id = $5 AND chain_signature IS NULL
	`
	res, err := store.Runner(ctx, s.db).ExecContext(ctx, query,
		proof.Signature, proof.Slot, proof.Cluster,
		store.FormatTime(proof.ConfirmedAt), eventID)
	if err != nil {
		return fmt.Errorf("attach proof: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach proof rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: either the event is unknown or proof was already set.
	if _, err := s.Get(ctx, eventID); err != nil {
		return err
	}
	return contracts.ErrAlreadyCommitted
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*contracts.MandateEvent, error) {
	var (
		e           contracts.MandateEvent
		eventType   string
		payload     string
		ts          string
		sig         sql.NullString
		slot        sql.NullInt64
		cluster     sql.NullString
		confirmedAt sql.NullString
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Sequence, &eventType, &payload, &ts,
		&e.ContentHash, &e.PrevHash, &e.MandateID, &e.PreviousMandateID,
		&e.ViolationID, &e.ActorID, &e.ActorRole, &sig, &slot, &cluster, &confirmedAt)
	if err != nil {
		return nil, err
	}
	e.Type = contracts.EventType(eventType)
	e.Payload = []byte(payload)
	e.Timestamp, err = store.ParseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp on event %s: %w", e.ID, err)
	}
	if sig.Valid {
		proof := contracts.ChainProof{
			Signature: sig.String,
			Slot:      uint64(slot.Int64),
			Cluster:   cluster.String,
		}
		if confirmedAt.Valid {
			proof.ConfirmedAt, err = store.ParseTime(confirmedAt.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt confirmation time on event %s: %w", e.ID, err)
			}
		}
		e.Proof = &proof
	}
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*contracts.MandateEvent, error) {
	result := make([]*contracts.MandateEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
