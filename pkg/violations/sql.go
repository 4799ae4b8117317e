package violations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/store"
)

// SQLStore implements Store on database/sql (Postgres or SQLite).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const violationSchema = `
CREATE TABLE IF NOT EXISTS violations (
	id TEXT PRIMARY KEY,
	mandate_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	violation_type TEXT NOT NULL,
	attempted_value TEXT NOT NULL,
	limit_value TEXT NOT NULL,
	action TEXT NOT NULL,
	trade_context TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	chain_signature TEXT,
	chain_reference TEXT
);
CREATE INDEX IF NOT EXISTS idx_violations_owner ON violations (owner_id, created_at);
`

// Init creates the violations table.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := store.Runner(ctx, s.db).ExecContext(ctx, violationSchema)
	return err
}

func (s *SQLStore) Insert(ctx context.Context, v *contracts.Violation) error {
	query := `
		INSERT INTO violations (id, mandate_id, owner_id, violation_type, attempted_value,
			limit_value, action, trade_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := store.Runner(ctx, s.db).ExecContext(ctx, query,
		v.ID, v.MandateID, v.OwnerID, string(v.Type), v.Attempted,
		v.Limit, string(v.Action), v.TradeContext,
		store.FormatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (s *SQLStore) CountSince(ctx context.Context, ownerID, mandateID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM violations WHERE owner_id = $1 AND created_at >= $2`
	args := []any{ownerID, store.FormatTime(since)}
	if mandateID != "" {
		query += ` AND mandate_id = $3`
		args = append(args, mandateID)
	}
	var n int
	if err := store.Runner(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ListByMandate(ctx context.Context, mandateID string) ([]*contracts.Violation, error) {
	query := `
		SELECT id, mandate_id, owner_id, violation_type, attempted_value,
			limit_value, action, trade_context, created_at, chain_signature, chain_reference
		FROM violations WHERE mandate_id = $1 ORDER BY created_at DESC
	`
	rows, err := store.Runner(ctx, s.db).QueryContext(ctx, query, mandateID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*contracts.Violation, 0)
	for rows.Next() {
		var (
			v         contracts.Violation
			vtype     string
			action    string
			createdAt string
			sig, ref  sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.MandateID, &v.OwnerID, &vtype, &v.Attempted,
			&v.Limit, &action, &v.TradeContext, &createdAt, &sig, &ref); err != nil {
			return nil, err
		}
		v.Type = contracts.ViolationType(vtype)
		v.Action = contracts.ViolationAction(action)
		v.CreatedAt, err = store.ParseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt created_at on violation %s: %w", v.ID, err)
		}
		v.ChainSignature = sig.String
		v.ChainReference = ref.String
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
