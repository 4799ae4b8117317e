package mandate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/covenantlabs/mandate/pkg/contracts"
	"github.com/covenantlabs/mandate/pkg/store"
)

// SQLStore implements Store on database/sql (Postgres or SQLite). Rules are
// stored as a JSON document: they are frozen at creation, never queried
// field-by-field, and hashed as a whole.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const mandateSchema = `
CREATE TABLE IF NOT EXISTS mandates (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	rules TEXT NOT NULL,
	is_active BOOLEAN NOT NULL,
	created_at TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chain_signature TEXT,
	chain_reference TEXT
);
CREATE INDEX IF NOT EXISTS idx_mandates_owner ON mandates (owner_id, is_active);
`

// Init creates the mandates table.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := store.Runner(ctx, s.db).ExecContext(ctx, mandateSchema)
	return err
}

const mandateColumns = `id, owner_id, rules, is_active, created_at, content_hash, chain_signature, chain_reference`

func (s *SQLStore) Insert(ctx context.Context, m *contracts.Mandate) error {
	rules, err := json.Marshal(m.Rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	query := `
		INSERT INTO mandates (` + mandateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL)
	`
	_, err = store.Runner(ctx, s.db).ExecContext(ctx, query,
		m.ID, m.OwnerID, string(rules), m.IsActive,
		store.FormatTime(m.CreatedAt), m.ContentHash)
	if err != nil {
		return fmt.Errorf("insert mandate: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*contracts.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE id = $1`
	m, err := scanMandate(store.Runner(ctx, s.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrMandateNotFound
	}
	return m, err
}

func (s *SQLStore) GetActive(ctx context.Context, ownerID string) (*contracts.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE owner_id = $1 AND is_active = $2 LIMIT 1`
	m, err := scanMandate(store.Runner(ctx, s.db).QueryRowContext(ctx, query, ownerID, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNoActiveMandate
	}
	return m, err
}

func (s *SQLStore) SetInactive(ctx context.Context, id string) (bool, error) {
	query := `UPDATE mandates SET is_active = $1 WHERE id = $2 AND is_active = $3`
	res, err := store.Runner(ctx, s.db).ExecContext(ctx, query, false, id, true)
	if err != nil {
		return false, fmt.Errorf("set inactive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set inactive rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]*contracts.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := store.Runner(ctx, s.db).QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list mandates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*contracts.Mandate, 0)
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMandate(row rowScanner) (*contracts.Mandate, error) {
	var (
		m         contracts.Mandate
		rules     string
		createdAt string
		sig, ref  sql.NullString
	)
	err := row.Scan(&m.ID, &m.OwnerID, &rules, &m.IsActive, &createdAt, &m.ContentHash, &sig, &ref)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &m.Rules); err != nil {
		return nil, fmt.Errorf("corrupt rules on mandate %s: %w", m.ID, err)
	}
	m.CreatedAt, err = store.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at on mandate %s: %w", m.ID, err)
	}
	m.ChainSignature = sig.String
	m.ChainReference = ref.String
	return &m, nil
}
