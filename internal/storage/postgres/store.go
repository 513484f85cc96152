// Package postgres is the relational storage backend: one row per account
// with indexed identity lookup, a player-name cache updated on join, and an
// append-only transaction log with paginated queries.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arefy/economyd/internal/storage"
)

// Store is the relational storage backend over database/sql with the pgx
// stdlib driver. Upserts are write-through; Flush is a no-op because every
// mutation already hit a committed row.
type Store struct {
	db *sql.DB
}

var (
	_ storage.Backend        = (*Store)(nil)
	_ storage.NameCache      = (*Store)(nil)
	_ storage.TransactionLog = (*Store)(nil)
	_ storage.TransferStore  = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadAll reads every account, joining in cached display names.
func (s *Store) LoadAll(ctx context.Context) ([]storage.AccountRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.identity, a.balance, COALESCE(n.name, ''), a.updated_at
		FROM accounts a
		LEFT JOIN player_names n ON n.identity = a.identity
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []storage.AccountRecord

	for rows.Next() {
		var rec storage.AccountRecord

		err = rows.Scan(&rec.Identity, &rec.Balance, &rec.Name, &rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		out = append(out, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return out, nil
}

// Upsert writes one account row.
func (s *Store) Upsert(ctx context.Context, rec storage.AccountRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (identity, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, rec.Identity, rec.Balance, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}

	return nil
}

func upsertAccountTx(tx *sql.Tx, rec storage.AccountRecord) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (identity, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, rec.Identity, rec.Balance, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}

	return nil
}

// Flush is a no-op: rows are committed as they are upserted.
func (s *Store) Flush(ctx context.Context) error {
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close(ctx context.Context) error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
