package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arefy/economyd/internal/storage"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultPageSize = 20

// AppendTransaction inserts one immutable audit log entry.
func (s *Store) AppendTransaction(ctx context.Context, rec storage.TransactionRecord) error {
	return appendTransaction(ctx, s.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendTransaction(ctx context.Context, db execer, rec storage.TransactionRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, source, destination, amount, fee, reason, outcome, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Source, rec.Destination, rec.Amount, rec.Fee, rec.Reason, rec.Outcome, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return storage.ErrDuplicateTransaction
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

// Transactions returns one page of the log, newest first, optionally
// filtered to entries touching a single player.
func (s *Store) Transactions(ctx context.Context, filter storage.LogFilter) ([]storage.TransactionRecord, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	size := filter.PageSize
	if size < 1 {
		size = defaultPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(source, ''), destination, amount, fee, reason, outcome, created_at
		FROM transactions
		WHERE $1 = '' OR source = $1 OR destination = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, filter.Player, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []storage.TransactionRecord

	for rows.Next() {
		var rec storage.TransactionRecord

		err = rows.Scan(&rec.ID, &rec.Source, &rec.Destination, &rec.Amount,
			&rec.Fee, &rec.Reason, &rec.Outcome, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		out = append(out, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}
