package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arefy/economyd/internal/infra/pgutils"
	"github.com/arefy/economyd/internal/storage"
)

// SaveTransfer persists both sides of a committed transfer plus its log
// entry in a single SQL transaction, so the debit and credit can never be
// independently visible as committed.
func (s *Store) SaveTransfer(ctx context.Context, src, dst storage.AccountRecord, rec storage.TransactionRecord) error {
	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := upsertAccountTx(tx, src)
		if err != nil {
			return fmt.Errorf("source row: %w", err)
		}

		err = upsertAccountTx(tx, dst)
		if err != nil {
			return fmt.Errorf("destination row: %w", err)
		}

		err = appendTransaction(ctx, tx, rec)
		if err != nil {
			return fmt.Errorf("log entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("save transfer: %w", err)
	}

	return nil
}
