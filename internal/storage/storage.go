// Package storage defines the durable persistence boundary of the ledger.
//
// Backend is the capability every variant must provide. Richer capabilities
// (name cache, transaction log, atomic transfer persistence) are discovered
// by interface assertion on the Backend value; no caller branches on which
// concrete backend is configured.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported is returned when a caller asks for a capability the
	// configured backend does not implement.
	ErrUnsupported = errors.New("operation not supported by storage backend")

	// ErrDuplicateTransaction signals an append of an already-recorded
	// transaction ID.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// AccountRecord is the persisted shape of one account.
type AccountRecord struct {
	Identity  string
	Balance   int64 // minor units
	Name      string
	UpdatedAt time.Time
}

// TransactionRecord is one append-only audit log entry. Source is empty for
// system/admin-originated operations. Records are immutable once written.
type TransactionRecord struct {
	ID          string
	Source      string
	Destination string
	Amount      int64
	Fee         int64
	Reason      string
	Outcome     string
	CreatedAt   time.Time
}

// LogFilter selects a page of the transaction log. Player filters on either
// side of a record; empty matches everything. Page is 1-based.
type LogFilter struct {
	Player   string
	Page     int
	PageSize int
}

// Backend is the minimal persistence contract: bulk load at startup,
// per-account write-through, explicit checkpoint, orderly close.
type Backend interface {
	LoadAll(ctx context.Context) ([]AccountRecord, error)
	Upsert(ctx context.Context, rec AccountRecord) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// NameCache resolves display names for offline players. Backends without a
// name store simply do not implement it.
type NameCache interface {
	// PlayerName returns the cached name for identity, or "" when unknown.
	PlayerName(ctx context.Context, identity string) (string, error)
	UpdatePlayerName(ctx context.Context, identity, name string) error
}

// TransactionLog is the append-only audit trail with paginated reads,
// newest first.
type TransactionLog interface {
	AppendTransaction(ctx context.Context, rec TransactionRecord) error
	Transactions(ctx context.Context, filter LogFilter) ([]TransactionRecord, error)
}

// TransferStore persists both sides of a transfer and its log entry as one
// atomic unit, so the debit and credit are never independently visible as
// committed.
type TransferStore interface {
	SaveTransfer(ctx context.Context, src, dst AccountRecord, rec TransactionRecord) error
}
