// Package ledger owns the authoritative in-memory balance state and all
// mutation logic for player accounts.
//
// Every mutation on a single identity is serialized through that account's
// own mutex; operations on different identities proceed independently. The
// in-memory state commits first and is the source of truth; durable writes
// are issued after the account lock is released (write-behind). A failed
// write marks the account dirty and is retried on the next flush instead of
// failing the player-visible operation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arefy/economyd/internal/eventbus"
	"github.com/arefy/economyd/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMaxBalance        = errors.New("maximum balance exceeded")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrClosed            = errors.New("ledger is shutting down")
)

// Options are the read-only economy parameters the ledger enforces.
type Options struct {
	StartingBalance int64
	MaxBalance      int64 // 0 = unlimited
}

// Account is a point-in-time snapshot of one account.
type Account struct {
	Identity  string
	Balance   int64
	Name      string
	UpdatedAt time.Time
}

// Stats summarizes the whole economy for the admin dashboard.
type Stats struct {
	TotalCirculating int64
	Accounts         int
	AverageBalance   int64
}

type account struct {
	mu        sync.Mutex
	identity  string
	balance   int64
	name      string
	updatedAt time.Time
}

// snapshot must be called with a.mu held.
func (a *account) snapshot() Account {
	return Account{
		Identity:  a.identity,
		Balance:   a.balance,
		Name:      a.name,
		UpdatedAt: a.updatedAt,
	}
}

func (a *account) record() storage.AccountRecord {
	return storage.AccountRecord{
		Identity:  a.identity,
		Balance:   a.balance,
		Name:      a.name,
		UpdatedAt: a.updatedAt,
	}
}

// Ledger is the authoritative identity -> balance map backed by a storage
// backend.
type Ledger struct {
	opts  Options
	store storage.Backend
	bus   *eventbus.Bus

	mu       sync.RWMutex
	accounts map[string]*account

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	// closeMu serializes shutdown against in-flight mutations: mutations
	// hold the read side for their duration, Close takes the write side.
	closeMu sync.RWMutex
	closed  bool
}

func New(store storage.Backend, bus *eventbus.Bus, opts Options) *Ledger {
	return &Ledger{
		opts:     opts,
		store:    store,
		bus:      bus,
		accounts: make(map[string]*account),
		dirty:    make(map[string]struct{}),
	}
}

// Load bulk-loads every persisted account into memory. Called once at
// startup before the ledger is handed to any caller.
func (l *Ledger) Load(ctx context.Context) error {
	recs, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range recs {
		l.accounts[rec.Identity] = &account{
			identity:  rec.Identity,
			balance:   rec.Balance,
			name:      rec.Name,
			updatedAt: rec.UpdatedAt,
		}
	}

	slog.Info("ledger loaded", "accounts", len(recs))

	return nil
}

func (l *Ledger) begin() error {
	l.closeMu.RLock()

	if l.closed {
		l.closeMu.RUnlock()
		return ErrClosed
	}

	return nil
}

func (l *Ledger) end() {
	l.closeMu.RUnlock()
}

func (l *Ledger) lookup(identity string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[identity]

	return a, ok
}

// getOrCreate returns the live account for identity, creating it with the
// configured starting balance on first reference.
func (l *Ledger) getOrCreate(identity string) (*account, bool) {
	a, ok := l.lookup(identity)
	if ok {
		return a, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok = l.accounts[identity]
	if ok {
		return a, false
	}

	a = &account{
		identity:  identity,
		balance:   l.opts.StartingBalance,
		updatedAt: time.Now().UTC(),
	}
	l.accounts[identity] = a

	return a, true
}

// EnsureAccount creates the account with the starting balance if absent.
// Idempotent. A storage failure leaves an in-memory-only record rather than
// blocking the caller.
func (l *Ledger) EnsureAccount(ctx context.Context, identity string) error {
	err := l.begin()
	if err != nil {
		return err
	}
	defer l.end()

	a, created := l.getOrCreate(identity)
	if !created {
		return nil
	}

	a.mu.Lock()
	rec := a.record()
	a.mu.Unlock()

	l.persist(ctx, rec)

	return nil
}

// Balance returns the current balance for identity. Unknown identities
// report the configured starting balance without creating an account, so
// balance queries stay side-effect-free.
func (l *Ledger) Balance(identity string) int64 {
	a, ok := l.lookup(identity)
	if !ok {
		return l.opts.StartingBalance
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.balance
}

// Account returns a snapshot of identity's account, if it exists.
func (l *Ledger) Account(identity string) (Account, bool) {
	a, ok := l.lookup(identity)
	if !ok {
		return Account{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshot(), true
}

// Adjust atomically applies delta (positive = credit, negative = debit) and
// returns the new balance. The account is created on first reference.
func (l *Ledger) Adjust(ctx context.Context, identity string, delta int64, reason string) (int64, error) {
	err := l.begin()
	if err != nil {
		return 0, err
	}
	defer l.end()

	a, _ := l.getOrCreate(identity)

	a.mu.Lock()

	old := a.balance
	next := old + delta

	if next < 0 {
		a.mu.Unlock()
		return 0, ErrInsufficientFunds
	}

	if l.opts.MaxBalance > 0 && delta > 0 && next > l.opts.MaxBalance {
		a.mu.Unlock()
		return 0, ErrMaxBalance
	}

	a.balance = next
	a.updatedAt = time.Now().UTC()
	rec := a.record()

	a.mu.Unlock()

	l.persist(ctx, rec)
	l.logAdjustment(ctx, identity, delta, reason)

	l.bus.Fire(eventbus.BalanceChange{
		Identity:   identity,
		OldBalance: old,
		NewBalance: next,
		Reason:     reason,
		At:         time.Now().UTC(),
	})

	return next, nil
}

// SetBalance is an administrative override to an absolute value, subject to
// the same positivity and maximum checks as Adjust.
func (l *Ledger) SetBalance(ctx context.Context, identity string, value int64, reason string) (int64, error) {
	err := l.begin()
	if err != nil {
		return 0, err
	}
	defer l.end()

	if value < 0 {
		return 0, ErrInvalidAmount
	}

	if l.opts.MaxBalance > 0 && value > l.opts.MaxBalance {
		return 0, ErrMaxBalance
	}

	a, _ := l.getOrCreate(identity)

	a.mu.Lock()
	old := a.balance
	a.balance = value
	a.updatedAt = time.Now().UTC()
	rec := a.record()
	a.mu.Unlock()

	l.persist(ctx, rec)
	l.logAdjustment(ctx, identity, value-old, reason)

	l.bus.Fire(eventbus.BalanceChange{
		Identity:   identity,
		OldBalance: old,
		NewBalance: value,
		Reason:     reason,
		At:         time.Now().UTC(),
	})

	return value, nil
}

// ResetBalance sets identity back to the configured starting balance. The
// record is kept, never deleted.
func (l *Ledger) ResetBalance(ctx context.Context, identity string) (int64, error) {
	return l.SetBalance(ctx, identity, l.opts.StartingBalance, "balance reset")
}

// UpdateName caches the display name on the account. Called on player join.
func (l *Ledger) UpdateName(ctx context.Context, identity, name string) error {
	err := l.begin()
	if err != nil {
		return err
	}
	defer l.end()

	a, _ := l.getOrCreate(identity)

	a.mu.Lock()
	a.name = name
	a.updatedAt = time.Now().UTC()
	rec := a.record()
	a.mu.Unlock()

	l.persist(ctx, rec)

	return nil
}

// AllBalances returns a point-in-time copy of every known account.
func (l *Ledger) AllBalances() map[string]Account {
	l.mu.RLock()
	live := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		live = append(live, a)
	}
	l.mu.RUnlock()

	out := make(map[string]Account, len(live))

	for _, a := range live {
		a.mu.Lock()
		out[a.identity] = a.snapshot()
		a.mu.Unlock()
	}

	return out
}

// TopBalances returns the n richest accounts, highest balance first.
func (l *Ledger) TopBalances(n int) []Account {
	all := l.AllBalances()

	out := make([]Account, 0, len(all))
	for _, acc := range all {
		out = append(out, acc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}

		return out[i].Identity < out[j].Identity
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}

	return out
}

// Stats aggregates the economy for the admin dashboard.
func (l *Ledger) Stats() Stats {
	all := l.AllBalances()

	var total int64
	for _, acc := range all {
		total += acc.Balance
	}

	s := Stats{TotalCirculating: total, Accounts: len(all)}
	if s.Accounts > 0 {
		s.AverageBalance = total / int64(s.Accounts)
	}

	return s
}

// persist issues the durable write for one account outside any account
// lock. Failures degrade to dirty-retry instead of propagating.
func (l *Ledger) persist(ctx context.Context, rec storage.AccountRecord) {
	err := l.store.Upsert(ctx, rec)
	if err != nil {
		slog.Error("account write failed, will retry on next flush",
			"identity", rec.Identity, "error", err)
		l.markDirty(rec.Identity)
	}
}

// logAdjustment appends an admin/system audit entry when the backend keeps
// a transaction log.
func (l *Ledger) logAdjustment(ctx context.Context, identity string, delta int64, reason string) {
	tl, ok := l.store.(storage.TransactionLog)
	if !ok {
		return
	}

	err := tl.AppendTransaction(ctx, storage.TransactionRecord{
		ID:          uuid.NewString(),
		Destination: identity,
		Amount:      delta,
		Reason:      reason,
		Outcome:     "ADMIN",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		slog.Error("transaction log append failed", "identity", identity, "error", err)
	}
}

func (l *Ledger) markDirty(identity string) {
	l.dirtyMu.Lock()
	defer l.dirtyMu.Unlock()

	l.dirty[identity] = struct{}{}
}

func (l *Ledger) takeDirty() []string {
	l.dirtyMu.Lock()
	defer l.dirtyMu.Unlock()

	out := make([]string, 0, len(l.dirty))
	for id := range l.dirty {
		out = append(out, id)
	}

	l.dirty = make(map[string]struct{})

	return out
}

// Flush retries every dirty account and then checkpoints the backend.
// Callable on demand (administrative force save) and on the autosave
// interval.
func (l *Ledger) Flush(ctx context.Context) error {
	for _, identity := range l.takeDirty() {
		a, ok := l.lookup(identity)
		if !ok {
			continue
		}

		a.mu.Lock()
		rec := a.record()
		a.mu.Unlock()

		err := l.store.Upsert(ctx, rec)
		if err != nil {
			l.markDirty(identity)
			return fmt.Errorf("flush account %s: %w", identity, err)
		}
	}

	err := l.store.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flush backend: %w", err)
	}

	return nil
}

// Close drains the ledger: new mutations are refused, in-flight ones
// finish, dirty state is flushed, the backend is closed.
func (l *Ledger) Close(ctx context.Context) error {
	l.closeMu.Lock()

	if l.closed {
		l.closeMu.Unlock()
		return nil
	}

	l.closed = true
	l.closeMu.Unlock()

	err := l.Flush(ctx)
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	err = l.store.Close(ctx)
	if err != nil {
		return fmt.Errorf("close backend: %w", err)
	}

	return nil
}
