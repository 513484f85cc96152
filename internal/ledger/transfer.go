package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/arefy/economyd/internal/eventbus"
	"github.com/arefy/economyd/internal/storage"
	"github.com/google/uuid"
)

// Result is the closed outcome set for a transfer.
type Result string

const (
	ResultSuccess             Result = "SUCCESS"
	ResultInsufficientFunds   Result = "INSUFFICIENT_FUNDS"
	ResultSelfTransfer        Result = "SELF_TRANSFER"
	ResultInvalidAmount       Result = "INVALID_AMOUNT"
	ResultRecipientMaxBalance Result = "RECIPIENT_MAX_BALANCE"
)

const feeDenominator = 10_000

// Engine validates and executes player-to-player transfers atomically
// against the ledger. The fee is expressed in basis points and is burned:
// it leaves circulation, no account receives it.
type Engine struct {
	ledger *Ledger
	bus    *eventbus.Bus
	feeBps int64
}

func NewEngine(l *Ledger, bus *eventbus.Bus, feeBps int64) *Engine {
	return &Engine{ledger: l, bus: bus, feeBps: feeBps}
}

// Fee returns the fee charged on a transfer of amount, in minor units.
func (e *Engine) Fee(amount int64) int64 {
	return amount * e.feeBps / feeDenominator
}

// Transfer moves amount from source to destination, debiting the source by
// the full amount and crediting the destination with amount minus fee.
//
// The two mutations commit together or not at all: both account locks are
// held, in lexical identity order, for the whole in-memory commit, and the
// relational backend persists both rows plus the log entry in one SQL
// transaction. Any rejection leaves both balances untouched.
func (e *Engine) Transfer(ctx context.Context, source, destination string, amount int64, reason string) Result {
	if source == destination {
		return ResultSelfTransfer
	}

	if amount <= 0 {
		return ResultInvalidAmount
	}

	err := e.ledger.begin()
	if err != nil {
		return ResultInvalidAmount
	}
	defer e.ledger.end()

	fee := e.Fee(amount)
	now := time.Now().UTC()

	pending := eventbus.Transfer{
		Source:      source,
		Destination: destination,
		Amount:      amount,
		Fee:         fee,
		Reason:      reason,
		At:          now,
	}

	decision := e.bus.Check(pending)
	if !decision.Allow {
		slog.Info("transfer vetoed by pre-commit hook",
			"source", source, "destination", destination, "reason", decision.Reason)

		return ResultInvalidAmount
	}

	src, _ := e.ledger.getOrCreate(source)
	dst, _ := e.ledger.getOrCreate(destination)

	first, second := src, dst
	if destination < source {
		first, second = dst, src
	}

	first.mu.Lock()
	second.mu.Lock()

	srcOld := src.balance
	dstOld := dst.balance
	credit := amount - fee

	if srcOld < amount {
		second.mu.Unlock()
		first.mu.Unlock()

		return ResultInsufficientFunds
	}

	max := e.ledger.opts.MaxBalance
	if max > 0 && dstOld+credit > max {
		second.mu.Unlock()
		first.mu.Unlock()

		return ResultRecipientMaxBalance
	}

	src.balance = srcOld - amount
	dst.balance = dstOld + credit
	src.updatedAt = now
	dst.updatedAt = now

	srcRec := src.record()
	dstRec := dst.record()

	second.mu.Unlock()
	first.mu.Unlock()

	e.persistTransfer(ctx, srcRec, dstRec, storage.TransactionRecord{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Amount:      amount,
		Fee:         fee,
		Reason:      reason,
		Outcome:     string(ResultSuccess),
		CreatedAt:   now,
	})

	e.bus.Fire(eventbus.BalanceChange{
		Identity:   source,
		OldBalance: srcOld,
		NewBalance: srcRec.Balance,
		Reason:     reason,
		At:         now,
	})
	e.bus.Fire(eventbus.BalanceChange{
		Identity:   destination,
		OldBalance: dstOld,
		NewBalance: dstRec.Balance,
		Reason:     reason,
		At:         now,
	})
	e.bus.Fire(pending)

	return ResultSuccess
}

// persistTransfer writes both rows and the log entry, atomically when the
// backend can, falling back to per-account upserts otherwise. Failures
// degrade to dirty-retry.
func (e *Engine) persistTransfer(ctx context.Context, src, dst storage.AccountRecord, rec storage.TransactionRecord) {
	ts, ok := e.ledger.store.(storage.TransferStore)
	if ok {
		err := ts.SaveTransfer(ctx, src, dst, rec)
		if err != nil {
			slog.Error("transfer write failed, will retry on next flush",
				"source", src.Identity, "destination", dst.Identity, "error", err)
			e.ledger.markDirty(src.Identity)
			e.ledger.markDirty(dst.Identity)
		}

		return
	}

	e.ledger.persist(ctx, src)
	e.ledger.persist(ctx, dst)

	tl, ok := e.ledger.store.(storage.TransactionLog)
	if ok {
		err := tl.AppendTransaction(ctx, rec)
		if err != nil {
			slog.Error("transaction log append failed",
				"source", src.Identity, "destination", dst.Identity, "error", err)
		}
	}
}
