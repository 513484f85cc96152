package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arefy/economyd/internal/eventbus"
	"github.com/arefy/economyd/internal/storage"
)

func newTestEngine(t *testing.T, opts Options, feeBps int64) (*Engine, *Ledger, *memStore, *eventbus.Bus) {
	t.Helper()

	store := newMemStore()
	bus := eventbus.New()
	l := New(store, bus, opts)
	require.NoError(t, l.Load(context.Background()))

	return NewEngine(l, bus, feeBps), l, store, bus
}

func TestTransferRejections(t *testing.T) {
	t.Parallel()

	engine, l, _, _ := newTestEngine(t, Options{StartingBalance: 1000}, 0)
	ctx := context.Background()

	assert.Equal(t, ResultSelfTransfer, engine.Transfer(ctx, "alice", "alice", 100, "pay"))
	assert.Equal(t, ResultInvalidAmount, engine.Transfer(ctx, "alice", "bob", 0, "pay"))
	assert.Equal(t, ResultInvalidAmount, engine.Transfer(ctx, "alice", "bob", -5, "pay"))
	assert.Equal(t, ResultInsufficientFunds, engine.Transfer(ctx, "alice", "bob", 1001, "pay"))

	// No rejection touched any balance.
	assert.Equal(t, int64(1000), l.Balance("alice"))
	assert.Equal(t, int64(1000), l.Balance("bob"))
}

func TestTransferMovesFunds(t *testing.T) {
	t.Parallel()

	engine, l, store, _ := newTestEngine(t, Options{StartingBalance: 1000}, 0)

	res := engine.Transfer(context.Background(), "alice", "bob", 400, "rent")
	require.Equal(t, ResultSuccess, res)

	assert.Equal(t, int64(600), l.Balance("alice"))
	assert.Equal(t, int64(1400), l.Balance("bob"))

	recs, err := store.Transactions(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "alice", recs[0].Source)
	assert.Equal(t, "bob", recs[0].Destination)
	assert.Equal(t, int64(400), recs[0].Amount)
	assert.Equal(t, int64(0), recs[0].Fee)
	assert.Equal(t, "rent", recs[0].Reason)
	assert.Equal(t, string(ResultSuccess), recs[0].Outcome)
}

func TestTransferFeeIsBurned(t *testing.T) {
	t.Parallel()

	// 250 bps = 2.5%.
	engine, l, _, _ := newTestEngine(t, Options{StartingBalance: 10000}, 250)

	assert.Equal(t, int64(25), engine.Fee(1000))

	res := engine.Transfer(context.Background(), "alice", "bob", 1000, "pay")
	require.Equal(t, ResultSuccess, res)

	// Source is debited the full amount, destination credited amount-fee.
	assert.Equal(t, int64(9000), l.Balance("alice"))
	assert.Equal(t, int64(10975), l.Balance("bob"))

	// The fee left circulation entirely.
	assert.Equal(t, int64(19975), l.Stats().TotalCirculating)
}

func TestTransferFeeRoundsDown(t *testing.T) {
	t.Parallel()

	engine, _, _, _ := newTestEngine(t, Options{StartingBalance: 0}, 250)

	// 2.5% of 30 minor units is 0.75, truncated to 0.
	assert.Equal(t, int64(0), engine.Fee(30))
	assert.Equal(t, int64(2), engine.Fee(99))
}

func TestTransferRecipientMaxBalance(t *testing.T) {
	t.Parallel()

	engine, l, _, _ := newTestEngine(t, Options{StartingBalance: 900, MaxBalance: 1000}, 0)

	res := engine.Transfer(context.Background(), "alice", "bob", 200, "pay")
	assert.Equal(t, ResultRecipientMaxBalance, res)

	assert.Equal(t, int64(900), l.Balance("alice"))
	assert.Equal(t, int64(900), l.Balance("bob"))

	// Exactly reaching the cap is fine.
	res = engine.Transfer(context.Background(), "alice", "bob", 100, "pay")
	assert.Equal(t, ResultSuccess, res)
	assert.Equal(t, int64(1000), l.Balance("bob"))
}

func TestTransferHookVeto(t *testing.T) {
	t.Parallel()

	engine, l, store, bus := newTestEngine(t, Options{StartingBalance: 1000}, 0)

	bus.RegisterHook(eventbus.KindTransfer, func(ev eventbus.Event) eventbus.Decision {
		tr, ok := ev.(eventbus.Transfer)
		if ok && tr.Amount > 500 {
			return eventbus.Deny("amount above plugin limit")
		}

		return eventbus.Allowed
	})

	res := engine.Transfer(context.Background(), "alice", "bob", 600, "pay")
	assert.Equal(t, ResultInvalidAmount, res)
	assert.Equal(t, int64(1000), l.Balance("alice"))
	assert.Equal(t, int64(1000), l.Balance("bob"))

	recs, err := store.Transactions(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	res = engine.Transfer(context.Background(), "alice", "bob", 500, "pay")
	assert.Equal(t, ResultSuccess, res)
}

func TestTransferFiresEvents(t *testing.T) {
	t.Parallel()

	engine, _, _, bus := newTestEngine(t, Options{StartingBalance: 1000}, 0)

	var (
		mu        sync.Mutex
		changes   []eventbus.BalanceChange
		transfers []eventbus.Transfer
	)

	bus.Register(eventbus.KindBalanceChange, func(ev eventbus.Event) {
		change, ok := ev.(eventbus.BalanceChange)
		if !ok {
			return
		}

		mu.Lock()
		changes = append(changes, change)
		mu.Unlock()
	})
	bus.Register(eventbus.KindTransfer, func(ev eventbus.Event) {
		tr, ok := ev.(eventbus.Transfer)
		if !ok {
			return
		}

		mu.Lock()
		transfers = append(transfers, tr)
		mu.Unlock()
	})

	res := engine.Transfer(context.Background(), "alice", "bob", 250, "pay")
	require.Equal(t, ResultSuccess, res)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, changes, 2)
	assert.Equal(t, "alice", changes[0].Identity)
	assert.Equal(t, int64(-250), changes[0].Delta())
	assert.Equal(t, "bob", changes[1].Identity)
	assert.Equal(t, int64(250), changes[1].Delta())

	require.Len(t, transfers, 1)
	assert.Equal(t, "alice", transfers[0].Source)
	assert.Equal(t, "bob", transfers[0].Destination)
	assert.Equal(t, int64(250), transfers[0].Amount)
}

// Hammers transfers in both directions between two accounts and checks that
// total circulation only shrinks by the burned fees of successful transfers.
func TestTransferConcurrencyConservesMoney(t *testing.T) {
	t.Parallel()

	const (
		start   = int64(100000)
		feeBps  = int64(100) // 1%
		amount  = int64(100) // fee = 1 per success
		workers = 8
		perW    = 100
	)

	engine, l, _, _ := newTestEngine(t, Options{StartingBalance: start}, feeBps)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		counter   int
		counterMu sync.Mutex
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)

		src, dst := "alice", "bob"
		if w%2 == 1 {
			src, dst = dst, src
		}

		go func(src, dst string) {
			defer wg.Done()

			for i := 0; i < perW; i++ {
				if engine.Transfer(ctx, src, dst, amount, "stress") == ResultSuccess {
					counterMu.Lock()
					counter++
					counterMu.Unlock()
				}
			}
		}(src, dst)
	}

	wg.Wait()

	fee := engine.Fee(amount)
	total := l.Balance("alice") + l.Balance("bob")
	burned := int64(counter) * fee

	assert.Equal(t, 2*start-burned, total)
	assert.GreaterOrEqual(t, l.Balance("alice"), int64(0))
	assert.GreaterOrEqual(t, l.Balance("bob"), int64(0))
}
