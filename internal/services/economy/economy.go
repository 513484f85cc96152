// Package economy is the public facade other subsystems use to reach the
// ledger. It composes the rate limiter, event bus, ledger and transfer
// engine, and owns the autosave loop.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arefy/economyd/internal/config"
	"github.com/arefy/economyd/internal/eventbus"
	"github.com/arefy/economyd/internal/ledger"
	"github.com/arefy/economyd/internal/ratelimit"
	"github.com/arefy/economyd/internal/storage"
)

// ErrRateLimited is returned by the *From call variants when the caller's
// token bucket is empty. Denied calls never touch ledger state.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrUnsupported mirrors storage.ErrUnsupported for callers that only
// import this package.
var ErrUnsupported = storage.ErrUnsupported

// Service is the single entry point external code uses.
type Service struct {
	cfg     config.EconomyConfig
	store   storage.Backend
	ledger  *ledger.Ledger
	engine  *ledger.Engine
	bus     *eventbus.Bus
	limiter *ratelimit.Limiter

	notifier Notifier

	autosaveStop chan struct{}
	autosaveDone chan struct{}
}

// New builds the service, bulk-loads the ledger and starts the autosave
// loop. The notifier may be nil; balance-change notifications are then
// dropped.
func New(ctx context.Context, cfg config.EconomyConfig, store storage.Backend, bus *eventbus.Bus, notifier Notifier) (*Service, error) {
	if notifier == nil {
		notifier = NopNotifier{}
	}

	led := ledger.New(store, bus, ledger.Options{
		StartingBalance: int64(cfg.StartingBalance),
		MaxBalance:      int64(cfg.MaxBalance),
	})

	err := led.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	s := &Service{
		cfg:          cfg,
		store:        store,
		ledger:       led,
		engine:       ledger.NewEngine(led, bus, cfg.TransferFeeBps),
		bus:          bus,
		limiter:      ratelimit.New(cfg.RateLimitBurst, cfg.RateLimitRefill),
		notifier:     notifier,
		autosaveStop: make(chan struct{}),
		autosaveDone: make(chan struct{}),
	}

	if cfg.HudEnabled {
		bus.Register(eventbus.KindBalanceChange, func(ev eventbus.Event) {
			bc, ok := ev.(eventbus.BalanceChange)
			if ok {
				s.notifier.BalanceChanged(bc.Identity, bc.NewBalance)
			}
		})
	}

	go s.autosaveLoop()

	return s, nil
}

func (s *Service) autosaveLoop() {
	defer close(s.autosaveDone)

	interval := s.cfg.AutosaveInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.autosaveStop:
			return
		case <-ticker.C:
			err := s.ledger.Flush(context.Background())
			if err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}
}

// EnsureAccount creates the account if absent. Idempotent.
func (s *Service) EnsureAccount(ctx context.Context, identity string) error {
	return s.ledger.EnsureAccount(ctx, identity)
}

// Balance returns the current balance for identity in minor units.
func (s *Service) Balance(identity string) int64 {
	return s.ledger.Balance(identity)
}

// PlayerBalance returns the full account snapshot, if the account exists.
func (s *Service) PlayerBalance(identity string) (ledger.Account, bool) {
	return s.ledger.Account(identity)
}

// Transfer executes a player-to-player transfer. The minimum-transaction
// floor is policy, so it is enforced here rather than in the engine.
func (s *Service) Transfer(ctx context.Context, source, destination string, amount int64, reason string) ledger.Result {
	if amount < int64(s.cfg.MinTransaction) {
		return ledger.ResultInvalidAmount
	}

	return s.engine.Transfer(ctx, source, destination, amount, reason)
}

// TransferFrom is the rate-limit-gated Transfer variant for callers outside
// the trusted core. A denied call returns ErrRateLimited without touching
// any ledger state.
func (s *Service) TransferFrom(ctx context.Context, callerKey, source, destination string, amount int64, reason string) (ledger.Result, error) {
	if !s.limiter.TryAcquire(callerKey) {
		return "", ErrRateLimited
	}

	return s.Transfer(ctx, source, destination, amount, reason), nil
}

// Adjust applies a signed delta to identity's balance.
func (s *Service) Adjust(ctx context.Context, identity string, delta int64, reason string) (int64, error) {
	return s.ledger.Adjust(ctx, identity, delta, reason)
}

// AdjustFrom is the rate-limit-gated Adjust variant.
func (s *Service) AdjustFrom(ctx context.Context, callerKey, identity string, delta int64, reason string) (int64, error) {
	if !s.limiter.TryAcquire(callerKey) {
		return 0, ErrRateLimited
	}

	return s.Adjust(ctx, identity, delta, reason)
}

// SetBalance is the administrative absolute override.
func (s *Service) SetBalance(ctx context.Context, identity string, value int64, reason string) (int64, error) {
	return s.ledger.SetBalance(ctx, identity, value, reason)
}

// ResetBalance returns identity to the configured starting balance.
func (s *Service) ResetBalance(ctx context.Context, identity string) (int64, error) {
	return s.ledger.ResetBalance(ctx, identity)
}

// AllBalances returns a point-in-time snapshot of every account.
func (s *Service) AllBalances() map[string]ledger.Account {
	return s.ledger.AllBalances()
}

// TopBalances returns the leaderboard, resolving display names for offline
// players through the backend's name cache when one exists.
func (s *Service) TopBalances(ctx context.Context, n int) []ledger.Account {
	top := s.ledger.TopBalances(n)

	nc, ok := s.store.(storage.NameCache)
	if !ok {
		return top
	}

	for i := range top {
		if top[i].Name != "" {
			continue
		}

		name, err := nc.PlayerName(ctx, top[i].Identity)
		if err != nil {
			slog.Warn("name lookup failed", "identity", top[i].Identity, "error", err)
			continue
		}

		top[i].Name = name
	}

	return top
}

// Stats aggregates the economy for the dashboard.
func (s *Service) Stats() ledger.Stats {
	return s.ledger.Stats()
}

// Transactions returns one page of the audit log. Backends without a
// transaction log report ErrUnsupported.
func (s *Service) Transactions(ctx context.Context, filter storage.LogFilter) ([]storage.TransactionRecord, error) {
	tl, ok := s.store.(storage.TransactionLog)
	if !ok {
		return nil, ErrUnsupported
	}

	recs, err := tl.Transactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}

	return recs, nil
}

// HandlePlayerJoin is the host-runtime callback for a player entering the
// world: ensure the account, cache the display name, and push the current
// balance to the HUD when enabled.
func (s *Service) HandlePlayerJoin(ctx context.Context, identity, name string) error {
	err := s.ledger.EnsureAccount(ctx, identity)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	if name != "" {
		err = s.ledger.UpdateName(ctx, identity, name)
		if err != nil {
			return fmt.Errorf("update name: %w", err)
		}

		nc, ok := s.store.(storage.NameCache)
		if ok {
			err = nc.UpdatePlayerName(ctx, identity, name)
			if err != nil {
				slog.Warn("name cache update failed", "identity", identity, "error", err)
			}
		}
	}

	if s.cfg.HudEnabled {
		s.notifier.BalanceChanged(identity, s.ledger.Balance(identity))
	}

	return nil
}

// ForceSave flushes all dirty state to the backend on demand.
func (s *Service) ForceSave(ctx context.Context) error {
	err := s.ledger.Flush(ctx)
	if err != nil {
		return fmt.Errorf("force save: %w", err)
	}

	return nil
}

// Config exposes the read-only economy policy, for display layers.
func (s *Service) Config() config.EconomyConfig {
	return s.cfg
}

// Bus exposes the event bus so other subsystems can register listeners and
// pre-commit hooks.
func (s *Service) Bus() *eventbus.Bus {
	return s.bus
}

// Close stops the autosave loop, drains in-flight operations, flushes dirty
// accounts and closes the storage backend.
func (s *Service) Close(ctx context.Context) error {
	close(s.autosaveStop)
	<-s.autosaveDone

	err := s.ledger.Close(ctx)
	if err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}

	return nil
}
