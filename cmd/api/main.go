package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arefy/economyd/internal/api"
	"github.com/arefy/economyd/internal/config"
	"github.com/arefy/economyd/internal/eventbus"
	"github.com/arefy/economyd/internal/infra/logging"
	"github.com/arefy/economyd/internal/infra/pgutils"
	"github.com/arefy/economyd/internal/ledger"
	"github.com/arefy/economyd/internal/services/economy"
	"github.com/arefy/economyd/internal/storage"
	"github.com/arefy/economyd/internal/storage/flatfile"
	"github.com/arefy/economyd/internal/storage/postgres"
	"github.com/arefy/economyd/pkg/envconf"
	"github.com/arefy/economyd/pkg/shutdownqueue"
	"github.com/joho/godotenv"
)

type apiConfig struct {
	Server  config.ServerConfig
	Storage config.StorageConfig
	Economy config.EconomyConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running economyd: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.Storage.Validate()
	if err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	logging.SetupJSON(cfg.Server.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Storage backend (selected here, at construction time, only) ---
	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	// --- Economy core ---
	bus := eventbus.New()

	svc, err := economy.New(ctx, cfg.Economy, store, bus, hudNotifier{})
	if err != nil {
		return fmt.Errorf("init economy: %w", err)
	}

	shutdownqueue.Add("economy service", func(c context.Context) error {
		return svc.Close(c)
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Server.Port, svc)

	shutdownqueue.Add("http server", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("economyd started",
		"port", cfg.Server.Port, "backend", cfg.Storage.Backend)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := pgutils.OpenDB(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		return postgres.New(db), nil
	case config.BackendFlatFile:
		fallthrough
	default:
		st, err := flatfile.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open flat file: %w", err)
		}

		return st, nil
	}
}

// hudNotifier emits balance changes for the presentation layer. The server
// process has no screen; the log line is the emission point the HUD bridge
// tails.
type hudNotifier struct{}

func (hudNotifier) BalanceChanged(identity string, balance int64) {
	slog.Info("hud balance update",
		"identity", identity, "balance", ledger.FormatAmount(balance))
}
