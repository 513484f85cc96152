// Package config holds the read-only configuration consumed by the economy
// core. Values are loaded from the environment by pkg/envconf.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arefy/economyd/internal/ledger"
)

const (
	BackendFlatFile = "flatfile"
	BackendPostgres = "postgres"
)

type ServerConfig struct {
	Port            uint16        `env:"ECON_PORT" envDefault:"8080"`
	LogLevel        slog.Level    `env:"ECON_LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"ECON_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type StorageConfig struct {
	// Backend selects the storage variant: flatfile | postgres.
	Backend string `env:"ECON_STORAGE_BACKEND" envDefault:"flatfile"`
	DataDir string `env:"ECON_DATA_DIR" envDefault:"./data"`
	// DSN is only consulted when Backend is postgres.
	DSN string `env:"ECON_PG_DSN" envDefault:""`
}

// Validate rejects unknown backend tags early, so nothing downstream ever
// branches on backend identity.
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendFlatFile:
		return nil
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("ECON_PG_DSN is required for the postgres backend")
		}

		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

// EconomyConfig is policy input to the ledger and transfer engine.
type EconomyConfig struct {
	StartingBalance ledger.Amount `env:"ECON_STARTING_BALANCE" envDefault:"100.00"`
	// MaxBalance of 0 means unlimited.
	MaxBalance ledger.Amount `env:"ECON_MAX_BALANCE" envDefault:"0"`
	// TransferFeeBps is the transfer fee in basis points (500 = 5%).
	TransferFeeBps int64         `env:"ECON_TRANSFER_FEE_BPS" envDefault:"0"`
	MinTransaction ledger.Amount `env:"ECON_MIN_TRANSACTION" envDefault:"0.01"`
	CurrencySymbol string        `env:"ECON_CURRENCY_SYMBOL" envDefault:"$"`
	HudEnabled     bool          `env:"ECON_HUD_ENABLED" envDefault:"false"`

	AutosaveInterval time.Duration `env:"ECON_AUTOSAVE_INTERVAL" envDefault:"5m"`

	RateLimitBurst  float64 `env:"ECON_RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitRefill float64 `env:"ECON_RATE_LIMIT_REFILL" envDefault:"2"`
}

// Format renders an amount for player-facing output, e.g. "$10.15".
func (c EconomyConfig) Format(minor int64) string {
	return c.CurrencySymbol + ledger.FormatAmount(minor)
}
