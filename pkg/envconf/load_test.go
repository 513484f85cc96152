package envconf

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

type nested struct {
	Port     uint16        `env:"TEST_ENVCONF_PORT" envDefault:"8080"`
	LogLevel slog.Level    `env:"TEST_ENVCONF_LOG_LEVEL" envDefault:"INFO"`
	Timeout  time.Duration `env:"TEST_ENVCONF_TIMEOUT" envDefault:"10s"`
}

type root struct {
	Name     string  `env:"TEST_ENVCONF_NAME" envDefault:"default-name"`
	Enabled  bool    `env:"TEST_ENVCONF_ENABLED" envDefault:"false"`
	Rate     float64 `env:"TEST_ENVCONF_RATE" envDefault:"2.5"`
	Required string  `env:"TEST_ENVCONF_REQUIRED"`

	Nested nested
}

//nolint:paralleltest // mutates process environment
func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("TEST_ENVCONF_REQUIRED", "present")
	t.Setenv("TEST_ENVCONF_NAME", "from-env")
	t.Setenv("TEST_ENVCONF_TIMEOUT", "30s")

	var cfg root

	err := Load(&cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Env wins over the default.
	if cfg.Name != "from-env" {
		t.Fatalf("Name: got %q, want from-env", cfg.Name)
	}

	if cfg.Nested.Timeout != 30*time.Second {
		t.Fatalf("Timeout: got %v, want 30s", cfg.Nested.Timeout)
	}

	// Defaults fill in the rest.
	if cfg.Enabled {
		t.Fatalf("Enabled: expected default false")
	}

	if cfg.Rate != 2.5 {
		t.Fatalf("Rate: got %v, want 2.5", cfg.Rate)
	}

	if cfg.Nested.Port != 8080 {
		t.Fatalf("Port: got %d, want 8080", cfg.Nested.Port)
	}

	if cfg.Nested.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel: got %v, want INFO", cfg.Nested.LogLevel)
	}
}

//nolint:paralleltest // mutates process environment
func TestLoadMissingRequired(t *testing.T) {
	var cfg root

	err := Load(&cfg)
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
}

//nolint:paralleltest // mutates process environment
func TestLoadParseError(t *testing.T) {
	t.Setenv("TEST_ENVCONF_REQUIRED", "present")
	t.Setenv("TEST_ENVCONF_RATE", "not-a-number")

	var cfg root

	err := Load(&cfg)
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRejectsNonPointer(t *testing.T) {
	t.Parallel()

	err := Load(root{})
	if err == nil {
		t.Fatalf("expected error for non-pointer destination")
	}

	err = Load(nil)
	if err == nil {
		t.Fatalf("expected error for nil destination")
	}
}
