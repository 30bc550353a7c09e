package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Trading.Pair != "BTCUSDT" {
		t.Errorf("pair = %q, want BTCUSDT", cfg.Trading.Pair)
	}
	if cfg.Trading.PositionSize != 0.01 {
		t.Errorf("position size = %v, want 0.01", cfg.Trading.PositionSize)
	}
	if cfg.Trading.Leverage != 5 {
		t.Errorf("leverage = %d, want 5", cfg.Trading.Leverage)
	}
	if cfg.Trading.MaxPositions != 3 {
		t.Errorf("max positions = %d, want 3", cfg.Trading.MaxPositions)
	}
	if !cfg.Binance.TestNet {
		t.Error("testnet should default to true")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"trading": {"pair": "ETHUSDT", "position_size": 0.5}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("POSITION_SIZE", "0.25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Trading.Pair != "ETHUSDT" {
		t.Errorf("pair = %q, want ETHUSDT from file", cfg.Trading.Pair)
	}
	// Environment wins over the file.
	if cfg.Trading.PositionSize != 0.25 {
		t.Errorf("position size = %v, want env override 0.25", cfg.Trading.PositionSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load failed on missing file: %v", err)
	}
	if cfg.Trading.Pair != "BTCUSDT" {
		t.Errorf("pair = %q, want default", cfg.Trading.Pair)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty pair", func(c *Config) { c.Trading.Pair = "" }},
		{"zero position size", func(c *Config) { c.Trading.PositionSize = 0 }},
		{"zero max positions", func(c *Config) { c.Trading.MaxPositions = 0 }},
		{"ema fast >= slow", func(c *Config) { c.RsiEma.EmaFast = 21; c.RsiEma.EmaSlow = 9 }},
		{"api without password", func(c *Config) { c.API.ListenAddr = ":8080"; c.API.JWTSecret = "x" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Errorf("validate accepted %s", tc.name)
			}
		})
	}
}
