package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the bot. It is loaded once at startup
// and passed explicitly to every component constructor.
type Config struct {
	Binance  BinanceConfig  `json:"binance"`
	Trading  TradingConfig  `json:"trading"`
	RsiEma   RsiEmaConfig   `json:"rsi_ema"`
	Redis    RedisConfig    `json:"redis"`
	Database DatabaseConfig `json:"database"`
	Vault    VaultConfig    `json:"vault"`
	API      APIConfig      `json:"api"`
	Logging  LoggingConfig  `json:"logging"`
}

// BinanceConfig holds Binance Futures API credentials
type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
}

// TradingConfig holds the trading parameters for the single configured pair
type TradingConfig struct {
	Pair                string  `json:"pair"`
	PositionSize        float64 `json:"position_size"`
	Leverage            int     `json:"leverage"`
	TakeProfitPct       float64 `json:"take_profit_percentage"`
	StopLossPct         float64 `json:"stop_loss_percentage"`
	MaxPositions        int     `json:"max_positions"`
	Strategy            string  `json:"strategy"`
	Interval            string  `json:"interval"`
	KlineLimit          int     `json:"kline_limit"`
	MinTradeIntervalSec int     `json:"min_trade_interval"`       // Minimum seconds between trades
	CheckPositionsSec   int     `json:"check_positions_interval"` // Seconds between reconciliation passes
	LiveFeed            bool    `json:"live_feed"`                // Subscribe to the kline websocket stream
}

// RsiEmaConfig holds parameters for the RSI+EMA strategy
type RsiEmaConfig struct {
	RsiPeriod     int     `json:"rsi_period"`
	RsiOverbought float64 `json:"rsi_overbought"`
	RsiOversold   float64 `json:"rsi_oversold"`
	EmaFast       int     `json:"ema_fast"`
	EmaSlow       int     `json:"ema_slow"`
}

// RedisConfig selects the Redis-backed position store when Addr is set
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DatabaseConfig enables the Postgres trade-history repository when URL is set
type DatabaseConfig struct {
	URL string `json:"url"`
}

// VaultConfig enables loading Binance credentials from Vault when Addr is set
type VaultConfig struct {
	Addr       string `json:"addr"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
}

// APIConfig enables the HTTP status server when ListenAddr is set
type APIConfig struct {
	ListenAddr      string   `json:"listen_addr"`
	Password        string   `json:"password"`
	JWTSecret       string   `json:"jwt_secret"`
	TokenTTLMinutes int      `json:"token_ttl_minutes"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console writer
}

// Load reads configuration from an optional JSON file, then applies
// environment variable overrides. A .env file in the working directory is
// honored before the environment is read.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Binance: BinanceConfig{
			TestNet: true,
		},
		Trading: TradingConfig{
			Pair:                "BTCUSDT",
			PositionSize:        0.01,
			Leverage:            5,
			TakeProfitPct:       0.1,
			StopLossPct:         0.05,
			MaxPositions:        3,
			Strategy:            "RSI_EMA",
			Interval:            "1m",
			KlineLimit:          100,
			MinTradeIntervalSec: 60,
			CheckPositionsSec:   30,
		},
		RsiEma: RsiEmaConfig{
			RsiPeriod:     14,
			RsiOverbought: 60,
			RsiOversold:   40,
			EmaFast:       9,
			EmaSlow:       21,
		},
		Vault: VaultConfig{
			SecretPath: "secret/data/bibot/binance",
		},
		API: APIConfig{
			TokenTTLMinutes: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Binance.APIKey, "BINANCE_API_KEY")
	setString(&cfg.Binance.SecretKey, "BINANCE_API_SECRET")
	setBool(&cfg.Binance.TestNet, "USE_TESTNET")

	setString(&cfg.Trading.Pair, "TRADING_PAIR")
	setFloat(&cfg.Trading.PositionSize, "POSITION_SIZE")
	setInt(&cfg.Trading.Leverage, "LEVERAGE")
	setFloat(&cfg.Trading.TakeProfitPct, "TAKE_PROFIT_PERCENTAGE")
	setFloat(&cfg.Trading.StopLossPct, "STOP_LOSS_PERCENTAGE")
	setInt(&cfg.Trading.MaxPositions, "MAX_POSITIONS")
	setString(&cfg.Trading.Strategy, "STRATEGY")
	setString(&cfg.Trading.Interval, "KLINE_INTERVAL")
	setBool(&cfg.Trading.LiveFeed, "LIVE_FEED")

	setInt(&cfg.RsiEma.RsiPeriod, "RSI_PERIOD")
	setFloat(&cfg.RsiEma.RsiOverbought, "RSI_OVERBOUGHT")
	setFloat(&cfg.RsiEma.RsiOversold, "RSI_OVERSOLD")
	setInt(&cfg.RsiEma.EmaFast, "EMA_FAST")
	setInt(&cfg.RsiEma.EmaSlow, "EMA_SLOW")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.Database.URL, "DATABASE_URL")

	setString(&cfg.Vault.Addr, "VAULT_ADDR")
	setString(&cfg.Vault.Token, "VAULT_TOKEN")
	setString(&cfg.Vault.SecretPath, "VAULT_SECRET_PATH")

	setString(&cfg.API.ListenAddr, "API_LISTEN_ADDR")
	setString(&cfg.API.Password, "API_PASSWORD")
	setString(&cfg.API.JWTSecret, "JWT_SECRET")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setBool(&cfg.Logging.JSONFormat, "LOG_JSON")
}

func (c *Config) validate() error {
	if c.Trading.Pair == "" {
		return fmt.Errorf("trading pair must not be empty")
	}
	if c.Trading.PositionSize <= 0 {
		return fmt.Errorf("position size must be positive, got %v", c.Trading.PositionSize)
	}
	if c.Trading.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", c.Trading.Leverage)
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.TakeProfitPct <= 0 {
		return fmt.Errorf("stop loss and take profit percentages must be positive")
	}
	if c.RsiEma.EmaFast >= c.RsiEma.EmaSlow {
		return fmt.Errorf("ema_fast (%d) must be smaller than ema_slow (%d)", c.RsiEma.EmaFast, c.RsiEma.EmaSlow)
	}
	if c.API.ListenAddr != "" {
		if c.API.Password == "" {
			return fmt.Errorf("api password required when the status server is enabled")
		}
		if c.API.JWTSecret == "" {
			return fmt.Errorf("jwt secret required when the status server is enabled")
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
