package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bibot/config"
	"bibot/internal/api"
	"bibot/internal/binance"
	"bibot/internal/bot"
	"bibot/internal/cache"
	"bibot/internal/database"
	"bibot/internal/logging"
	"bibot/internal/strategy"
	"bibot/internal/trading"
	"bibot/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	cleanup := flag.Bool("cleanup", false, "cancel all open orders, clear tracked positions and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	// Credentials from Vault take precedence over config/env when enabled.
	apiKey, secretKey := cfg.Binance.APIKey, cfg.Binance.SecretKey
	if cfg.Vault.Addr != "" {
		creds, err := vault.FetchCredentials(cfg.Vault, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load credentials from Vault")
		}
		apiKey, secretKey = creds.APIKey, creds.SecretKey
	}
	if apiKey == "" || secretKey == "" {
		logger.Fatal().Msg("Binance API credentials not configured")
	}

	client := binance.NewFuturesClient(apiKey, secretKey, cfg.Binance.TestNet, logger)

	var store cache.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		fileStore, err := cache.NewFileStore(logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize position cache")
		}
		store = fileStore
	}

	var recorder trading.TradeRecorder
	if cfg.Database.URL != "" {
		repo, err := database.NewRepository(context.Background(), cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer repo.Close()
		recorder = repo
	}

	strat := strategy.New(cfg, logger)
	orderManager := trading.NewOrderManager(client, cfg.Trading, logger)
	positionManager := trading.NewPositionManager(client, store, recorder, cfg.Trading, logger)
	executor := trading.NewTradingExecutor(client, orderManager, positionManager, cfg.Trading, logger)

	var stream *binance.KlineStream
	if cfg.Trading.LiveFeed {
		stream = binance.NewKlineStream(cfg.Trading.Pair, cfg.Trading.Interval, cfg.Binance.TestNet, logger)
	}

	b := bot.New(cfg, client, strat, executor, positionManager, stream, logger)

	if *cleanup {
		logger.Info().Str("pair", cfg.Trading.Pair).Msg("Running cleanup")
		if err := positionManager.LoadPositions(); err != nil {
			logger.Warn().Err(err).Msg("Failed to load cached positions before cleanup")
		}
		if err := b.Cleanup(); err != nil {
			logger.Fatal().Err(err).Msg("Cleanup failed")
		}
		return
	}

	if err := b.Init(); err != nil {
		logger.Fatal().Err(err).Msg("Bot initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.API.ListenAddr != "" {
		server, err := api.NewServer(cfg.API, executor, positionManager, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize status API")
		}
		go server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Status API shutdown failed")
			}
		}()
	}

	b.Run(ctx)
	logger.Info().Msg("Shutdown complete")
}
