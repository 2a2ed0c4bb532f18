package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"signal-trading-engine/config"
	"signal-trading-engine/internal/api"
	"signal-trading-engine/internal/cache"
	"signal-trading-engine/internal/circuit"
	"signal-trading-engine/internal/combiner"
	"signal-trading-engine/internal/database"
	"signal-trading-engine/internal/detectors"
	"signal-trading-engine/internal/engine"
	"signal-trading-engine/internal/events"
	"signal-trading-engine/internal/exchange"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/pipeline"
	"signal-trading-engine/internal/risk"
	"signal-trading-engine/internal/vault"
	"signal-trading-engine/internal/weights"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	eventBus := events.NewEventBus()

	// Vault holds exchange credentials when enabled; config values are
	// the fallback for development.
	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
		TLSEnabled: cfg.VaultConfig.TLSEnabled,
		CACert:     cfg.VaultConfig.CACert,
	})
	if err != nil {
		logging.Fatal("Failed to create vault client", "error", err)
	}

	apiKey := cfg.ExchangeConfig.APIKey
	secretKey := cfg.ExchangeConfig.SecretKey
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := vaultClient.GetCredentials(ctx, "binance", cfg.ExchangeConfig.TestNet)
		cancel()
		if err != nil {
			logger.Warn("Vault credentials unavailable, using config values", "error", err)
		} else {
			apiKey, secretKey = creds.APIKey, creds.SecretKey
			logger.Info("Exchange credentials loaded from Vault")
		}
	}

	// Exchange client. Dry-run swaps in the mock so the rest of the
	// system runs unchanged without placing real orders.
	var client exchange.Client
	if cfg.TradingConfig.DryRun {
		client = exchange.NewMockClient()
		logger.Info("DRY RUN mode: using mock exchange, no real orders")
	} else {
		client = exchange.NewBinanceClient(apiKey, secretKey, cfg.ExchangeConfig.TestNet, logger)
		logger.Info("Binance client initialized", "testnet", cfg.ExchangeConfig.TestNet)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Market data source, innermost to outermost: REST client, then an
	// optional WebSocket stream for latest bars, then an optional
	// Redis cache.
	var market exchange.MarketDataSource = client

	var stream *exchange.KlineStream
	if cfg.ExchangeConfig.Stream && !cfg.TradingConfig.DryRun {
		stream = exchange.NewKlineStream(cfg.TradingConfig.Symbols, cfg.TradingConfig.Timeframe, market, logger)
		stream.Start(rootCtx)
		market = stream
		logger.Info("Kline stream started", "symbols", len(cfg.TradingConfig.Symbols))
	}

	// Ticker prices always come from the REST client; the cache adds a
	// short-TTL layer in front of it.
	var priceSource api.PriceSource = client

	var marketCache *cache.MarketCache
	if cfg.RedisConfig.Enabled {
		marketCache, err = cache.NewMarketCache(cache.Config{
			Enabled:  cfg.RedisConfig.Enabled,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, market, client, logger)
		if err != nil {
			logging.Fatal("Failed to create market cache", "error", err)
		}
		market = marketCache
		priceSource = marketCache
	}

	// Database is optional; without it orders and amendment history
	// stay in memory only.
	var orderStore engine.OrderStore
	var recorder weights.Recorder
	var orderReader api.OrderReader
	var amendmentReader api.AmendmentReader
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logging.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		if err := db.RunMigrations(rootCtx); err != nil {
			logging.Fatal("Failed to run migrations", "error", err)
		}
		orderRepo := database.NewOrderRepository(db)
		weightRepo := database.NewWeightRepository(db)
		orderStore = orderRepo
		recorder = weightRepo
		orderReader = orderRepo
		amendmentReader = weightRepo
	}

	// Amendment audit trail goes to its own structured stream.
	auditLog := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "weights_audit").
		Logger()
	parliament := weights.NewParliament(auditLog, recorder)

	comb := combiner.New(combiner.Config{
		Epsilon:          cfg.ScoringConfig.Epsilon,
		Dominance:        cfg.ScoringConfig.Dominance,
		ConsensusPenalty: cfg.ScoringConfig.ConsensusPenalty,
		UpperThreshold:   cfg.ScoringConfig.UpperThreshold,
		LowerThreshold:   cfg.ScoringConfig.LowerThreshold,
	})

	guard := risk.NewGuard(risk.Config{
		MaxPositionUSDT:      cfg.RiskConfig.MaxPositionUSDT,
		MaxTotalExposureUSDT: cfg.RiskConfig.MaxTotalExposureUSDT,
		MaxLeverage:          cfg.RiskConfig.MaxLeverage,
		DefaultLeverage:      cfg.RiskConfig.DefaultLeverage,
		DeniedSymbols:        cfg.RiskConfig.DeniedSymbols,
		Breaker: circuit.BreakerConfig{
			Enabled:                cfg.RiskConfig.BreakerEnabled,
			MaxConsecutiveFailures: cfg.RiskConfig.BreakerMaxFailures,
			CooldownMinutes:        cfg.RiskConfig.BreakerCooldownMinutes,
		},
	}, logger)
	guard.Breaker().OnTrip(func(symbol, reason string) {
		logger.Warn("Circuit breaker tripped", "symbol", symbol, "reason", reason)
		eventBus.PublishBreakerTripped(symbol, reason)
	})
	guard.Breaker().OnReset(func(symbol string) {
		logger.Info("Circuit breaker reset", "symbol", symbol)
		eventBus.PublishBreakerReset(symbol)
	})

	runner := detectors.NewRunner(market, detectors.DefaultAdapterTimeout, logger)

	eng := engine.New(market, client, guard, orderStore, eventBus, logger, engine.Config{
		Timeframe:     cfg.TradingConfig.Timeframe,
		TradeSizeUSDT: cfg.TradingConfig.TradeSizeUSDT,
	})

	var pipe *pipeline.Pipeline
	if cfg.TradingConfig.Enabled {
		pipe = pipeline.New(pipeline.Config{
			Enabled:       true,
			Symbols:       cfg.TradingConfig.Symbols,
			Timeframe:     cfg.TradingConfig.Timeframe,
			Interval:      time.Duration(cfg.TradingConfig.IntervalSec) * time.Second,
			MinConfidence: cfg.TradingConfig.MinConfidence,
		}, runner, parliament, comb, eng, eventBus, logger)
		pipe.Start(rootCtx)
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, parliament, comb, runner, eng, guard, eventBus, orderReader, amendmentReader, priceSource, logger)

	go func() {
		if err := server.Start(); err != nil {
			logging.Fatal("API server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}
	if pipe != nil {
		pipe.Stop()
	}
	if stream != nil {
		stream.Stop()
	}
	if marketCache != nil {
		marketCache.Close()
	}

	logger.Info("Shutdown complete")
}
