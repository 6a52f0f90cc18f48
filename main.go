package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"dai-trader/config"
	"dai-trader/internal/api"
	"dai-trader/internal/auth"
	"dai-trader/internal/binance"
	"dai-trader/internal/broker"
	"dai-trader/internal/cache"
	"dai-trader/internal/engine"
	"dai-trader/internal/events"
	"dai-trader/internal/logging"
	"dai-trader/internal/market"
	"dai-trader/internal/notification"
	"dai-trader/internal/signals"
	"dai-trader/internal/storage"
	"dai-trader/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	// Notifications ride on the event bus
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager()
		if cfg.NotificationConfig.Telegram.Enabled {
			telegram, err := notification.NewTelegramNotifier(cfg.NotificationConfig.Telegram)
			if err != nil {
				logger.Fatal("failed to initialize telegram", "error", err)
			}
			notifyManager.AddNotifier(telegram)
			logger.Info("Telegram notifications enabled", "chat_id", cfg.NotificationConfig.Telegram.ChatID)
		}
		notifyManager.Attach(eventBus)
	}

	// Broker credentials may live in Vault
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("failed to initialize vault", "error", err)
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.ResolveCredentials(ctx, cfg); err != nil && !cfg.IsPaper() {
			logger.Fatal("failed to resolve broker credentials", "error", err)
		}
	}

	// Signal cache: Redis when configured, otherwise in process
	var (
		signalCache cache.Cache = cache.NewMemory()
		redisClient *redis.Client
		redisCache  *cache.RedisCache
	)
	if cfg.RedisConfig.Enabled {
		redisCache, err = cache.NewRedis(cfg.RedisConfig)
		if err != nil {
			logger.Fatal("failed to initialize redis", "error", err)
		}
		signalCache = redisCache
		redisClient = redisCache.Client()
	}

	store, err := storage.Open(ctx, cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to open state store", "backend", cfg.StorageConfig.Backend, "error", err)
	}

	var exchange binance.BinanceClient
	if cfg.BinanceConfig.Mock {
		exchange = binance.NewMockClient(cfg.AgentConfig.Seed)
		logger.Warn("using simulated exchange data")
	} else {
		exchange = binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey, cfg.BinanceConfig.TestNet)
	}

	var spot *broker.Spot
	if cfg.IsPaper() {
		spot = broker.NewPaper(exchange, cfg.TradingConfig.PaperCash, broker.WithQuote(cfg.BinanceConfig.Quote))
	} else {
		spot = broker.NewLive(exchange, broker.WithQuote(cfg.BinanceConfig.Quote))
		logger.Warn("LIVE trading enabled", "testnet", cfg.BinanceConfig.TestNet)
	}

	collector := signals.NewCollector(signals.CollectorConfig{
		Prefix:     cfg.StorageConfig.KeyPrefix + ":signals",
		SignalTTL:  cfg.SignalsConfig.CacheTTL.Std(),
		ContextTTL: cfg.SignalsConfig.ContextTTL.Std(),
		Timeout:    cfg.SignalsConfig.SourceTimeout.Std(),
	}, signalCache)
	if cfg.SignalsConfig.CryptoFromBinance {
		collector.SetCryptoProvider(signals.NewBinanceCrypto(exchange))
	}
	if path := cfg.SignalsConfig.ContextFile; path != "" {
		file, err := signals.OpenFile(path)
		if err != nil {
			logger.Fatal("failed to read signal context file", "path", path, "error", err)
		}
		if err := file.Attach(collector, cfg.SignalsConfig.CryptoFromBinance); err != nil {
			logger.Fatal("failed to attach signal context file", "path", path, "error", err)
		}
		logger.Info("signal context file attached", "path", path, "sources", file.Sources())
	} else {
		logger.Warn("no signal context file, external sources read neutral")
	}

	trader, err := engine.New(cfg, engine.Deps{
		Market:  market.NewBinanceData(exchange),
		Broker:  spot,
		Store:   store,
		Signals: collector,
		Bus:     eventBus,
	})
	if err != nil {
		logger.Fatal("failed to create engine", "error", err)
	}

	// Partial restores still start; the missing parts begin fresh.
	if err := trader.Restore(ctx); err != nil {
		logger.Error("state restore incomplete", "error", err)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		gin.SetMode(gin.ReleaseMode)
		opts := []api.Option{api.WithEventBus(eventBus), api.WithLogger(logging.WithComponent("api"))}
		if cfg.AuthConfig.Enabled {
			opts = append(opts, api.WithAuth(auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)))
		}
		if vaultClient.IsEnabled() {
			opts = append(opts, api.WithHealthCheck("vault", vaultClient.Health))
		}
		if redisCache != nil {
			opts = append(opts, api.WithHealthCheck("redis", redisCache.Ping))
		}
		server = api.NewServer(cfg.ServerConfig, trader, opts...)

		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server stopped", "error", err)
			}
		}()
	}

	if err := trader.Start(ctx); err != nil {
		logger.Fatal("failed to start engine", "error", err)
	}
	logger.Info("dai-trader running",
		"mode", cfg.TradingConfig.Mode,
		"watchlist", strings.Join(cfg.TradingConfig.Watchlist, ","),
		"backend", cfg.StorageConfig.Backend,
		"interval", cfg.TradingConfig.CycleInterval.Std().String(),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(max(cfg.ServerConfig.ShutdownTimeout, 5))*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down web server", "error", err)
		}
	}

	// Stop waits for an in-flight cycle before the final save.
	trader.Stop()
	cancel()

	if err := trader.Save(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("failed to save state", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to close state store", "error", err)
	}
	if redisCache != nil {
		redisCache.Close()
	}

	logger.Info("Shutdown complete")
}
