package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"dai-trader/internal/errs"
)

// Duration is a time.Duration that reads "5m" style strings from JSON and TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	BinanceConfig        BinanceConfig        `json:"binance" toml:"binance"`
	TradingConfig        TradingConfig        `json:"trading" toml:"trading"`
	RiskConfig           RiskConfig           `json:"risk" toml:"risk"`
	LedgerConfig         LedgerConfig         `json:"ledger" toml:"ledger"`
	AgentConfig          AgentConfig          `json:"agent" toml:"agent"`
	SignalsConfig        SignalsConfig        `json:"signals" toml:"signals"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker" toml:"circuit_breaker"`
	NotificationConfig   NotificationConfig   `json:"notification" toml:"notification"`
	LoggingConfig        LoggingConfig        `json:"logging" toml:"logging"`
	StorageConfig        StorageConfig        `json:"storage" toml:"storage"`
	ServerConfig         ServerConfig         `json:"server" toml:"server"`
	AuthConfig           AuthConfig           `json:"auth" toml:"auth"`
	VaultConfig          VaultConfig          `json:"vault" toml:"vault"`
	RedisConfig          RedisConfig          `json:"redis" toml:"redis"`
	DatabaseConfig       DatabaseConfig       `json:"database" toml:"database"`
}

// BinanceConfig holds exchange access. Keys may instead come from Vault.
type BinanceConfig struct {
	APIKey    string `json:"api_key" toml:"api_key"`
	SecretKey string `json:"secret_key" toml:"secret_key"`
	TestNet   bool   `json:"testnet" toml:"testnet"`
	Quote     string `json:"quote" toml:"quote"` // quote asset for spot balances, e.g. USDT
	Mock      bool   `json:"mock" toml:"mock"`   // simulated exchange, paper mode only
}

// TradingConfig controls the decision cycle
type TradingConfig struct {
	Mode            string   `json:"mode" toml:"mode"` // "paper" or "live"
	Watchlist       []string `json:"watchlist" toml:"watchlist"`
	MaxPositions    int      `json:"max_positions" toml:"max_positions"`
	CycleInterval   Duration `json:"cycle_interval" toml:"cycle_interval"`
	BarInterval     string   `json:"bar_interval" toml:"bar_interval"`
	BarLookback     int      `json:"bar_lookback" toml:"bar_lookback"`
	PaperCash       float64  `json:"paper_cash" toml:"paper_cash"`
	DefaultStrategy string   `json:"default_strategy" toml:"default_strategy"`
	FetchParallel   int      `json:"fetch_parallel" toml:"fetch_parallel"`
}

// RiskConfig holds per-position and per-day limits. Fractions, not percents.
type RiskConfig struct {
	MaxPositionFraction  float64 `json:"max_position_fraction" toml:"max_position_fraction"`
	MaxDailyLossFraction float64 `json:"max_daily_loss_fraction" toml:"max_daily_loss_fraction"`
	UseStopLoss          bool    `json:"use_stop_loss" toml:"use_stop_loss"`
	StopLossPct          float64 `json:"stop_loss_pct" toml:"stop_loss_pct"`
	UseTakeProfit        bool    `json:"use_take_profit" toml:"use_take_profit"`
	TakeProfitPct        float64 `json:"take_profit_pct" toml:"take_profit_pct"`
	TrailingStopPct      float64 `json:"trailing_stop_pct" toml:"trailing_stop_pct"`
	EmergencyStopPct     float64 `json:"emergency_stop_pct" toml:"emergency_stop_pct"`
}

// LedgerConfig configures principal protection
type LedgerConfig struct {
	InitialPrincipal  float64 `json:"initial_principal" toml:"initial_principal"`
	DistributionShare float64 `json:"distribution_share" toml:"distribution_share"`
}

// AgentConfig configures the Q-learning agent and strategy selector
type AgentConfig struct {
	LearningRate     float64 `json:"learning_rate" toml:"learning_rate"`
	DiscountFactor   float64 `json:"discount_factor" toml:"discount_factor"`
	Epsilon          float64 `json:"epsilon" toml:"epsilon"`
	EvaluationPeriod int     `json:"evaluation_period" toml:"evaluation_period"`
	Seed             int64   `json:"seed" toml:"seed"`
}

// SignalsConfig configures the intelligence sources
type SignalsConfig struct {
	CacheTTL          Duration `json:"cache_ttl" toml:"cache_ttl"`
	ContextTTL        Duration `json:"context_ttl" toml:"context_ttl"`
	SourceTimeout     Duration `json:"source_timeout" toml:"source_timeout"`
	CryptoFromBinance bool     `json:"crypto_from_binance" toml:"crypto_from_binance"`
	// ContextFile is a JSON document with macro, economic and crypto
	// contexts and per-symbol signals. Without it those sources read neutral.
	ContextFile string `json:"context_file" toml:"context_file"`
}

type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled" toml:"enabled"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" toml:"max_consecutive_losses"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour" toml:"max_loss_per_hour"` // percent of account
	MaxDailyTrades       int     `json:"max_daily_trades" toml:"max_daily_trades"`
	CooldownMinutes      int     `json:"cooldown_minutes" toml:"cooldown_minutes"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled" toml:"enabled"`
	Telegram TelegramConfig `json:"telegram" toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	BotToken string `json:"bot_token" toml:"bot_token"`
	ChatID   int64  `json:"chat_id" toml:"chat_id"`
}

type LoggingConfig struct {
	Level       string `json:"level" toml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" toml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" toml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" toml:"include_file"` // Include file and line number
}

// StorageConfig picks where learned and ledger state is persisted
type StorageConfig struct {
	Backend    string `json:"backend" toml:"backend"` // memory, sqlite, postgres, redis
	SQLitePath string `json:"sqlite_path" toml:"sqlite_path"`
	KeyPrefix  string `json:"key_prefix" toml:"key_prefix"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled" toml:"enabled"`
	Port            int    `json:"port" toml:"port"`
	Host            string `json:"host" toml:"host"`
	AllowedOrigins  string `json:"allowed_origins" toml:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout" toml:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" toml:"write_timeout"`       // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" toml:"shutdown_timeout"` // Seconds
}

// AuthConfig protects the status API with bearer tokens
type AuthConfig struct {
	Enabled   bool   `json:"enabled" toml:"enabled"`
	JWTSecret string `json:"jwt_secret" toml:"jwt_secret"`
	Issuer    string `json:"issuer" toml:"issuer"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" toml:"enabled"`
	Address    string `json:"address" toml:"address"`
	Token      string `json:"token" toml:"token"`
	MountPath  string `json:"mount_path" toml:"mount_path"`   // KV secrets engine mount path
	SecretPath string `json:"secret_path" toml:"secret_path"` // Path of the broker credentials
	TLSEnabled bool   `json:"tls_enabled" toml:"tls_enabled"`
	CACert     string `json:"ca_cert" toml:"ca_cert"`
}

// RedisConfig holds Redis configuration for the signal cache and state store
type RedisConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Address  string `json:"address" toml:"address"`
	Password string `json:"password" toml:"password"`
	DB       int    `json:"db" toml:"db"`
	PoolSize int    `json:"pool_size" toml:"pool_size"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host" toml:"host"`
	Port     int    `json:"port" toml:"port"`
	User     string `json:"user" toml:"user"`
	Password string `json:"password" toml:"password"`
	Database string `json:"database" toml:"database"`
	SSLMode  string `json:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `json:"max_conns" toml:"max_conns"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{Quote: "USDT"},
		TradingConfig: TradingConfig{
			Mode:            "paper",
			Watchlist:       []string{"SOLUSDT", "LINKUSDT", "AVAXUSDT", "XRPUSDT", "ADAUSDT"},
			MaxPositions:    5,
			CycleInterval:   Duration(5 * time.Minute),
			BarInterval:     "15m",
			BarLookback:     100,
			PaperCash:       100000,
			DefaultStrategy: "momentum",
			FetchParallel:   4,
		},
		RiskConfig: RiskConfig{
			MaxPositionFraction:  0.10,
			MaxDailyLossFraction: 0.02,
			UseStopLoss:          true,
			StopLossPct:          0.02,
			UseTakeProfit:        true,
			TakeProfitPct:        0.04,
			TrailingStopPct:      0.02,
			EmergencyStopPct:     0.05,
		},
		LedgerConfig: LedgerConfig{DistributionShare: 0.40},
		AgentConfig: AgentConfig{
			LearningRate:     0.1,
			DiscountFactor:   0.95,
			Epsilon:          0.2,
			EvaluationPeriod: 20,
		},
		SignalsConfig: SignalsConfig{
			CacheTTL:      Duration(15 * time.Minute),
			ContextTTL:    Duration(time.Hour),
			SourceTimeout: Duration(10 * time.Second),
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:              true,
			MaxConsecutiveLosses: 5,
			MaxLossPerHour:       3.0,
			MaxDailyTrades:       50,
			CooldownMinutes:      30,
		},
		LoggingConfig: LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
		StorageConfig: StorageConfig{Backend: "sqlite", SQLitePath: "dai-trader.db", KeyPrefix: "dai"},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{Issuer: "dai-trader"},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "dai-trader/broker",
		},
		RedisConfig: RedisConfig{Address: "localhost:6379", PoolSize: 10},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "trader",
			Database: "trading_bot",
			SSLMode:  "disable",
			MaxConns: 10,
		},
	}
}

// Load builds the configuration from defaults, an optional config file
// (CONFIG_FILE, else config.toml or config.json), a .env file, and the
// environment, in increasing precedence.
func Load() (*Config, error) {
	// A missing .env is fine; anything else in it is not.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		for _, candidate := range []string{"config.toml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// The current value is the default so the file keeps precedence over
// unset variables.
func applyEnvOverrides(cfg *Config) {
	// Binance
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.Quote = getEnvOrDefault("BINANCE_QUOTE_ASSET", cfg.BinanceConfig.Quote)
	cfg.BinanceConfig.Mock = getEnvBoolOrDefault("BINANCE_MOCK", cfg.BinanceConfig.Mock)

	// Trading
	cfg.TradingConfig.Mode = getEnvOrDefault("TRADING_MODE", cfg.TradingConfig.Mode)
	if wl := os.Getenv("TRADING_WATCHLIST"); wl != "" {
		cfg.TradingConfig.Watchlist = splitList(wl)
	}
	cfg.TradingConfig.MaxPositions = getEnvIntOrDefault("TRADING_MAX_POSITIONS", cfg.TradingConfig.MaxPositions)
	cfg.TradingConfig.CycleInterval = Duration(getEnvDurationOrDefault("TRADING_CYCLE_INTERVAL", cfg.TradingConfig.CycleInterval.Std()))
	cfg.TradingConfig.BarInterval = getEnvOrDefault("TRADING_BAR_INTERVAL", cfg.TradingConfig.BarInterval)
	cfg.TradingConfig.PaperCash = getEnvFloatOrDefault("TRADING_PAPER_CASH", cfg.TradingConfig.PaperCash)
	cfg.TradingConfig.DefaultStrategy = getEnvOrDefault("TRADING_DEFAULT_STRATEGY", cfg.TradingConfig.DefaultStrategy)

	// Risk
	cfg.RiskConfig.MaxPositionFraction = getEnvFloatOrDefault("RISK_MAX_POSITION_FRACTION", cfg.RiskConfig.MaxPositionFraction)
	cfg.RiskConfig.MaxDailyLossFraction = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS_FRACTION", cfg.RiskConfig.MaxDailyLossFraction)
	cfg.RiskConfig.StopLossPct = getEnvFloatOrDefault("RISK_STOP_LOSS_PCT", cfg.RiskConfig.StopLossPct)
	cfg.RiskConfig.TakeProfitPct = getEnvFloatOrDefault("RISK_TAKE_PROFIT_PCT", cfg.RiskConfig.TakeProfitPct)
	cfg.RiskConfig.TrailingStopPct = getEnvFloatOrDefault("RISK_TRAILING_STOP_PCT", cfg.RiskConfig.TrailingStopPct)

	// Ledger
	cfg.LedgerConfig.InitialPrincipal = getEnvFloatOrDefault("LEDGER_INITIAL_PRINCIPAL", cfg.LedgerConfig.InitialPrincipal)

	// Agent
	cfg.AgentConfig.Epsilon = getEnvFloatOrDefault("AGENT_EPSILON", cfg.AgentConfig.Epsilon)
	cfg.AgentConfig.Seed = int64(getEnvIntOrDefault("AGENT_SEED", int(cfg.AgentConfig.Seed)))

	// Signals
	cfg.SignalsConfig.CacheTTL = Duration(getEnvDurationOrDefault("SIGNALS_CACHE_TTL", cfg.SignalsConfig.CacheTTL.Std()))
	cfg.SignalsConfig.CryptoFromBinance = getEnvBoolOrDefault("SIGNALS_CRYPTO_FROM_BINANCE", cfg.SignalsConfig.CryptoFromBinance)
	cfg.SignalsConfig.ContextFile = getEnvOrDefault("SIGNALS_CONTEXT_FILE", cfg.SignalsConfig.ContextFile)

	// Circuit breaker
	cfg.CircuitBreakerConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerConfig.Enabled)
	cfg.CircuitBreakerConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cfg.CircuitBreakerConfig.MaxConsecutiveLosses)
	cfg.CircuitBreakerConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", cfg.CircuitBreakerConfig.CooldownMinutes)

	// Notification
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = int64(getEnvIntOrDefault("TELEGRAM_CHAT_ID", int(cfg.NotificationConfig.Telegram.ChatID)))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Storage
	cfg.StorageConfig.Backend = getEnvOrDefault("STORAGE_BACKEND", cfg.StorageConfig.Backend)
	cfg.StorageConfig.SQLitePath = getEnvOrDefault("STORAGE_SQLITE_PATH", cfg.StorageConfig.SQLitePath)

	// Server
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
}

// Validate rejects configurations the engine must never start with.
// Credentials are only required in live mode and only when Vault is not
// supplying them.
func (c *Config) Validate() error {
	t := c.TradingConfig
	switch t.Mode {
	case "paper", "live":
	default:
		return errs.Config("trading.mode must be paper or live, got %q", t.Mode)
	}
	if len(t.Watchlist) == 0 {
		return errs.Config("trading.watchlist is empty")
	}
	if t.MaxPositions <= 0 {
		return errs.Config("trading.max_positions must be positive")
	}
	if t.CycleInterval <= 0 {
		return errs.Config("trading.cycle_interval must be positive")
	}
	if t.Mode == "paper" && t.PaperCash <= 0 {
		return errs.Config("trading.paper_cash must be positive in paper mode")
	}
	if t.Mode == "live" && c.BinanceConfig.Mock {
		return errs.Config("binance.mock cannot be used in live mode")
	}
	if t.Mode == "live" && !c.VaultConfig.Enabled &&
		(c.BinanceConfig.APIKey == "" || c.BinanceConfig.SecretKey == "") {
		return errs.Config("broker credentials missing: set BINANCE_API_KEY/BINANCE_SECRET_KEY or enable vault")
	}

	r := c.RiskConfig
	for name, v := range map[string]float64{
		"risk.max_position_fraction":   r.MaxPositionFraction,
		"risk.max_daily_loss_fraction": r.MaxDailyLossFraction,
		"risk.stop_loss_pct":           r.StopLossPct,
		"risk.take_profit_pct":         r.TakeProfitPct,
		"risk.trailing_stop_pct":       r.TrailingStopPct,
		"risk.emergency_stop_pct":      r.EmergencyStopPct,
	} {
		if v <= 0 || v >= 1 {
			return errs.Config("%s must be in (0,1), got %v", name, v)
		}
	}

	if s := c.LedgerConfig.DistributionShare; s < 0 || s > 1 {
		return errs.Config("ledger.distribution_share must be in [0,1], got %v", s)
	}
	if c.LedgerConfig.InitialPrincipal < 0 {
		return errs.Config("ledger.initial_principal must not be negative")
	}

	a := c.AgentConfig
	if a.LearningRate <= 0 || a.LearningRate > 1 {
		return errs.Config("agent.learning_rate must be in (0,1]")
	}
	if a.DiscountFactor < 0 || a.DiscountFactor > 1 {
		return errs.Config("agent.discount_factor must be in [0,1]")
	}
	if a.Epsilon < 0 || a.Epsilon > 1 {
		return errs.Config("agent.epsilon must be in [0,1]")
	}
	if a.EvaluationPeriod <= 0 {
		return errs.Config("agent.evaluation_period must be positive")
	}

	switch c.StorageConfig.Backend {
	case "memory", "sqlite":
	case "postgres":
	case "redis":
		if !c.RedisConfig.Enabled {
			return errs.Config("storage.backend redis requires redis.enabled")
		}
	default:
		return errs.Config("unknown storage.backend %q", c.StorageConfig.Backend)
	}

	if c.AuthConfig.Enabled && len(c.AuthConfig.JWTSecret) < 32 {
		return errs.Config("auth.jwt_secret must be at least 32 characters")
	}
	if c.NotificationConfig.Telegram.Enabled &&
		(c.NotificationConfig.Telegram.BotToken == "" || c.NotificationConfig.Telegram.ChatID == 0) {
		return errs.Config("telegram enabled without bot_token/chat_id")
	}
	return nil
}

// IsPaper reports whether orders go to the in-memory paper broker.
func (c *Config) IsPaper() bool {
	return c.TradingConfig.Mode == "paper"
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		err = toml.Unmarshal(file, cfg)
	default:
		err = json.Unmarshal(file, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
