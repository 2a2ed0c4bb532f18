package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	ExchangeConfig ExchangeConfig `json:"exchange"`
	ScoringConfig  ScoringConfig  `json:"scoring"`
	RiskConfig     RiskConfig     `json:"risk"`
	TradingConfig  TradingConfig  `json:"trading"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
}

// ServerConfig holds the HTTP API server settings
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ProductionMode  bool     `json:"production_mode"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ShutdownTimeout int      `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level      string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"`
}

// ExchangeConfig holds Binance connection settings. Credentials here
// are a fallback; Vault takes precedence when enabled.
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
	Stream    bool   `json:"stream"` // WebSocket kline stream for latest bars
}

// ScoringConfig holds the consensus parameters for combining
// detector components into a decision.
type ScoringConfig struct {
	Epsilon          float64 `json:"epsilon"`
	Dominance        float64 `json:"dominance"`
	ConsensusPenalty float64 `json:"consensus_penalty"`
	UpperThreshold   float64 `json:"upper_threshold"`
	LowerThreshold   float64 `json:"lower_threshold"`
}

type RiskConfig struct {
	MaxPositionUSDT      float64  `json:"max_position_usdt"`
	MaxTotalExposureUSDT float64  `json:"max_total_exposure_usdt"`
	MaxLeverage          int      `json:"max_leverage"`
	DefaultLeverage      int      `json:"default_leverage"`
	DeniedSymbols        []string `json:"denied_symbols"`

	BreakerEnabled         bool `json:"breaker_enabled"`
	BreakerMaxFailures     int  `json:"breaker_max_failures"`
	BreakerCooldownMinutes int  `json:"breaker_cooldown_minutes"`
}

type TradingConfig struct {
	Enabled       bool     `json:"enabled"`
	DryRun        bool     `json:"dry_run"` // Mock exchange, no real orders
	Symbols       []string `json:"symbols"`
	Timeframe     string   `json:"timeframe"`
	TradeSizeUSDT float64  `json:"trade_size_usdt"`
	MinConfidence float64  `json:"min_confidence"`
	IntervalSec   int      `json:"interval_sec"` // Seconds between pipeline rounds
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for market data caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "false") == "true"
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = splitList(origins)
	}
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Exchange config
	cfg.ExchangeConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.ExchangeConfig.APIKey)
	cfg.ExchangeConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.ExchangeConfig.SecretKey)
	cfg.ExchangeConfig.TestNet = getEnvOrDefault("BINANCE_TESTNET", "false") == "true"
	cfg.ExchangeConfig.Stream = getEnvOrDefault("BINANCE_STREAM", "true") == "true"

	// Scoring config
	cfg.ScoringConfig.Epsilon = getEnvFloatOrDefault("SCORING_EPSILON", defaultFloat(cfg.ScoringConfig.Epsilon, 0.35))
	cfg.ScoringConfig.Dominance = getEnvFloatOrDefault("SCORING_DOMINANCE", defaultFloat(cfg.ScoringConfig.Dominance, 0.85))
	cfg.ScoringConfig.ConsensusPenalty = getEnvFloatOrDefault("SCORING_CONSENSUS_PENALTY", defaultFloat(cfg.ScoringConfig.ConsensusPenalty, 0.60))
	cfg.ScoringConfig.UpperThreshold = getEnvFloatOrDefault("SCORING_UPPER_THRESHOLD", defaultFloat(cfg.ScoringConfig.UpperThreshold, 0.60))
	cfg.ScoringConfig.LowerThreshold = getEnvFloatOrDefault("SCORING_LOWER_THRESHOLD", defaultFloat(cfg.ScoringConfig.LowerThreshold, 0.40))

	// Risk config
	cfg.RiskConfig.MaxPositionUSDT = getEnvFloatOrDefault("RISK_MAX_POSITION_USDT", defaultFloat(cfg.RiskConfig.MaxPositionUSDT, 500))
	cfg.RiskConfig.MaxTotalExposureUSDT = getEnvFloatOrDefault("RISK_MAX_TOTAL_EXPOSURE_USDT", defaultFloat(cfg.RiskConfig.MaxTotalExposureUSDT, 2000))
	cfg.RiskConfig.MaxLeverage = getEnvIntOrDefault("RISK_MAX_LEVERAGE", defaultInt(cfg.RiskConfig.MaxLeverage, 10))
	cfg.RiskConfig.DefaultLeverage = getEnvIntOrDefault("RISK_DEFAULT_LEVERAGE", defaultInt(cfg.RiskConfig.DefaultLeverage, 3))
	if denied := os.Getenv("RISK_DENIED_SYMBOLS"); denied != "" {
		cfg.RiskConfig.DeniedSymbols = splitList(denied)
	}
	cfg.RiskConfig.BreakerEnabled = getEnvOrDefault("CIRCUIT_BREAKER_ENABLED", "true") == "true"
	cfg.RiskConfig.BreakerMaxFailures = getEnvIntOrDefault("CIRCUIT_MAX_FAILURES", defaultInt(cfg.RiskConfig.BreakerMaxFailures, 3))
	cfg.RiskConfig.BreakerCooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", defaultInt(cfg.RiskConfig.BreakerCooldownMinutes, 15))

	// Trading config
	cfg.TradingConfig.Enabled = getEnvOrDefault("TRADING_ENABLED", "true") == "true"
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "false") == "true"
	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		cfg.TradingConfig.Symbols = splitList(symbols)
	}
	if len(cfg.TradingConfig.Symbols) == 0 {
		cfg.TradingConfig.Symbols = []string{"BTCUSDT"}
	}
	cfg.TradingConfig.Timeframe = getEnvOrDefault("TRADING_TIMEFRAME", defaultString(cfg.TradingConfig.Timeframe, "5m"))
	cfg.TradingConfig.TradeSizeUSDT = getEnvFloatOrDefault("TRADING_TRADE_SIZE_USDT", defaultFloat(cfg.TradingConfig.TradeSizeUSDT, 100))
	cfg.TradingConfig.MinConfidence = getEnvFloatOrDefault("TRADING_MIN_CONFIDENCE", defaultFloat(cfg.TradingConfig.MinConfidence, 0.6))
	cfg.TradingConfig.IntervalSec = getEnvIntOrDefault("TRADING_INTERVAL_SEC", defaultInt(cfg.TradingConfig.IntervalSec, 60))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "trading_engine"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "trading-engine"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func defaultString(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultFloat(current, fallback float64) float64 {
	if current != 0 {
		return current
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
