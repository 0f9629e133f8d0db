// Package config implements settings & secrets (C1): a single typed
// configuration loaded from the environment, no per-user vault, no config
// file. Grounded on the teacher's config.Load/applyEnvOverrides idiom
// (getEnvOrDefault-style helpers), trimmed to the single-operator
// perpetuals engine this module runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects how aggressively the engine touches the exchange.
type Environment string

const (
	EnvironmentDryRun  Environment = "DRY_RUN"
	EnvironmentTestnet Environment = "TESTNET"
	EnvironmentLive    Environment = "LIVE"
)

// ExchangeConfig holds the signed-REST credentials and endpoint.
type ExchangeConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Testnet   bool
}

// StateStoreConfig configures the Redis-backed state store (C13).
type StateStoreConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	PoolSize int
}

// NotifierConfig configures the outbound notification channel.
type NotifierConfig struct {
	Token  string
	ChatID string
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TradingConfig holds the trading parameters spec.md names explicitly.
type TradingConfig struct {
	Symbols                    []string
	Leverage                   int
	MaxPositions               int
	MaxPositionSizeUSDT        float64
	MaxDrawdownPct             float64
	DailyLossLimitPct          float64
	StopLossATRMultiplier      float64
	ActivationThreshold        float64
	TrailingStopActivationPct  float64
	BreakEvenPct               float64
	TrailingStopRate           float64
	RiskPerTradePct            float64
	MinQuantityUSDT            float64
	MinADX                     float64
	MaxCorrelationExposurePct  float64
	DryRun                     bool
	Timeframe                  string
}

// Config is the complete settings surface of the engine.
type Config struct {
	Environment Environment
	Exchange    ExchangeConfig
	StateStore  StateStoreConfig
	Notifier    NotifierConfig
	Logging     LoggingConfig
	Trading     TradingConfig
}

// Load reads Config from the process environment.
func Load() (*Config, error) {
	env := Environment(getEnvOrDefault("ENVIRONMENT", string(EnvironmentDryRun)))
	switch env {
	case EnvironmentDryRun, EnvironmentTestnet, EnvironmentLive:
	default:
		return nil, fmt.Errorf("config: invalid ENVIRONMENT %q", env)
	}

	cfg := &Config{
		Environment: env,
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
			BaseURL:   getEnvOrDefault("BINANCE_BASE_URL", defaultBaseURL(env)),
			Testnet:   env == EnvironmentTestnet,
		},
		StateStore: StateStoreConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvIntOrDefault("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
			TTL:      getEnvDurationOrDefault("REDIS_STATE_TTL", 24*time.Hour),
			PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10),
		},
		Notifier: NotifierConfig{
			Token:  os.Getenv("NOTIFIER_TOKEN"),
			ChatID: os.Getenv("NOTIFIER_CHAT_ID"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Trading: TradingConfig{
			Symbols:                   splitSymbols(getEnvOrDefault("TRADING_SYMBOLS", "BTCUSDT")),
			Leverage:                  getEnvIntOrDefault("LEVERAGE", 5),
			MaxPositions:              getEnvIntOrDefault("MAX_POSITIONS", 5),
			MaxPositionSizeUSDT:       getEnvFloatOrDefault("MAX_POSITION_SIZE_USDT", 1000),
			MaxDrawdownPct:            getEnvFloatOrDefault("MAX_DRAWDOWN_PCT", 15.0),
			DailyLossLimitPct:         getEnvFloatOrDefault("DAILY_LOSS_LIMIT_PCT", 3.0),
			StopLossATRMultiplier:     getEnvFloatOrDefault("STOP_LOSS_ATR_MULTIPLIER", 2.0),
			ActivationThreshold:       getEnvFloatOrDefault("ACTIVATION_THRESHOLD", 0.7),
			TrailingStopActivationPct: getEnvFloatOrDefault("TRAILING_STOP_ACTIVATION_PCT", 1.0),
			BreakEvenPct:              getEnvFloatOrDefault("BREAK_EVEN_PCT", 0.5),
			TrailingStopRate:          getEnvFloatOrDefault("TRAILING_STOP_RATE", 0.3),
			RiskPerTradePct:           getEnvFloatOrDefault("RISK_PER_TRADE_PCT", 1.0),
			MinQuantityUSDT:           getEnvFloatOrDefault("MIN_QUANTITY_USDT", 10.0),
			MinADX:                    getEnvFloatOrDefault("MIN_ADX", 20.0),
			MaxCorrelationExposurePct: getEnvFloatOrDefault("MAX_CORRELATION_EXPOSURE_PCT", 50.0),
			DryRun:                    env == EnvironmentDryRun,
			Timeframe:                 getEnvOrDefault("TRADING_TIMEFRAME", "5m"),
		},
	}

	if cfg.Environment != EnvironmentDryRun {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "" {
			return nil, fmt.Errorf("config: BINANCE_API_KEY and BINANCE_SECRET_KEY are required outside DRY_RUN")
		}
	}

	return cfg, nil
}

func defaultBaseURL(env Environment) string {
	if env == EnvironmentTestnet {
		return "https://testnet.binancefuture.com"
	}
	return "https://fapi.binance.com"
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
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
