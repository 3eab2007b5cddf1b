// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/portfolio-tracker/internal/models"
)

// DefaultFallbackPrice is the synthetic reference price for unlisted symbols
const DefaultFallbackPrice = 1000.0

// Refresh interval bounds. Intervals outside are clamped.
const (
	MinRefreshInterval     = 30 * time.Second
	MaxRefreshInterval     = 300 * time.Second
	DefaultRefreshInterval = 60 * time.Second
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Resolver  ResolverConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Refresh   RefreshConfig
	Breaker   BreakerConfig
	Logging   LoggingConfig
	Positions []models.PositionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimitRPS int
	RateBurst    int
}

// ProviderConfig holds market-data provider configuration
type ProviderConfig struct {
	BaseURL           string
	SecondaryURL      string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// ResolverConfig holds retry and fallback tunables
type ResolverConfig struct {
	MaxRetries           int
	RetryDelay           time.Duration
	InterSymbolDelay     time.Duration
	SyntheticFallback    bool
	FallbackPrices       map[string]float64
	DefaultFallbackPrice float64
	Seed                 int64
}

// CacheConfig holds quote cache configuration
type CacheConfig struct {
	Backend string // "memory" or "redis"
	TTL     time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// RefreshConfig holds auto-refresh configuration
type RefreshConfig struct {
	Auto     bool
	Interval time.Duration
}

// BreakerConfig holds provider circuit breaker configuration
type BreakerConfig struct {
	Enabled          bool
	MaxFailures      int
	FailureThreshold float64
	Timeout          time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultPositions is the tracked portfolio when no positions file is given
func DefaultPositions() []models.PositionConfig {
	return []models.PositionConfig{
		{Symbol: "CDSL.NS", Alternates: []string{"CDSL.BO"}, Name: "Central Depository Services Ltd", Quantity: 1},
		{Symbol: "MAZDOCK.NS", Alternates: []string{"MDL.NS", "MAZDOCK.BO"}, Name: "Mazagon Dock Shipbuilders Ltd", Quantity: 1},
		{Symbol: "GRSE.NS", Alternates: []string{"GRSE.BO"}, Name: "Garden Reach Shipbuilders & Engineers Ltd", Quantity: 1},
		{Symbol: "COCHINSHIP.NS", Alternates: []string{"COCHINSHIP.BO"}, Name: "Cochin Shipyard Ltd", Quantity: 1},
	}
}

// DefaultFallbackPrices is the synthetic reference table for the default portfolio
func DefaultFallbackPrices() map[string]float64 {
	return map[string]float64{
		"CDSL.NS":       1500,
		"MAZDOCK.NS":    2800,
		"GRSE.NS":       1700,
		"COCHINSHIP.NS": 1600,
	}
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	fallbackPrices := DefaultFallbackPrices()
	if raw := getEnv("FALLBACK_PRICES", ""); raw != "" {
		parsed, err := ParseFallbackPrices(raw)
		if err != nil {
			return nil, err
		}
		for sym, price := range parsed {
			fallbackPrices[sym] = price
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			RateLimitRPS: getEnvAsInt("API_RATE_LIMIT_RPS", 5),
			RateBurst:    getEnvAsInt("API_RATE_LIMIT_BURST", 10),
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("PROVIDER_BASE_URL", "https://query1.finance.yahoo.com"),
			SecondaryURL:      getEnv("PROVIDER_SECONDARY_URL", "https://query2.finance.yahoo.com"),
			Timeout:           getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_RPS", 2),
			UserAgent:         getEnv("PROVIDER_USER_AGENT", "Mozilla/5.0 (portfolio-tracker)"),
		},
		Resolver: ResolverConfig{
			MaxRetries:           getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:           getEnvAsDuration("RETRY_DELAY", 2*time.Second),
			InterSymbolDelay:     getEnvAsDuration("INTER_SYMBOL_DELAY", time.Second),
			SyntheticFallback:    getEnvAsBool("SYNTHETIC_FALLBACK", true),
			FallbackPrices:       fallbackPrices,
			DefaultFallbackPrice: getEnvAsFloat("DEFAULT_FALLBACK_PRICE", DefaultFallbackPrice),
			Seed:                 int64(getEnvAsInt("SYNTHETIC_SEED", 0)),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			TTL:     getEnvAsDuration("CACHE_TTL", 60*time.Second),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
		},
		Refresh: RefreshConfig{
			Auto:     getEnvAsBool("AUTO_REFRESH", false),
			Interval: ClampRefreshInterval(getEnvAsDuration("REFRESH_INTERVAL", DefaultRefreshInterval)),
		},
		Breaker: BreakerConfig{
			Enabled:          getEnvAsBool("BREAKER_ENABLED", true),
			MaxFailures:      getEnvAsInt("BREAKER_MAX_FAILURES", 12),
			FailureThreshold: getEnvAsFloat("BREAKER_FAILURE_THRESHOLD", 0.9),
			Timeout:          getEnvAsDuration("BREAKER_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Positions: DefaultPositions(),
	}

	if path := getEnv("POSITIONS_FILE", ""); path != "" {
		positions, err := LoadPositionsFile(path)
		if err != nil {
			return nil, err
		}
		config.Positions = positions
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Resolver.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Resolver.MaxRetries)
	}
	if c.Resolver.RetryDelay < 0 || c.Resolver.InterSymbolDelay < 0 {
		return fmt.Errorf("retry and inter-symbol delays cannot be negative")
	}
	if c.Resolver.DefaultFallbackPrice <= 0 {
		return fmt.Errorf("DEFAULT_FALLBACK_PRICE must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory or redis)", c.Cache.Backend)
	}
	return models.ValidatePositions(c.Positions)
}

// FallbackPrice returns the synthetic reference price for a symbol
func (r ResolverConfig) FallbackPrice(symbol string) float64 {
	if p, ok := r.FallbackPrices[symbol]; ok && p > 0 {
		return p
	}
	if r.DefaultFallbackPrice > 0 {
		return r.DefaultFallbackPrice
	}
	return DefaultFallbackPrice
}

// ClampRefreshInterval keeps an auto-refresh interval inside the safe bounds
func ClampRefreshInterval(d time.Duration) time.Duration {
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	if d > MaxRefreshInterval {
		return MaxRefreshInterval
	}
	return d
}

// ParseFallbackPrices parses "SYM=price,SYM=price"
func ParseFallbackPrices(raw string) (map[string]float64, error) {
	prices := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid FALLBACK_PRICES entry %q (want SYMBOL=price)", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid fallback price for %s: %q", sym, val)
		}
		prices[strings.TrimSpace(sym)] = price
	}
	return prices, nil
}

// LoadPositionsFile reads a JSON array of positions
func LoadPositionsFile(path string) ([]models.PositionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions file: %w", err)
	}
	var positions []models.PositionConfig
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to parse positions file %s: %w", path, err)
	}
	if err := models.ValidatePositions(positions); err != nil {
		return nil, fmt.Errorf("invalid positions file %s: %w", path, err)
	}
	return positions, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
