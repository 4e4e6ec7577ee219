package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment runner names accepted by PAYMENT_RUNNER.
const (
	RunnerInline   = "inline"
	RunnerTemporal = "temporal"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Wallet configuration
	WalletID        string
	InitialBalance  decimal.Decimal
	BaseCurrency    string
	TargetCurrency  string
	ExchangeRate    decimal.Decimal
	NoticeTTL       time.Duration
	NoticeTick      time.Duration
	SeedDemoHistory bool

	// Payment configuration
	PaymentAPIURL   string
	PaymentTimeout  time.Duration
	StripeSecretKey string
	PaymentRunner   string

	// NATS configuration. Empty disables events and the SSE stream.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Wallet configuration
	cfg.WalletID = getEnvOrDefault("WALLET_ID", "primary")
	cfg.BaseCurrency = strings.ToUpper(getEnvOrDefault("BASE_CURRENCY", "USD"))
	cfg.TargetCurrency = strings.ToUpper(getEnvOrDefault("TARGET_CURRENCY", "EUR"))

	balance, err := parseDecimal("INITIAL_BALANCE", "1000")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.InitialBalance = balance
	}

	rate, err := parseDecimal("EXCHANGE_RATE", "0.85")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExchangeRate = rate
	}

	ttl, err := parseDuration("NOTICE_TTL", "3s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NoticeTTL = ttl
	}

	tick, err := parseDuration("NOTICE_TICK", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NoticeTick = tick
	}

	seed, err := parseBool("SEED_DEMO_HISTORY", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SeedDemoHistory = seed
	}

	// Payment configuration
	cfg.PaymentAPIURL = os.Getenv("PAYMENT_API_URL")
	if cfg.PaymentAPIURL == "" {
		errs = append(errs, fmt.Errorf("PAYMENT_API_URL is required"))
	}

	timeout, err := parseDuration("PAYMENT_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PaymentTimeout = timeout
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.PaymentRunner = getEnvOrDefault("PAYMENT_RUNNER", RunnerInline)

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "remit-card-payments")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.WalletID == "" {
		errs = append(errs, fmt.Errorf("WalletID is required"))
	}

	if c.InitialBalance.IsNegative() {
		errs = append(errs, fmt.Errorf("InitialBalance must not be negative"))
	}

	if !c.ExchangeRate.IsPositive() {
		errs = append(errs, fmt.Errorf("ExchangeRate must be positive"))
	}

	if len(c.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("BaseCurrency must be a 3-letter ISO 4217 code"))
	}

	if len(c.TargetCurrency) != 3 {
		errs = append(errs, fmt.Errorf("TargetCurrency must be a 3-letter ISO 4217 code"))
	}

	if c.NoticeTTL <= 0 {
		errs = append(errs, fmt.Errorf("NoticeTTL must be positive"))
	}

	if c.NoticeTick <= 0 {
		errs = append(errs, fmt.Errorf("NoticeTick must be positive"))
	}

	if c.PaymentAPIURL == "" {
		errs = append(errs, fmt.Errorf("PaymentAPIURL is required"))
	}

	if c.PaymentTimeout < time.Second {
		errs = append(errs, fmt.Errorf("PaymentTimeout must be at least 1 second"))
	}

	switch c.PaymentRunner {
	case RunnerInline:
	case RunnerTemporal:
		if c.TemporalHost == "" {
			errs = append(errs, fmt.Errorf("TemporalHost is required"))
		}
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("PaymentRunner must be %q or %q, got %q", RunnerInline, RunnerTemporal, c.PaymentRunner))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// CardPaymentsEnabled reports whether a card processor is configured.
func (c *Config) CardPaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseDecimal parses a decimal from an environment variable or uses a default.
func parseDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnvOrDefault(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, value, err)
	}
	return d, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
