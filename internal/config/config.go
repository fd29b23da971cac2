package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

const (
	AreaSourcePostgres = "postgres"
	AreaSourceRemote   = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	DBAutoMigrate      bool

	TenantHeader     string
	TenantRootDomain string
	TenantDefault    string
	UserHeader       string

	ServiceFeeFlat decimal.Decimal
	ServiceFeeBps  int64
	ServiceFeeMax  *decimal.Decimal
	CurrencyCode   string

	AreaSource     string
	AreaCacheTTL   time.Duration
	BackendBaseURL string
	BackendTimeout time.Duration

	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration
	RetryBase           time.Duration
	RetryMaxAttempts    int
	RetryJitter         float64

	IdempotencyTTL           time.Duration
	LockTTL                  time.Duration
	LockRetryBackoff         time.Duration
	LockMaxWait              time.Duration
	RateLimitCalculateMax    int
	RateLimitCalculateWindow time.Duration
	BodyLimitBytes           int64

	PaymentRedirectBaseURL string
	CashbackQueue          string
	CashbackWalletCredit   bool
	WorkerConcurrency      int
	DefaultPerUserLimit    int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),

		TenantHeader:     valueOrDefault(k.String("TENANT_HEADER"), "X-Tenant-ID"),
		TenantRootDomain: strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		TenantDefault:    strings.TrimSpace(k.String("TENANT_DEFAULT")),
		UserHeader:       valueOrDefault(k.String("USER_HEADER"), "X-User-ID"),

		ServiceFeeBps: int64(parseInt(k.String("SERVICE_FEE_BPS"), 0)),
		CurrencyCode:  strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "BDT")),

		AreaSource:     strings.ToLower(valueOrDefault(k.String("AREA_SOURCE"), AreaSourcePostgres)),
		AreaCacheTTL:   parseDuration(k.String("AREA_CACHE_TTL"), "5m"),
		BackendBaseURL: strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		BackendTimeout: parseDuration(k.String("BACKEND_TIMEOUT"), "3s"),

		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitter:         parseFloat(k.String("RETRY_JITTER"), 0.2),

		IdempotencyTTL:           parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:                  parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff:         parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		LockMaxWait:              parseDuration(k.String("LOCK_MAX_WAIT"), "3s"),
		RateLimitCalculateMax:    parseInt(k.String("RATE_LIMIT_CALCULATE_MAX"), 60),
		RateLimitCalculateWindow: parseDuration(k.String("RATE_LIMIT_CALCULATE_WINDOW"), "1m"),
		BodyLimitBytes:           int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		PaymentRedirectBaseURL: strings.TrimSpace(k.String("PAYMENT_REDIRECT_BASE_URL")),
		CashbackQueue:          valueOrDefault(k.String("CASHBACK_QUEUE"), "cashback"),
		CashbackWalletCredit:   parseBool(k.String("CASHBACK_WALLET_CREDIT")),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 10),
		DefaultPerUserLimit:    parseInt(k.String("PROMO_DEFAULT_PER_USER_LIMIT"), 0),
	}

	var err error
	if cfg.ServiceFeeFlat, err = parseMoney("SERVICE_FEE_FLAT", k.String("SERVICE_FEE_FLAT")); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(k.String("SERVICE_FEE_MAX")); raw != "" {
		max, err := parseMoney("SERVICE_FEE_MAX", raw)
		if err != nil {
			return nil, err
		}
		cfg.ServiceFeeMax = &max
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.AreaSource {
	case AreaSourcePostgres:
	case AreaSourceRemote:
		if cfg.BackendBaseURL == "" {
			return nil, errors.New("BACKEND_BASE_URL is required when AREA_SOURCE=remote")
		}
	default:
		return nil, fmt.Errorf("AREA_SOURCE must be %q or %q", AreaSourcePostgres, AreaSourceRemote)
	}
	if cfg.ServiceFeeBps < 0 {
		return nil, errors.New("SERVICE_FEE_BPS must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "production" || env == "prod"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseMoney(key, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
