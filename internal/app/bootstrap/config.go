package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	ProcessorStripe  = "stripe"
	ProcessorSandbox = "sandbox"
)

// Config is the resolved runtime configuration for the escrow core.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	StorageDriver   string
	DatabaseURL     string
	MaxDBConns      int32
	RedisURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	ProcessorDriver string

	StripeSecretKey     string
	StripeAPIURL        string
	StripeWebhookSecret string

	JWTIssuer         string
	JWTKeyID          string
	JWTPublicKeyPEM   string
	JWTPrivateKeyPEM  string
	AllowEphemeralJWT bool

	CommissionRate decimal.Decimal
	MaxOrderAmount decimal.Decimal
	Currency       string

	CheckoutWindowHours      int
	AuthorizationWindowHours int
	ConfirmationWindowHours  int
	ContestWindowHours       int

	ProcessorTimeout time.Duration
	LockTTL          time.Duration

	SweepInterval  time.Duration
	SweepBatchSize int
	SweepNames     []string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	RateLimitPerSecond float64
	RateLimitBurst     int

	CheckoutSuccessURL string
	CheckoutCancelURL  string

	Fixtures Fixtures
}

// Fixtures seed the in-memory profile directory and sandbox processor for
// local runs.
type Fixtures struct {
	Offers      []OfferFixture      `yaml:"offers"`
	Influencers []InfluencerFixture `yaml:"influencers"`
	Merchants   []MerchantFixture   `yaml:"merchants"`
}

type OfferFixture struct {
	ID           string `yaml:"id"`
	InfluencerID string `yaml:"influencer_id"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Currency     string `yaml:"currency"`
}

type InfluencerFixture struct {
	ID                 string `yaml:"id"`
	ConnectedAccountID string `yaml:"connected_account_id"`
}

type MerchantFixture struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Processor struct {
		Driver         string `yaml:"driver"`
		APIURL         string `yaml:"api_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"processor"`
	Auth struct {
		Issuer         string `yaml:"issuer"`
		KeyID          string `yaml:"key_id"`
		AllowEphemeral *bool  `yaml:"allow_ephemeral"`
	} `yaml:"auth"`
	Escrow struct {
		CommissionRate           string `yaml:"commission_rate"`
		MaxOrderAmount           string `yaml:"max_order_amount"`
		Currency                 string `yaml:"currency"`
		CheckoutWindowHours      int    `yaml:"checkout_window_hours"`
		AuthorizationWindowHours int    `yaml:"authorization_window_hours"`
		ConfirmationWindowHours  int    `yaml:"confirmation_window_hours"`
		ContestWindowHours       int    `yaml:"contest_window_hours"`
		CheckoutSuccessURL       string `yaml:"checkout_success_url"`
		CheckoutCancelURL        string `yaml:"checkout_cancel_url"`
	} `yaml:"escrow"`
	Worker struct {
		SweepIntervalSeconds int      `yaml:"sweep_interval_seconds"`
		SweepBatchSize       int      `yaml:"sweep_batch_size"`
		Sweeps               []string `yaml:"sweeps"`
	} `yaml:"worker"`
	HTTP struct {
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`
	Fixtures Fixtures `yaml:"fixtures"`
}

// LoadConfig resolves configuration in priority order: defaults -> file ->
// env. A .env file in the working directory is loaded into the environment
// first without overriding variables that are already set.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ServiceID:                "collab-escrow-core",
		HTTPPort:                 8080,
		GRPCPort:                 9090,
		StorageDriver:            StoragePostgres,
		MaxDBConns:               20,
		KafkaTopic:               "escrow.orders",
		ProcessorDriver:          ProcessorStripe,
		JWTKeyID:                 "escrow-key-1",
		AllowEphemeralJWT:        false,
		CommissionRate:           decimal.RequireFromString("0.10"),
		MaxOrderAmount:           decimal.NewFromInt(10000),
		Currency:                 "eur",
		CheckoutWindowHours:      24,
		AuthorizationWindowHours: 144,
		ConfirmationWindowHours:  48,
		ContestWindowHours:       48,
		ProcessorTimeout:         10 * time.Second,
		LockTTL:                  30 * time.Second,
		SweepInterval:            5 * time.Minute,
		SweepBatchSize:           100,
		OutboxPollInterval:       2 * time.Second,
		OutboxBatchSize:          100,
		OutboxClaimTTL:           30 * time.Second,
		OutboxMaxRetries:         5,
		RateLimitPerSecond:       20,
		RateLimitBurst:           40,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		if applyErr := applyFile(&cfg, raw); applyErr != nil {
			return Config{}, applyErr
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.StorageDriver = strings.ToLower(envOrDefault("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.ProcessorDriver = strings.ToLower(envOrDefault("PROCESSOR_DRIVER", cfg.ProcessorDriver))
	cfg.StripeSecretKey = envOrDefault("STRIPE_SECRET_KEY", cfg.StripeSecretKey)
	cfg.StripeAPIURL = envOrDefault("STRIPE_API_URL", cfg.StripeAPIURL)
	cfg.StripeWebhookSecret = envOrDefault("STRIPE_WEBHOOK_SECRET", cfg.StripeWebhookSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.Currency = strings.ToLower(envOrDefault("CURRENCY", cfg.Currency))
	cfg.CheckoutSuccessURL = envOrDefault("CHECKOUT_SUCCESS_URL", cfg.CheckoutSuccessURL)
	cfg.CheckoutCancelURL = envOrDefault("CHECKOUT_CANCEL_URL", cfg.CheckoutCancelURL)
	cfg.SweepNames = envCSV("SWEEPS", cfg.SweepNames)

	if cfg.CommissionRate, err = envDecimal("COMMISSION_RATE", cfg.CommissionRate); err != nil {
		return Config{}, err
	}
	if cfg.MaxOrderAmount, err = envDecimal("MAX_ORDER_AMOUNT", cfg.MaxOrderAmount); err != nil {
		return Config{}, err
	}

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.CheckoutWindowHours = envInt("CHECKOUT_WINDOW_HOURS", cfg.CheckoutWindowHours)
	cfg.AuthorizationWindowHours = envInt("AUTHORIZATION_WINDOW_HOURS", cfg.AuthorizationWindowHours)
	cfg.ConfirmationWindowHours = envInt("CONFIRMATION_WINDOW_HOURS", cfg.ConfirmationWindowHours)
	cfg.ContestWindowHours = envInt("CONTEST_WINDOW_HOURS", cfg.ContestWindowHours)
	cfg.ProcessorTimeout = time.Duration(envInt("PROCESSOR_TIMEOUT_SECONDS", int(cfg.ProcessorTimeout.Seconds()))) * time.Second
	cfg.LockTTL = time.Duration(envInt("LOCK_TTL_SECONDS", int(cfg.LockTTL.Seconds()))) * time.Second
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_SECONDS", int(cfg.SweepInterval.Seconds()))) * time.Second
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.RateLimitPerSecond = envFloat("RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Storage.Driver != "" {
		cfg.StorageDriver = strings.ToLower(f.Storage.Driver)
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopic != "" {
		cfg.KafkaTopic = f.Dependencies.KafkaTopic
	}
	if f.Processor.Driver != "" {
		cfg.ProcessorDriver = strings.ToLower(f.Processor.Driver)
	}
	if f.Processor.APIURL != "" {
		cfg.StripeAPIURL = f.Processor.APIURL
	}
	if f.Processor.TimeoutSeconds > 0 {
		cfg.ProcessorTimeout = time.Duration(f.Processor.TimeoutSeconds) * time.Second
	}
	if f.Auth.Issuer != "" {
		cfg.JWTIssuer = f.Auth.Issuer
	}
	if f.Auth.KeyID != "" {
		cfg.JWTKeyID = f.Auth.KeyID
	}
	if f.Auth.AllowEphemeral != nil {
		cfg.AllowEphemeralJWT = *f.Auth.AllowEphemeral
	}
	if f.Escrow.CommissionRate != "" {
		rate, err := decimal.NewFromString(f.Escrow.CommissionRate)
		if err != nil {
			return fmt.Errorf("parse escrow.commission_rate: %w", err)
		}
		cfg.CommissionRate = rate
	}
	if f.Escrow.MaxOrderAmount != "" {
		maxAmount, err := decimal.NewFromString(f.Escrow.MaxOrderAmount)
		if err != nil {
			return fmt.Errorf("parse escrow.max_order_amount: %w", err)
		}
		cfg.MaxOrderAmount = maxAmount
	}
	if f.Escrow.Currency != "" {
		cfg.Currency = strings.ToLower(f.Escrow.Currency)
	}
	if f.Escrow.CheckoutWindowHours > 0 {
		cfg.CheckoutWindowHours = f.Escrow.CheckoutWindowHours
	}
	if f.Escrow.AuthorizationWindowHours > 0 {
		cfg.AuthorizationWindowHours = f.Escrow.AuthorizationWindowHours
	}
	if f.Escrow.ConfirmationWindowHours > 0 {
		cfg.ConfirmationWindowHours = f.Escrow.ConfirmationWindowHours
	}
	if f.Escrow.ContestWindowHours > 0 {
		cfg.ContestWindowHours = f.Escrow.ContestWindowHours
	}
	if f.Escrow.CheckoutSuccessURL != "" {
		cfg.CheckoutSuccessURL = f.Escrow.CheckoutSuccessURL
	}
	if f.Escrow.CheckoutCancelURL != "" {
		cfg.CheckoutCancelURL = f.Escrow.CheckoutCancelURL
	}
	if f.Worker.SweepIntervalSeconds > 0 {
		cfg.SweepInterval = time.Duration(f.Worker.SweepIntervalSeconds) * time.Second
	}
	if f.Worker.SweepBatchSize > 0 {
		cfg.SweepBatchSize = f.Worker.SweepBatchSize
	}
	if len(f.Worker.Sweeps) > 0 {
		cfg.SweepNames = f.Worker.Sweeps
	}
	if f.HTTP.RateLimitPerSecond > 0 {
		cfg.RateLimitPerSecond = f.HTTP.RateLimitPerSecond
	}
	if f.HTTP.RateLimitBurst > 0 {
		cfg.RateLimitBurst = f.HTTP.RateLimitBurst
	}
	cfg.Fixtures = f.Fixtures
	return nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("missing DB_URL/POSTGRES_URL")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	switch c.ProcessorDriver {
	case ProcessorStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("missing STRIPE_SECRET_KEY")
		}
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("missing STRIPE_WEBHOOK_SECRET")
		}
	case ProcessorSandbox:
	default:
		return fmt.Errorf("unsupported processor driver %q", c.ProcessorDriver)
	}
	if c.JWTPublicKeyPEM == "" && c.JWTPrivateKeyPEM == "" && !c.AllowEphemeralJWT {
		return fmt.Errorf("missing JWT_PUBLIC_KEY_PEM")
	}
	if c.CommissionRate.IsNegative() || !c.CommissionRate.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be in [0, 1), got %s", c.CommissionRate)
	}
	if !c.MaxOrderAmount.IsPositive() {
		return fmt.Errorf("max order amount must be positive")
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envDecimal fails loudly: a silently ignored money setting is worse than a
// refused start.
func envDecimal(name string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
