package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
)

// Config is the explicit configuration struct injected into every component
// at construction. There is no settings singleton; a component sees only the
// values it was handed.
type Config struct {
	Env  string
	Port string

	DB DBConfig

	// FeePercentage is the platform fee applied to every order subtotal.
	FeePercentage decimal.Decimal

	Gateway GatewayConfig

	// ReconcileInterval drives the background worker that re-checks stuck
	// pending payments against the gateway.
	ReconcileInterval time.Duration
	// PaymentExpiry is how long a provisioned collection channel stays valid.
	PaymentExpiry time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Schema   string
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Schema,
	)
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	SecretKey     string
	ContractCode  string
	WebhookSecret string
	// Timeout bounds every outbound gateway call; on timeout during order
	// creation the order is still persisted as pending.
	Timeout time.Duration
}

// Configured reports whether real gateway credentials are present. Without
// them the deterministic mock gateway serves local development.
func (g GatewayConfig) Configured() bool { return g.APIKey != "" }

func (c Config) IsProduction() bool { return c.Env == "production" }

// Load reads configuration from the environment (a .env file is picked up by
// the godotenv autoload import).
func Load() (Config, error) {
	feePct, err := decimal.NewFromString(getEnv("STOREFRONT_FEE_PERCENTAGE", "2.5"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid STOREFRONT_FEE_PERCENTAGE: %w", err)
	}

	cfg := Config{
		Env:  getEnv("STOREFRONT_ENV", "development"),
		Port: getEnv("STOREFRONT_PORT", "8080"),
		DB: DBConfig{
			Host:     getEnv("STOREFRONT_DB_HOST", "localhost"),
			Port:     getEnv("STOREFRONT_DB_PORT", "5432"),
			Username: getEnv("STOREFRONT_DB_USERNAME", "postgres"),
			Password: getEnv("STOREFRONT_DB_PASSWORD", "postgres"),
			Database: getEnv("STOREFRONT_DB_DATABASE", "storefront"),
			Schema:   getEnv("STOREFRONT_DB_SCHEMA", "public"),
		},
		FeePercentage: feePct,
		Gateway: GatewayConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://sandbox.monnify.com"),
			APIKey:        os.Getenv("GATEWAY_API_KEY"),
			SecretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
			ContractCode:  os.Getenv("GATEWAY_CONTRACT_CODE"),
			WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
			Timeout:       getDuration("GATEWAY_TIMEOUT_SECONDS", 15) * time.Second,
		},
		ReconcileInterval: getDuration("RECONCILE_INTERVAL_SECONDS", 60) * time.Second,
		PaymentExpiry:     getDuration("PAYMENT_EXPIRY_HOURS", 24) * time.Hour,
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n)
		}
	}
	return time.Duration(fallback)
}
