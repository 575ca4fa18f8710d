package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"palpitai"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"palpitai"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"palpitai"`

	// Redis
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`

	// JWT
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry  time.Duration `env:"JWT_USER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry time.Duration `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Bootstrap admin, created on startup when both are set
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3000"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"palpitai"`

	// CORS / websocket origins
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	WSAllowedOrigins   string `env:"WS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Money rules (centavos)
	BetStakeCents         int64 `env:"BET_STAKE_CENTS" envDefault:"1000"`
	MinDepositCents       int64 `env:"MIN_DEPOSIT_CENTS" envDefault:"1000"`
	MinWithdrawalCents    int64 `env:"MIN_WITHDRAWAL_CENTS" envDefault:"2000"`
	MaxSingleDepositCents int64 `env:"MAX_SINGLE_DEPOSIT_CENTS" envDefault:"500000"`
	DailyDepositLimit     int64 `env:"DAILY_DEPOSIT_LIMIT_CENTS" envDefault:"2000000"`

	// Payments
	PixChargeTTL            time.Duration `env:"PIX_CHARGE_TTL" envDefault:"30m"`
	PollMinInterval         time.Duration `env:"POLL_MIN_INTERVAL" envDefault:"3s"`
	GatewayTimeout          time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	GatewayBreakerThreshold int           `env:"GATEWAY_BREAKER_THRESHOLD" envDefault:"5"`
	GatewayBreakerReset     time.Duration `env:"GATEWAY_BREAKER_RESET" envDefault:"30s"`
	DepositRateLimit        int           `env:"DEPOSIT_RATE_LIMIT" envDefault:"5"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	if c.BetStakeCents <= 0 {
		return fmt.Errorf("BET_STAKE_CENTS must be positive")
	}
	if c.MinDepositCents <= 0 || c.MinWithdrawalCents <= 0 {
		return fmt.Errorf("MIN_DEPOSIT_CENTS and MIN_WITHDRAWAL_CENTS must be positive")
	}
	if c.MaxSingleDepositCents > 0 && c.MaxSingleDepositCents < c.MinDepositCents {
		return fmt.Errorf("MAX_SINGLE_DEPOSIT_CENTS (%d) is below MIN_DEPOSIT_CENTS (%d)", c.MaxSingleDepositCents, c.MinDepositCents)
	}
	if c.PixChargeTTL <= 0 {
		return fmt.Errorf("PIX_CHARGE_TTL must be positive")
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
