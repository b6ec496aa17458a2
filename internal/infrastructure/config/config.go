package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const EnvProduction = "production"

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	BaseURL  string `env:"BASE_URL,  default=http://localhost:8080"`

	Auth      AuthConfig
	Query     QueryConfig
	RateLimit RateLimitConfig
	Ratings   RatingsConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Mail      MailConfig
	Stripe    StripeConfig
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET, required"`
	TokenTTL  time.Duration `env:"JWT_EXPIRES_IN, default=2160h"`
	// CookieDays is the cookie lifetime in whole days.
	CookieDays      int    `env:"JWT_COOKIE_EXPIRES_IN, default=90"`
	PasswordHasher  string `env:"PASSWORD_HASHER, default=bcrypt"`
	BcryptCost      int    `env:"BCRYPT_COST, default=12"`
	HashConcurrency int64  `env:"HASH_CONCURRENCY, default=4"`
}

type QueryConfig struct {
	MaxLimit int64 `env:"QUERY_MAX_LIMIT, default=500"`
}

type RateLimitConfig struct {
	Max    int64         `env:"RATE_LIMIT_MAX,    default=100"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW, default=1h"`
}

type RatingsConfig struct {
	Workers int `env:"RATINGS_WORKERS, default=4"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=natours"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE"`
}

type MailConfig struct {
	APIKey    string `env:"MAILERSEND_API_KEY"`
	FromName  string `env:"MAIL_FROM_NAME,  default=Natours"`
	FromEmail string `env:"MAIL_FROM_EMAIL, default=hello@natours.io"`
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// IsProduction reports whether the service runs with production settings
// (secure cookies, redacted internal errors, JSON logs).
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// Load reads an optional dotenv file, then the process environment.
// Variables already set in the environment take precedence over the file.
func Load(ctx context.Context, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.Auth.PasswordHasher != "bcrypt" && cfg.Auth.PasswordHasher != "argon2id" {
		return nil, fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", cfg.Auth.PasswordHasher)
	}
	return &cfg, nil
}
