package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	JWTSecret      string
	PaystackSecret string
	PaystackURL    string
	CallbackURL    string

	SweepInterval time.Duration
	ReleaseGrace  time.Duration

	LogLevel  string
	LogPretty bool

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads .env if present, then the environment. Missing required
// values return an error instead of a half-configured service.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      getenv("REDIS_ADDR", "127.0.0.1:6379"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		PaystackSecret: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackURL:    os.Getenv("PAYSTACK_BASE_URL"),
		CallbackURL:    os.Getenv("PAYMENT_CALLBACK_URL"),
		SweepInterval:  getduration("AUTO_RELEASE_SWEEP_INTERVAL", time.Minute),
		ReleaseGrace:   getduration("AUTO_RELEASE_GRACE", 72*time.Hour),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogPretty:      getbool("LOG_PRETTY", false),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       os.Getenv("SMTP_PORT"),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:       os.Getenv("SMTP_FROM"),
	}

	// DATABASE_URL wins; otherwise assemble from parts.
	if cfg.DatabaseURL == "" {
		host := os.Getenv("DB_HOST")
		if host != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
				os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
				host, getenv("DB_PORT", "5432"), os.Getenv("DB_NAME"))
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL or DB_HOST is required")
	}
	return cfg, nil
}

// Validate checks the secrets the HTTP server cannot run without.
// Utilities that only touch the database skip this.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.PaystackSecret == "" {
		return fmt.Errorf("config: PAYSTACK_SECRET_KEY is required")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
