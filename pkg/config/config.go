package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/ulule/limiter/v3"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string `toml:"port"`
	AppEnv      string `toml:"app_env"`
	BaseURL     string `toml:"base_url"`
	FrontendURL string `toml:"frontend_url"`

	StoreDriver string `toml:"store_driver"`
	DatabaseURL string `toml:"database_url"`
	PostgresURL string `toml:"postgres_url"`
	RedisURL    string `toml:"redis_url"`

	TokenBytes       int `toml:"token_bytes"`
	IssueAttempts    int `toml:"issue_attempts"`
	CountdownSeconds int `toml:"countdown_seconds"`
	ClickWorkers     int `toml:"click_workers"`
	ClickQueueSize   int `toml:"click_queue_size"`

	ContentURLs    []string `toml:"content_urls"`
	ContentFeedURL string   `toml:"content_feed_url"`

	RateLimit string `toml:"rate_limit"`
	// TrustProxy keys rate limits on X-Forwarded-For / X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxy bool `toml:"trust_proxy"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	GoogleClientID     string   `toml:"google_client_id"`
	GoogleClientSecret string   `toml:"google_client_secret"`
	GoogleRedirectURL  string   `toml:"google_redirect_url"`
	JWTSecret          string   `toml:"jwt_secret"`
	AllowedEmails      []string `toml:"allowed_emails"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:              "8080",
		AppEnv:            "local",
		BaseURL:           "http://localhost:8080",
		FrontendURL:       "http://localhost:8080",
		StoreDriver:       StoreSQLite,
		DatabaseURL:       "file:db.sqlite",
		RedisURL:          "localhost:6379",
		TokenBytes:        4,
		IssueAttempts:     3,
		CountdownSeconds:  10,
		ClickWorkers:      4,
		ClickQueueSize:    1024,
		RateLimit:         "30-M",
		LogLevel:          "info",
		LogFormat:         "text",
		GoogleRedirectURL: "http://localhost:8080/auth/google/callback",
		JWTSecret:         "secret",
	}
}

// Load layers defaults, the optional TOML file named by SAFELINK_CONFIG, .env and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("SAFELINK_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)

	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.TokenBytes = getEnvInt("TOKEN_BYTES", c.TokenBytes)
	c.IssueAttempts = getEnvInt("ISSUE_ATTEMPTS", c.IssueAttempts)
	c.CountdownSeconds = getEnvInt("COUNTDOWN_SECONDS", c.CountdownSeconds)
	c.ClickWorkers = getEnvInt("CLICK_WORKERS", c.ClickWorkers)
	c.ClickQueueSize = getEnvInt("CLICK_QUEUE_SIZE", c.ClickQueueSize)

	c.ContentURLs = getEnvList("CONTENT_URLS", c.ContentURLs)
	c.ContentFeedURL = getEnv("CONTENT_FEED_URL", c.ContentFeedURL)

	c.RateLimit = getEnv("RATE_LIMIT", c.RateLimit)
	c.TrustProxy = getEnvBool("TRUST_PROXY", c.TrustProxy)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.GoogleRedirectURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AllowedEmails = getEnvList("ALLOWED_EMAILS", c.AllowedEmails)
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.TokenBytes < 4 {
		c.TokenBytes = 4
	}
	if c.TokenBytes > 32 {
		c.TokenBytes = 32
	}
	if c.IssueAttempts < 1 {
		c.IssueAttempts = 1
	}
	if c.CountdownSeconds < 1 {
		c.CountdownSeconds = 1
	}
	if c.CountdownSeconds > 300 {
		c.CountdownSeconds = 300
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the sqlite store"))
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres store"))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	}
	if c.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT %q: %w", c.RateLimit, err))
		}
	}
	return errors.Join(errs...)
}

// Countdown is the gateway timer duration.
func (c *Config) Countdown() time.Duration {
	return time.Duration(c.CountdownSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
