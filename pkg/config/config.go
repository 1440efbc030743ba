package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/user/fetch-service/internal/entity"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	Workers      int    `mapstructure:"WORKERS"`
	Transport    string `mapstructure:"TRANSPORT"` // "http" or "chromedp"
	MaxBodyBytes int64  `mapstructure:"MAX_BODY_BYTES"`

	MaxRetries       int           `mapstructure:"MAX_RETRIES"`
	BaseDelay        time.Duration `mapstructure:"BASE_DELAY"`
	JitterRange      time.Duration `mapstructure:"JITTER_RANGE"`
	MaxRedirectDepth int           `mapstructure:"MAX_REDIRECT_DEPTH"`
	ServerErrorDelay time.Duration `mapstructure:"SERVER_ERROR_DELAY"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	TimeoutStep      time.Duration `mapstructure:"TIMEOUT_STEP"`

	RateLimiter       string        `mapstructure:"RATE_LIMITER"` // none, token_bucket, sliding_window, leaky_bucket
	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	UserAgents      []string `mapstructure:"USER_AGENTS"`
	Proxies         []string `mapstructure:"PROXIES"`
	IdentityRetries int      `mapstructure:"IDENTITY_RETRIES"`

	BreakerEnabled bool `mapstructure:"BREAKER_ENABLED"`

	RobotsEnabled bool          `mapstructure:"ROBOTS_ENABLED"`
	RobotsTTL     time.Duration `mapstructure:"ROBOTS_TTL"`

	DeduplicationTTL   time.Duration `mapstructure:"DEDUPLICATION_TTL"`
	RetryCooldown      time.Duration `mapstructure:"RETRY_COOLDOWN"`
	RetrySweepSchedule string        `mapstructure:"RETRY_SWEEP_SCHEDULE"`
	RetrySweepBatch    int           `mapstructure:"RETRY_SWEEP_BATCH"`
}

var validLimiters = map[string]bool{"none": true, "token_bucket": true, "sliding_window": true, "leaky_bucket": true}

// Load reads configuration from an optional file and the environment.
// An empty path falls back to ".env" in the working directory when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		// Attempt to read the .env file, but don't fail if it's not present.
		_ = v.ReadInConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := entity.DefaultRetryPolicy()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "user")
	v.SetDefault("POSTGRES_PASSWORD", "password")
	v.SetDefault("POSTGRES_DB", "fetcher")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("TRANSPORT", "http")
	v.SetDefault("MAX_BODY_BYTES", 10<<20)
	v.SetDefault("MAX_RETRIES", def.MaxRetries)
	v.SetDefault("BASE_DELAY", def.BaseDelay)
	v.SetDefault("JITTER_RANGE", def.JitterRange)
	v.SetDefault("MAX_REDIRECT_DEPTH", def.MaxRedirectDepth)
	v.SetDefault("SERVER_ERROR_DELAY", def.ServerErrorDelay)
	v.SetDefault("FETCH_TIMEOUT", def.Timeout)
	v.SetDefault("TIMEOUT_STEP", def.TimeoutStep)
	v.SetDefault("RATE_LIMITER", "token_bucket")
	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Second)
	v.SetDefault("USER_AGENTS", []string{})
	v.SetDefault("PROXIES", []string{})
	v.SetDefault("IDENTITY_RETRIES", 1)
	v.SetDefault("BREAKER_ENABLED", false)
	v.SetDefault("ROBOTS_ENABLED", true)
	v.SetDefault("ROBOTS_TTL", time.Hour)
	v.SetDefault("DEDUPLICATION_TTL", 48*time.Hour)
	v.SetDefault("RETRY_COOLDOWN", 10*time.Minute)
	v.SetDefault("RETRY_SWEEP_SCHEDULE", "@every 30s")
	v.SetDefault("RETRY_SWEEP_BATCH", 100)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers))
	}
	if c.Transport != "http" && c.Transport != "chromedp" {
		errs = append(errs, fmt.Errorf("TRANSPORT must be http or chromedp, got %q", c.Transport))
	}
	if !validLimiters[c.RateLimiter] {
		errs = append(errs, fmt.Errorf("unknown RATE_LIMITER %q", c.RateLimiter))
	}
	if c.RateLimiter != "none" && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.MaxRetries < 0 || c.MaxRedirectDepth < 0 {
		errs = append(errs, errors.New("MAX_RETRIES and MAX_REDIRECT_DEPTH must not be negative"))
	}
	return errors.Join(errs...)
}

// RetryPolicy assembles the controller policy from the flat settings.
func (c *Config) RetryPolicy() entity.RetryPolicy {
	return entity.RetryPolicy{
		MaxRetries:       c.MaxRetries,
		BaseDelay:        c.BaseDelay,
		JitterRange:      c.JitterRange,
		MaxRedirectDepth: c.MaxRedirectDepth,
		ServerErrorDelay: c.ServerErrorDelay,
		Timeout:          c.FetchTimeout,
		TimeoutStep:      c.TimeoutStep,
	}
}

// PostgresURL builds the pgx connection string.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}
