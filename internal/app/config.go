package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Storage backends for cart snapshots.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (FOODCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr    string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage string `default:"memory" usage:"Cart storage backend: memory, postgres or redis"`

	DatabaseURL string        `usage:"PostgreSQL connection URL (FOODCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string        `usage:"Redis connection URL (FOODCART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	CartTTL     time.Duration `default:"720h" usage:"Redis only: drop carts untouched for this long, 0 keeps them forever" flag:"cart-ttl"`

	BackendURL     string        `default:"http://localhost:5000" usage:"Meals and orders backend base URL" flag:"backend-url"`
	BackendTimeout time.Duration `default:"10s" usage:"Backend request timeout" flag:"backend-timeout"`

	Session  SessionConfig
	Checkout CheckoutConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// SessionConfig controls the cart session cookie.
type SessionConfig struct {
	Key    string        `usage:"Cookie signing key, at least 32 bytes; random per process when empty" flag:"session-key"`
	Secure bool          `default:"false" usage:"Send the cart cookie over HTTPS only" flag:"secure-cookie"`
	MaxAge time.Duration `default:"720h" usage:"Cart cookie lifetime" flag:"session-max-age"`
}

// CheckoutConfig holds checkout defaults.
type CheckoutConfig struct {
	DeliveryFee    string `default:"50" usage:"Delivery fee added to every order" flag:"delivery-fee"`
	DefaultAddress string `default:"Default Address, Dhaka" usage:"Delivery address used when the request has none" flag:"default-address"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (the cart cookie) cross-origin" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FOODCART",
		Files:     []string{"config.yaml", "/etc/food-cart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres storage needs a database URL: set FOODCART_DATABASE_URL or DATABASE_URL")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("redis storage needs a redis URL: set FOODCART_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}

	if c.Session.Key != "" && len(c.Session.Key) < 32 {
		return errors.New("session key must be at least 32 bytes")
	}
	if _, err := c.DeliveryFee(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// DeliveryFee parses the configured delivery fee.
func (c *Config) DeliveryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Checkout.DeliveryFee)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse delivery fee %q", c.Checkout.DeliveryFee)
	}
	if fee.IsNegative() {
		return decimal.Zero, errors.Errorf("delivery fee %s is negative", fee)
	}
	return fee, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FOODCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
