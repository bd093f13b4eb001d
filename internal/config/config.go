package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

// Token store backends.
const (
	TokenStoreMemory   = "memory"
	TokenStoreRedis    = "redis"
	TokenStorePostgres = "postgres"
)

type Config struct {
	Environment string
	LogLevel    string
	Port        string

	// Upstream cart API
	CartAPIURL      string
	UpstreamTimeout time.Duration

	// Session credentials
	TokenStore         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration
	SessionEvictEvery  time.Duration
	DatabaseURL        string

	// Events; empty disables publishing
	RabbitMQURL string

	// Cart behaviour
	MutationPolicy cart.Policy
	Pricing        cart.Pricing

	// CORS
	CORSAllowOrigins []string
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	_ = godotenv.Load()

	def := cart.DefaultPricing()
	policy, err := cart.ParsePolicy(getenv("MUTATION_POLICY", string(cart.PolicySerialized)))
	if err != nil {
		policy = cart.Policy(strings.ToLower(strings.TrimSpace(os.Getenv("MUTATION_POLICY"))))
	}

	return Config{
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Port:        getenv("PORT", "8080"),

		CartAPIURL:      getenv("CART_API_URL", "http://cart-service-go:8081"),
		UpstreamTimeout: parseDuration(getenv("UPSTREAM_TIMEOUT", "15s"), cart.DefaultTimeout),

		TokenStore:         strings.ToLower(getenv("TOKEN_STORE", TokenStoreMemory)),
		RedisAddr:          getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            parseInt(getenv("REDIS_DB", "0"), 0),
		SessionTTL:         parseDuration(getenv("SESSION_TTL", "720h"), 720*time.Hour),
		SessionIdleTimeout: parseDuration(getenv("SESSION_IDLE_TIMEOUT", "30m"), 30*time.Minute),
		SessionEvictEvery:  parseDuration(getenv("SESSION_EVICT_INTERVAL", "1m"), time.Minute),
		DatabaseURL:        os.Getenv("DATABASE_URL"),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		MutationPolicy: policy,
		Pricing: cart.Pricing{
			DiscountRate: parseDecimal(getenv("CART_DISCOUNT_RATE", ""), def.DiscountRate),
			DeliveryFee:  parseDecimal(getenv("CART_DELIVERY_FEE", ""), def.DeliveryFee),
		},

		CORSAllowOrigins: splitCSV(getenv("CORS_ALLOW_ORIGINS", "*")),
	}
}

// Validate reports settings that would make the service misbehave.
func (c Config) Validate() error {
	if _, err := cart.ParsePolicy(string(c.MutationPolicy)); err != nil {
		return err
	}
	switch c.TokenStore {
	case TokenStoreMemory:
	case TokenStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for token store %q", c.TokenStore)
		}
	case TokenStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for token store %q", c.TokenStore)
		}
	default:
		return fmt.Errorf("unknown token store %q", c.TokenStore)
	}
	if c.Pricing.DiscountRate.IsNegative() || c.Pricing.DiscountRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("CART_DISCOUNT_RATE must be within [0, 1], got %s", c.Pricing.DiscountRate)
	}
	if c.Pricing.DeliveryFee.IsNegative() {
		return fmt.Errorf("CART_DELIVERY_FEE must not be negative, got %s", c.Pricing.DeliveryFee)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseInt(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func parseDecimal(v string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
