package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config is the API server configuration, loadable from CAFE_-prefixed
// environment variables, flags or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CAFE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HS256 secret for bearer tokens (CAFE_JWT_SECRET)" flag:"jwt-secret"`
	AMQP        AMQPConfig
	Payment     PaymentConfig
	Orders      OrdersConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// AMQPConfig configures the notification publisher. An empty URL disables it.
type AMQPConfig struct {
	URL      string `default:"" usage:"RabbitMQ URL for notification events" flag:"amqp-url"`
	Exchange string `default:"cafe.notifications" usage:"Topic exchange for notification events" flag:"amqp-exchange"`
}

// PaymentConfig configures payment links.
type PaymentConfig struct {
	GCashBaseURL string `default:"https://pay.gcash.com/pay" usage:"Base URL of GCash payment links" flag:"gcash-base-url"`
}

// OrdersConfig tunes the order service.
type OrdersConfig struct {
	BloomCapacity     uint `default:"100000" usage:"Expected number of order numbers in the uniqueness filter" flag:"bloom-capacity"`
	NotificationLimit int  `default:"50" usage:"Max notifications returned per request" flag:"notification-limit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CAFE",
		Files:     []string{"config.yaml", "/etc/cafe/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CAFE_DATABASE_URL or DATABASE_URL")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT secret must be at least 16 bytes: set CAFE_JWT_SECRET")
	}
	return nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
