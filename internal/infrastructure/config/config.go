package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	// TokenSecret signs invitation and password-setup tokens. Kept separate
	// from JWTSecret so rotating staff sessions does not void outstanding
	// invitations.
	TokenSecret string `env:"TOKEN_SECRET"`

	// FrontendURL is the base for links embedded in emails and the return
	// target for billing portal sessions.
	FrontendURL string `env:"FRONTEND_URL, default=http://localhost:3000"`

	Mongo   MongoConfig
	Redis   RedisConfig
	Gateway GatewayConfig
	SMTP    SMTPConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=client_billing"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type GatewayConfig struct {
	SecretKey string `env:"GATEWAY_SECRET_KEY"`
	// Currency for all subscriptions, ISO 4217 lowercase.
	Currency string `env:"GATEWAY_CURRENCY, default=gbp"`
	// PriceLookupKey prefixes the per-amount prices created on demand.
	PriceLookupKey string `env:"GATEWAY_PRICE_LOOKUP_KEY, default=monthly_membership"`
	// ProductName is the catalogue product all subscription prices hang off.
	ProductName string `env:"GATEWAY_PRODUCT_NAME, default=Monthly Membership"`
	// Timeout bounds every gateway call.
	Timeout time.Duration `env:"GATEWAY_TIMEOUT, default=15s"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST, default=localhost"`
	Port     int    `env:"SMTP_PORT, default=587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM, default=billing@example.com"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
