package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort string
	GinMode  string
	LogLevel string

	DBDriver string // memory, sqlite or mysql
	DBDSN    string

	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Retry    RetryConfig

	WebhookSecret string

	ReconcileInterval  time.Duration
	ReconcileOlderThan time.Duration
	OutboxPollInterval time.Duration

	CORSOrigins  []string
	KafkaBrokers []string
	KafkaTopic   string
}

type GatewayConfig struct {
	BaseURL        string
	APIKey         string
	AccessToken    string
	AttemptTimeout time.Duration
}

type CheckoutConfig struct {
	DefaultCurrency string
	RedirectURL     string
	WebhookURL      string
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "checkout.db")
	v.SetDefault("DEFAULT_CURRENCY", "COP")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", "200ms")
	v.SetDefault("RETRY_MAX_DELAY", "2s")
	v.SetDefault("GATEWAY_ATTEMPT_TIMEOUT", "10s")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("RECONCILE_OLDER_THAN", "15m")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "1s")
	v.SetDefault("KAFKA_TOPIC", "payments.events")
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := Config{
		HTTPPort: v.GetString("HTTP_PORT"),
		GinMode:  v.GetString("GIN_MODE"),
		LogLevel: v.GetString("LOG_LEVEL"),
		DBDriver: strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:    v.GetString("DB_DSN"),
		Gateway: GatewayConfig{
			BaseURL:        strings.TrimRight(v.GetString("GATEWAY_BASE_URL"), "/"),
			APIKey:         v.GetString("GATEWAY_API_KEY"),
			AccessToken:    v.GetString("GATEWAY_ACCESS_TOKEN"),
			AttemptTimeout: v.GetDuration("GATEWAY_ATTEMPT_TIMEOUT"),
		},
		Checkout: CheckoutConfig{
			DefaultCurrency: strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
			RedirectURL:     v.GetString("CHECKOUT_REDIRECT_URL"),
			WebhookURL:      v.GetString("WEBHOOK_URL"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
			MaxDelay:    v.GetDuration("RETRY_MAX_DELAY"),
		},
		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		ReconcileInterval:  v.GetDuration("RECONCILE_INTERVAL"),
		ReconcileOlderThan: v.GetDuration("RECONCILE_OLDER_THAN"),
		OutboxPollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:         v.GetString("KAFKA_TOPIC"),
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("GATEWAY_BASE_URL is required"))
	}
	switch c.DBDriver {
	case "memory", "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of memory, sqlite, mysql", c.DBDriver))
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("RETRY_BASE_DELAY must be positive and not above RETRY_MAX_DELAY"))
	}
	if len(c.Checkout.DefaultCurrency) != 3 {
		errs = append(errs, errors.New("DEFAULT_CURRENCY must be a 3-letter code"))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return ":" + c.HTTPPort
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
