package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// StorageDriver выбирает хранилище каталога, заказов и outbox.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// SessionDriver выбирает хранилище сессий.
type SessionDriver string

const (
	SessionDriverMemory SessionDriver = "memory"
	SessionDriverRedis  SessionDriver = "redis"
)

// PaymentProviderMode — live ходит в NETS и PayPal, fake подтверждает платежи локально.
type PaymentProviderMode string

const (
	PaymentProviderLive PaymentProviderMode = "live"
	PaymentProviderFake PaymentProviderMode = "fake"
)

// Config описывает настройки запуска storefront.
type Config struct {
	HTTPAddr    string `env:"STOREFRONT_HTTP_ADDR"`
	MetricsAddr string `env:"STOREFRONT_METRICS_ADDR"`
	GRPCAddr    string `env:"STOREFRONT_GRPC_ADDR"`

	StorageDriver       StorageDriver `env:"STOREFRONT_STORAGE_DRIVER"`
	PostgresDSN         string        `env:"STOREFRONT_POSTGRES_DSN"`
	PostgresAutoMigrate bool          `env:"STOREFRONT_POSTGRES_AUTO_MIGRATE"`
	// SeedCatalog наполняет пустой in-memory каталог демонстрационными товарами.
	SeedCatalog bool `env:"STOREFRONT_SEED_CATALOG"`

	SessionDriver SessionDriver `env:"STOREFRONT_SESSION_DRIVER"`
	RedisAddr     string        `env:"STOREFRONT_REDIS_ADDR"`
	RedisPassword string        `env:"STOREFRONT_REDIS_PASSWORD"`
	RedisDB       int           `env:"STOREFRONT_REDIS_DB"`
	SessionTTL    time.Duration `env:"STOREFRONT_SESSION_TTL"`
	SecureCookie  bool          `env:"STOREFRONT_SECURE_COOKIE"`

	RequestTimeout  time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"STOREFRONT_SHUTDOWN_TIMEOUT"`

	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaConsumerGroup string   `env:"STOREFRONT_KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"STOREFRONT_OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"STOREFRONT_OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"STOREFRONT_OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `env:"STOREFRONT_OUTBOX_RETRY_DELAY"`

	IdempotencyTTL              time.Duration `env:"STOREFRONT_IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `env:"STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `env:"STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"`

	PaymentProvider PaymentProviderMode `env:"STOREFRONT_PAYMENT_PROVIDER"`
	StreamInterval  time.Duration       `env:"STOREFRONT_STREAM_INTERVAL"`
	OversellPolicy  string              `env:"STOREFRONT_OVERSELL_POLICY"`

	NETSBaseURL   string `env:"NETS_BASE_URL"`
	NETSAPIKey    string `env:"NETS_API_KEY"`
	NETSProjectID string `env:"NETS_PROJECT_ID"`
	NETSTxnID     string `env:"NETS_TXN_ID"`

	PayPalBaseURL      string `env:"PAYPAL_BASE_URL"`
	PayPalClientID     string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
	PayPalCurrency     string `env:"PAYPAL_CURRENCY"`
	PayPalReturnURL    string `env:"PAYPAL_RETURN_URL"`
	PayPalCancelURL    string `env:"PAYPAL_CANCEL_URL"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		GRPCAddr:                    ":50051",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		SeedCatalog:                 true,
		SessionDriver:               SessionDriverMemory,
		RedisAddr:                   "localhost:6379",
		SessionTTL:                  24 * time.Hour,
		RequestTimeout:              30 * time.Second,
		ShutdownTimeout:             5 * time.Second,
		KafkaConsumerGroup:          "storefront-stock",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		PaymentProvider:             PaymentProviderFake,
		StreamInterval:              2 * time.Second,
		OversellPolicy:              string(checkout.OversellReject),
		NETSBaseURL:                 "https://uat-api.nets.com.sg",
		PayPalBaseURL:               "https://api-m.sandbox.paypal.com",
		PayPalCurrency:              "SGD",
		PayPalReturnURL:             "http://localhost:8080/checkout/finalize?method=paypal",
		PayPalCancelURL:             "http://localhost:8080/checkout",
	}
}

// LoadConfig накладывает переменные окружения на DefaultConfig и проверяет результат.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.KafkaBrokers = splitBrokers(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("STOREFRONT_HTTP_ADDR is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("STOREFRONT_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.SessionDriver {
	case SessionDriverMemory:
	case SessionDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("STOREFRONT_REDIS_ADDR is required for redis sessions"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported session driver %q", c.SessionDriver))
	}

	switch c.PaymentProvider {
	case PaymentProviderFake:
	case PaymentProviderLive:
		if c.NETSAPIKey == "" || c.NETSProjectID == "" || c.NETSTxnID == "" {
			errs = append(errs, errors.New("NETS_API_KEY, NETS_PROJECT_ID and NETS_TXN_ID are required for live payments"))
		}
		if c.PayPalClientID == "" || c.PayPalClientSecret == "" {
			errs = append(errs, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required for live payments"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider mode %q", c.PaymentProvider))
	}

	if _, err := checkout.ParseOversellPolicy(c.OversellPolicy); err != nil {
		errs = append(errs, err)
	}

	if c.StreamInterval <= 0 {
		errs = append(errs, errors.New("STOREFRONT_STREAM_INTERVAL must be positive"))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval and batch size must be positive"))
	}

	return errors.Join(errs...)
}

// KafkaEnabled сообщает, что настроен хотя бы один broker.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
