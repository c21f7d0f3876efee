package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	products        domain.ProductRepository
	orders          domain.OrderRepository
	finalizations   domain.FinalizationRepository
	store           domain.FinalizationStore
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	sessions        domain.SessionStore

	// pingers попадают в /healthz как обязательные проверки.
	pingers map[string]func(context.Context) error
	closers []func() error
}

func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{pingers: make(map[string]func(context.Context) error)}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.products = memory.NewProductRepository(store)
		deps.orders = memory.NewOrderRepository(store)
		deps.finalizations = memory.NewFinalizationRepository(store)
		deps.store = memory.NewFinalizationStore(store)
		deps.outboxRepo = memory.NewOutboxRepository(store)
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")

		if cfg.SeedCatalog {
			if err := seedCatalog(ctx, deps.products); err != nil {
				return nil, fmt.Errorf("seed catalog: %w", err)
			}
		}

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				deps.Close(logger)
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.products = postgres.NewProductRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.finalizations = postgres.NewFinalizationRepository(store)
		deps.store = postgres.NewFinalizationStore(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.pingers["storage"] = store.Ping
		logger.Info("using postgres storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.SessionDriver {
	case "", SessionDriverMemory:
		deps.sessions = memory.NewSessionStore()
	case SessionDriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		sessions := redisstore.NewSessionStore(client, cfg.SessionTTL)
		if err := sessions.Ping(ctx); err != nil {
			_ = client.Close()
			deps.Close(logger)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.sessions = sessions
		deps.pingers["sessions"] = sessions.Ping
		deps.closers = append(deps.closers, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis session store")
	default:
		deps.Close(logger)
		return nil, fmt.Errorf("unsupported session driver %q", cfg.SessionDriver)
	}

	return deps, nil
}

// seedCatalog наполняет пустой каталог для локального запуска и нагрузочного теста.
func seedCatalog(ctx context.Context, products domain.ProductRepository) error {
	existing, err := products.List(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seed := []domain.Product{
		{Name: "Kaya Toast Set", Price: decimal.RequireFromString("3.50"), Quantity: 100, Image: "kaya-toast.png"},
		{Name: "Hainanese Chicken Rice", Price: decimal.RequireFromString("6.80"), Quantity: 50, Image: "chicken-rice.png"},
		{Name: "Teh Tarik", Price: decimal.RequireFromString("1.90"), Quantity: 200, Image: "teh-tarik.png"},
		{Name: "Durian Puff Box", Price: decimal.RequireFromString("12.00"), Quantity: 10, Image: "durian-puff.png"},
	}
	for _, p := range seed {
		if _, err := products.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
