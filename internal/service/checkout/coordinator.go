package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// OversellPolicy определяет поведение, когда guarded decrement не применён.
type OversellPolicy string

const (
	// OversellReject отменяет всю фиксацию заказа с ErrOversell.
	OversellReject OversellPolicy = "reject"
	// OversellBackorder записывает позицию без списания остатка.
	OversellBackorder OversellPolicy = "backorder"
)

// ParseOversellPolicy разбирает значение из конфигурации; пустая строка: reject.
func ParseOversellPolicy(value string) (OversellPolicy, error) {
	switch OversellPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", OversellReject:
		return OversellReject, nil
	case OversellBackorder:
		return OversellBackorder, nil
	default:
		return "", fmt.Errorf("unknown oversell policy %q", value)
	}
}

// ProviderResolver выбирает платёжного провайдера по способу оплаты.
type ProviderResolver interface {
	Provider(method domain.PaymentMethod) (domain.PaymentProvider, error)
}

// Dependencies — хранилища и адаптеры, с которыми работает координатор.
type Dependencies struct {
	Sessions      domain.SessionStore
	Orders        domain.OrderRepository
	Finalizations domain.FinalizationRepository
	Store         domain.FinalizationStore
	Outbox        domain.OutboxRepository
	Providers     ProviderResolver
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOversellPolicy задаёт политику продажи без остатка.
func WithOversellPolicy(policy OversellPolicy) Option {
	return func(c *Coordinator) {
		if policy != "" {
			c.oversell = policy
		}
	}
}

// WithSessionRetry задаёт повторы обновления сессии после фиксации заказа.
func WithSessionRetry(cfg RetryConfig) Option {
	return func(c *Coordinator) { c.retry = cfg }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// WithMetrics задаёт набор метрик; nil отключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator — конечный автомат checkout одной сессии:
// Idle → AwaitingPayment → Finalizing → Completed.
type Coordinator struct {
	sessions      domain.SessionStore
	orders        domain.OrderRepository
	finalizations domain.FinalizationRepository
	store         domain.FinalizationStore
	outbox        domain.OutboxRepository
	providers     ProviderResolver

	oversell OversellPolicy
	retry    RetryConfig
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
	newID    func() string

	inflight singleflight.Group
}

// NewCoordinator создаёт координатор с метриками в prometheus.DefaultRegisterer.
func NewCoordinator(deps Dependencies, opts ...Option) *Coordinator {
	return newCoordinator(deps, append([]Option{WithMetrics(metrics.NewCheckoutMetrics())}, opts...)...)
}

// NewCoordinatorWithoutMetrics создаёт координатор без метрик (для тестов).
func NewCoordinatorWithoutMetrics(deps Dependencies, opts ...Option) *Coordinator {
	return newCoordinator(deps, opts...)
}

func newCoordinator(deps Dependencies, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:      deps.Sessions,
		orders:        deps.Orders,
		finalizations: deps.Finalizations,
		store:         deps.Store,
		outbox:        deps.Outbox,
		providers:     deps.Providers,
		oversell:      OversellReject,
		retry:         DefaultRetryConfig(),
		logger:        log.WithField("component", "checkout"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OversellPolicy возвращает действующую политику.
func (c *Coordinator) OversellPolicy() OversellPolicy {
	return c.oversell
}

// Session возвращает текущую сессию.
func (c *Coordinator) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return c.sessions.Load(ctx, sessionID)
}

// LastOrderID возвращает идентификатор последнего созданного в сессии заказа; пусто: заказов не было.
func (c *Coordinator) LastOrderID(ctx context.Context, sessionID string) (string, error) {
	session, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.LastOrderID, nil
}

// PopFlash возвращает и удаляет одноразовые сообщения сессии.
func (c *Coordinator) PopFlash(ctx context.Context, sessionID string) ([]domain.FlashMessage, error) {
	var flash []domain.FlashMessage
	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		flash = s.PopFlash()
		if len(flash) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}
	return flash, nil
}

// errNoChange прерывает SessionStore.Update без записи.
var errNoChange = errors.New("session unchanged")

func (c *Coordinator) enqueue(ctx context.Context, msg domain.OutboxMessage) {
	if c.outbox == nil {
		return
	}
	if _, err := c.outbox.Enqueue(ctx, msg); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": msg.AggregateID,
			"event":        msg.EventType,
		}).Error("enqueue event failed")
		return
	}
	if c.metrics != nil {
		c.metrics.RecordOutboxEvent()
	}
}
