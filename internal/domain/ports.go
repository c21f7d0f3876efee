package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProvider — адаптер внешнего платёжного провайдера.
type PaymentProvider interface {
	// Method возвращает способ оплаты, который обслуживает адаптер.
	Method() PaymentMethod
	// Initiate создаёт платёж у провайдера. ErrInvalidAmount при amount <= 0,
	// ErrProviderUnavailable если провайдер недоступен.
	Initiate(ctx context.Context, amount decimal.Decimal) (PaymentIntent, error)
	// Query — точечная проверка статуса. Ошибки транспорта дают pending, а не failed.
	Query(ctx context.Context, reference string) PaymentStatus
}

// StatusPoller опрашивает один платёж в пределах одного потока подтверждения.
type StatusPoller interface {
	Poll(ctx context.Context) PaymentStatus
}

// PollerProvider реализуют провайдеры, у которых ответ зависит от предыдущих
// ответов того же потока. Состояние poller не разделяется между потоками.
type PollerProvider interface {
	NewPoller(reference string) StatusPoller
}

// PaymentCapturer реализуют redirect-confirm провайдеры, у которых одобрение
// покупателя ещё не означает списания. Capture возвращает confirmed только
// после фактического перевода денег.
type PaymentCapturer interface {
	Capture(ctx context.Context, reference string) (PaymentStatus, error)
}

// SessionStore хранит сессии storefront по идентификатору.
type SessionStore interface {
	// Load возвращает сессию; отсутствующая сессия возвращается пустой, без ошибки.
	Load(ctx context.Context, sessionID string) (Session, error)
	// Update атомарно читает, изменяет и сохраняет сессию.
	// Если fn вернула ошибку, изменения не сохраняются.
	Update(ctx context.Context, sessionID string, fn func(*Session) error) (Session, error)
	// Delete удаляет сессию.
	Delete(ctx context.Context, sessionID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
