package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — сколько хранится ответ на запрос с Idempotency-Key.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInFlight — запрос с тем же ключом ещё выполняется.
	ErrInFlight = errors.New("request with the same idempotency key is already processing")
	// ErrCorrupted — у записи неизвестный статус или пустой ответ.
	ErrCorrupted = errors.New("idempotency record is corrupted")
)

// Response — сохранённый ответ, который отдаётся при повторе запроса.
type Response struct {
	Status int
	Body   []byte
}

// Ticket выдаётся Begin для первого запроса с ключом.
// Ровно один из Succeed или Fail должен быть вызван после обработки.
type Ticket struct {
	guard *Guard
	key   string
}

// Guard реализует протокол Idempotency-Key поверх IdempotencyRepository.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт время жизни записи.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardClock подменяет источник времени.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard создаёт Guard.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithField("component", "idempotency-guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Begin регистрирует ключ. Для нового ключа возвращается Ticket.
// Для завершённого ключа с тем же hash возвращается сохранённый ответ (успешный или нет).
// ErrInFlight — первый запрос ещё выполняется; domain.ErrIdempotencyHashMismatch — ключ занят другим телом.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Ticket, *Response, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return &Ticket{guard: g, key: record.Key}, nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		resp, replayErr := replay(record)
		return nil, resp, replayErr
	default:
		return nil, nil, fmt.Errorf("create idempotency record: %w", err)
	}
}

func replay(record domain.IdempotencyRecord) (*Response, error) {
	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, ErrInFlight
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		if record.HTTPStatus == 0 {
			return nil, ErrCorrupted
		}
		return &Response{Status: record.HTTPStatus, Body: append([]byte(nil), record.ResponseBody...)}, nil
	default:
		return nil, ErrCorrupted
	}
}

// Key возвращает ключ, под которым будет сохранён ответ.
func (t *Ticket) Key() string { return t.key }

// Succeed сохраняет успешный ответ.
func (t *Ticket) Succeed(ctx context.Context, status int, body []byte) {
	if err := t.guard.repo.MarkDone(ctx, t.key, body, status); err != nil {
		t.guard.logger.WithError(err).WithField("idempotency_key", t.key).Warn("failed to store idempotent success response")
	}
}

// Fail сохраняет ответ с ошибкой; повторы до истечения TTL получат его же.
func (t *Ticket) Fail(ctx context.Context, status int, body []byte) {
	if err := t.guard.repo.MarkFailed(ctx, t.key, body, status); err != nil {
		t.guard.logger.WithError(err).WithField("idempotency_key", t.key).Warn("failed to store idempotent failure response")
	}
}
