package confirmation

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// DefaultInterval — пауза между запросами статуса к провайдеру.
const DefaultInterval = 2 * time.Second

// EmitFunc отправляет событие клиенту. Ошибка прекращает поток.
type EmitFunc func(Event) error

// ObserveFunc получает каждый статус, прочитанный у провайдера.
type ObserveFunc func(ctx context.Context, status domain.PaymentStatus)

// Option настраивает Relay.
type Option func(*Relay)

// WithInterval задаёт период опроса провайдера.
func WithInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает метрики потоков.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay опрашивает poll-confirm провайдера и транслирует статусы в поток событий.
type Relay struct {
	provider domain.PaymentProvider
	interval time.Duration
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// NewRelay создаёт Relay поверх провайдера.
func NewRelay(provider domain.PaymentProvider, opts ...Option) *Relay {
	r := &Relay{
		provider: provider,
		interval: DefaultInterval,
		logger:   log.WithField("component", "confirmation-stream"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval возвращает период опроса.
func (r *Relay) Interval() time.Duration {
	return r.interval
}

// Run запрашивает статус сразу, затем каждые interval, и на каждой итерации отправляет
// ровно одно событие. Возвращается после success/fail или отмены ctx;
// после отмены ctx события не отправляются.
func (r *Relay) Run(ctx context.Context, reference string, emit EmitFunc, observe ObserveFunc) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.ErrProofMissing
	}

	if r.metrics != nil {
		r.metrics.RecordStreamOpened()
		defer r.metrics.RecordStreamClosed()
	}

	logger := r.logger.WithField("reference", reference)
	logger.Debug("confirmation stream opened")

	poller := r.poller(reference)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		status := poller.Poll(ctx)
		if ctx.Err() != nil {
			logger.Debug("confirmation stream closed by client")
			return nil
		}

		if observe != nil {
			observe(ctx, status)
		}

		event := EventFor(status)
		if err := emit(event); err != nil {
			return fmt.Errorf("emit %s event: %w", event, err)
		}
		if r.metrics != nil {
			r.metrics.RecordStreamEvent(string(event))
		}

		if event.Terminal() {
			logger.WithField("event", event).Info("confirmation stream finished")
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Debug("confirmation stream closed by client")
			return nil
		case <-ticker.C:
		}
	}
}

// poller создаёт состояние опроса для одного вызова Run.
func (r *Relay) poller(reference string) domain.StatusPoller {
	if pp, ok := r.provider.(domain.PollerProvider); ok {
		return pp.NewPoller(reference)
	}
	return queryPoller{provider: r.provider, reference: reference}
}

type queryPoller struct {
	provider  domain.PaymentProvider
	reference string
}

func (q queryPoller) Poll(ctx context.Context) domain.PaymentStatus {
	return q.provider.Query(ctx, q.reference)
}
