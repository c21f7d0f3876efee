package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неуспешной финализации для метки reason.
const (
	FailureValidation  = "validation"
	FailureOversell    = "oversell"
	FailurePersistence = "persistence"
	FailureProvider    = "provider"
)

// CheckoutMetrics содержит метрики финализации заказов и потоков подтверждения.
type CheckoutMetrics struct {
	// Финализация
	checkoutStarted    prometheus.Counter
	checkoutCompleted  prometheus.Counter
	checkoutDuplicate  prometheus.Counter
	checkoutFailed     *prometheus.CounterVec
	oversell           prometheus.Counter
	activeFinalization prometheus.Gauge

	commitDuration prometheus.Histogram
	stepDuration   *prometheus.HistogramVec

	paymentsInitiated *prometheus.CounterVec
	outboxEvents      prometheus.Counter

	// Поток подтверждения
	streamsOpen  prometheus.Gauge
	streamEvents *prometheus.CounterVec
}

// NewCheckoutMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of finalization attempts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_completed_total",
			Help: "Total number of orders created by finalization",
		}),
		checkoutDuplicate: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_duplicate_total",
			Help: "Total number of repeated finalization signals resolved to an existing order",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of failed finalization attempts by reason",
		}, []string{"reason"}),
		oversell: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_oversell_total",
			Help: "Total number of order lines whose guarded stock decrement was not applied",
		}),
		activeFinalization: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_checkout_active_finalizations",
			Help: "Number of finalizations currently in progress",
		}),
		commitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_commit_duration_seconds",
			Help:    "Duration of the finalization commit protocol in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual commit protocol steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		paymentsInitiated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_initiated_total",
			Help: "Total number of payment intents created by method",
		}, []string{"method"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_outbox_events_total",
			Help: "Total number of events written to the outbox by checkout",
		}),
		streamsOpen: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_confirmation_streams_open",
			Help: "Number of currently open confirmation streams",
		}),
		streamEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_confirmation_stream_events_total",
			Help: "Total number of events relayed to confirmation streams by kind",
		}, []string{"event"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordFinalizationStarted отмечает начало финализации.
func (m *CheckoutMetrics) RecordFinalizationStarted() {
	m.checkoutStarted.Inc()
	m.activeFinalization.Inc()
}

// RecordFinalizationFinished уменьшает количество активных финализаций.
func (m *CheckoutMetrics) RecordFinalizationFinished() {
	m.activeFinalization.Dec()
}

// RecordCompleted увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordCompleted() {
	m.checkoutCompleted.Inc()
}

// RecordDuplicate увеличивает счётчик повторных сигналов финализации.
func (m *CheckoutMetrics) RecordDuplicate() {
	m.checkoutDuplicate.Inc()
}

// RecordFailed увеличивает счётчик неудачных финализаций с причиной reason.
func (m *CheckoutMetrics) RecordFailed(reason string) {
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordOversell увеличивает счётчик позиций без списания остатка.
func (m *CheckoutMetrics) RecordOversell() {
	m.oversell.Inc()
}

// RecordCommitDuration записывает длительность протокола фиксации.
func (m *CheckoutMetrics) RecordCommitDuration(duration time.Duration) {
	m.commitDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает длительность шага протокола фиксации.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordPaymentInitiated увеличивает счётчик созданных платежей.
func (m *CheckoutMetrics) RecordPaymentInitiated(method string) {
	m.paymentsInitiated.WithLabelValues(method).Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordStreamOpened увеличивает количество открытых потоков подтверждения.
func (m *CheckoutMetrics) RecordStreamOpened() {
	m.streamsOpen.Inc()
}

// RecordStreamClosed уменьшает количество открытых потоков подтверждения.
func (m *CheckoutMetrics) RecordStreamClosed() {
	m.streamsOpen.Dec()
}

// RecordStreamEvent увеличивает счётчик отправленных событий потока.
func (m *CheckoutMetrics) RecordStreamEvent(event string) {
	m.streamEvents.WithLabelValues(event).Inc()
}
