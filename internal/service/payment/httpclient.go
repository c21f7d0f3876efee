package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/storefront/internal/version"
)

var (
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_provider_requests_total",
		Help: "Total number of payment provider HTTP calls grouped by provider, operation and result.",
	}, []string{"provider", "operation", "result"})
	providerBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_payment_provider_breaker_state",
		Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open).",
	}, []string{"provider"})
)

// BreakerConfig — параметры circuit breaker вокруг HTTP-вызовов провайдера.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig возвращает настройки по умолчанию.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// breakerClient выполняет HTTP-запросы через gobreaker. Ответы 5xx считаются отказом.
type breakerClient struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newBreakerClient(name string, httpClient *http.Client, cfg BreakerConfig, logger *log.Entry) *breakerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("payment provider circuit breaker state change")
			providerBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}
	providerBreakerState.WithLabelValues(name).Set(0)

	return &breakerClient{
		name:    name,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Do выполняет запрос; operation попадает в метрики.
func (c *breakerClient) Do(req *http.Request, operation string) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("provider server error %d: %s", resp.StatusCode, body)
		}
		return resp, nil
	})
	if err != nil {
		providerRequests.WithLabelValues(c.name, operation, "error").Inc()
		return nil, err
	}
	providerRequests.WithLabelValues(c.name, operation, "ok").Inc()
	return resp, nil
}

// State возвращает текущее состояние breaker.
func (c *breakerClient) State() gobreaker.State {
	return c.breaker.State()
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func newJSONRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}
