package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/confirmation"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// Services — прикладной слой storefront поверх выбранных хранилищ.
type Services struct {
	Catalog     *catalog.Service
	Cart        *cart.Service
	Coordinator *checkout.Coordinator
	Providers   *payment.Registry
	Streams     map[domain.PaymentMethod]*confirmation.Relay
	Idempotency *idempotency.Guard
}

// newProviders собирает адаптеры платёжных провайдеров.
func newProviders(cfg Config, logger *log.Entry) *payment.Registry {
	if cfg.PaymentProvider == PaymentProviderLive {
		nets := payment.NewNETSProvider(payment.NETSConfig{
			BaseURL:   cfg.NETSBaseURL,
			APIKey:    cfg.NETSAPIKey,
			ProjectID: cfg.NETSProjectID,
			TxnID:     cfg.NETSTxnID,
		}, payment.WithNETSLogger(logger.WithField("provider", "nets")))
		paypal := payment.NewPayPalProvider(payment.PayPalConfig{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			Currency:     cfg.PayPalCurrency,
			ReturnURL:    cfg.PayPalReturnURL,
			CancelURL:    cfg.PayPalCancelURL,
		}, payment.WithPayPalLogger(logger.WithField("provider", "paypal")))
		return payment.NewRegistry(nets, paypal)
	}

	logger.Warn("using fake payment providers, payments are confirmed without charging")
	return payment.NewRegistry(
		payment.NewFakeProvider(domain.PaymentMethodNETS),
		payment.NewFakeProvider(domain.PaymentMethodPayPal),
	)
}

// newServices связывает хранилища, провайдеров и координатор финализации.
func newServices(cfg Config, deps *runtimeDependencies, checkoutMetrics *metrics.CheckoutMetrics, logger *log.Entry) (*Services, error) {
	policy, err := checkout.ParseOversellPolicy(cfg.OversellPolicy)
	if err != nil {
		return nil, err
	}

	providers := newProviders(cfg, logger.WithField("component", "payment"))

	opts := []checkout.Option{
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithOversellPolicy(policy),
	}
	if checkoutMetrics != nil {
		opts = append(opts, checkout.WithMetrics(checkoutMetrics))
	}
	coordinator := checkout.NewCoordinatorWithoutMetrics(checkout.Dependencies{
		Sessions:      deps.sessions,
		Orders:        deps.orders,
		Finalizations: deps.finalizations,
		Store:         deps.store,
		Outbox:        deps.outboxRepo,
		Providers:     providers,
	}, opts...)

	streams := make(map[domain.PaymentMethod]*confirmation.Relay)
	for _, method := range providers.Methods() {
		if method.Style() != domain.ConfirmPoll {
			continue
		}
		provider, err := providers.Provider(method)
		if err != nil {
			return nil, err
		}
		relayOpts := []confirmation.Option{
			confirmation.WithInterval(cfg.StreamInterval),
			confirmation.WithLogger(logger.WithField("component", "confirmation-stream")),
		}
		if checkoutMetrics != nil {
			relayOpts = append(relayOpts, confirmation.WithMetrics(checkoutMetrics))
		}
		streams[method] = confirmation.NewRelay(provider, relayOpts...)
	}

	return &Services{
		Catalog:     catalog.NewService(deps.products, deps.orders, logger.WithField("component", "catalog")),
		Cart:        cart.NewService(deps.products, deps.sessions, logger.WithField("component", "cart")),
		Coordinator: coordinator,
		Providers:   providers,
		Streams:     streams,
		Idempotency: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithTTL(cfg.IdempotencyTTL),
			idempotency.WithGuardLogger(logger.WithField("component", "idempotency-guard")),
		),
	}, nil
}

// Handler возвращает HTTP API поверх сервисов.
func (s *Services) Handler(cfg Config, logger *log.Entry) *httpapi.Handler {
	return httpapi.NewHandler(httpapi.Dependencies{
		Catalog:     s.Catalog,
		Cart:        s.Cart,
		Checkout:    s.Coordinator,
		Streams:     s.Streams,
		Methods:     s.Providers.Methods(),
		Idempotency: s.Idempotency,
	},
		httpapi.WithLogger(logger.WithField("component", "http")),
		httpapi.WithSecureCookie(cfg.SecureCookie),
		httpapi.WithRequestTimeout(cfg.RequestTimeout),
	)
}
