package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/confirmation"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const defaultRequestTimeout = 30 * time.Second

// Checkout — операции координатора, которые нужны HTTP-слою.
type Checkout interface {
	InitiatePayment(ctx context.Context, sessionID string, method domain.PaymentMethod) (domain.PaymentIntent, error)
	ObservePayment(ctx context.Context, sessionID, reference string, status domain.PaymentStatus) error
	CancelPayment(ctx context.Context, sessionID string) error
	Finalize(ctx context.Context, sessionID, userID string, proof domain.Proof) (checkout.Result, error)
	LastOrderID(ctx context.Context, sessionID string) (string, error)
	PopFlash(ctx context.Context, sessionID string) ([]domain.FlashMessage, error)
}

// Dependencies — сервисы, которые обслуживает router.
type Dependencies struct {
	Catalog  *catalog.Service
	Cart     *cart.Service
	Checkout Checkout
	// Streams — relay подтверждения для poll-confirm способов оплаты.
	Streams map[domain.PaymentMethod]*confirmation.Relay
	// Methods — доступные способы оплаты.
	Methods []domain.PaymentMethod
	// Idempotency — nil отключает поддержку Idempotency-Key.
	Idempotency *idempotency.Guard
}

// Handler — HTTP API storefront.
type Handler struct {
	deps           Dependencies
	logger         *log.Entry
	secureCookie   bool
	requestTimeout time.Duration
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSecureCookie выставляет флаг Secure у cookie сессии.
func WithSecureCookie(secure bool) Option {
	return func(h *Handler) { h.secureCookie = secure }
}

// WithRequestTimeout ограничивает время обработки API-запросов. Поток подтверждения не ограничивается.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.requestTimeout = timeout
		}
	}
}

// NewHandler создаёт Handler.
func NewHandler(deps Dependencies, opts ...Option) *Handler {
	h := &Handler{
		deps:           deps,
		logger:         log.WithField("component", "http"),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router собирает chi router со всеми маршрутами storefront.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(h.logger))
	r.Use(recoverer(h.logger))
	r.Use(withSession(h.secureCookie))
	r.Use(withIdentity)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(h.requestTimeout))

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/items", h.addCartItem)
		r.Put("/cart/items/{productId}", h.updateCartItem)
		r.Delete("/cart/items/{productId}", h.removeCartItem)

		r.Get("/payments/methods", h.paymentMethods)
		r.Post("/payments", h.initiatePayment)
		r.Delete("/payments/pending", h.cancelPayment)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getInvoice)
		r.Get("/flash", h.popFlash)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/products/{id}/stock", h.adjustStock)
			r.Get("/orders", h.listAllOrders)
		})
	})

	r.Get("/nets-qr/sse/{txnRetrievalRef}", h.streamConfirmation)
	r.Get("/checkout/finalize", h.finalize)
	r.Get("/checkout/success", h.success)

	return r
}
