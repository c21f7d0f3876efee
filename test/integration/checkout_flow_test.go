package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/confirmation"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// CheckoutFlowTestSuite гоняет полный путь покупателя через HTTP API:
// корзина, оплата, подтверждение, фиксация заказа и публикация outbox.
type CheckoutFlowTestSuite struct {
	suite.Suite
	server    *httptest.Server
	products  domain.ProductRepository
	orders    domain.OrderRepository
	worker    *outbox.Worker
	published *recordingPublisher
}

func (s *CheckoutFlowTestSuite) setup(policy checkout.OversellPolicy) {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	store := memory.NewStore()
	sessions := memory.NewSessionStore()
	outboxRepo := memory.NewOutboxRepository(store)
	nets := payment.NewFakeProvider(domain.PaymentMethodNETS)
	s.products = memory.NewProductRepository(store)
	s.orders = memory.NewOrderRepository(store)
	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(outboxRepo, s.published, outbox.WithLogger(logger))

	coord := checkout.NewCoordinatorWithoutMetrics(checkout.Dependencies{
		Sessions:      sessions,
		Orders:        s.orders,
		Finalizations: memory.NewFinalizationRepository(store),
		Store:         memory.NewFinalizationStore(store),
		Outbox:        outboxRepo,
		Providers:     payment.NewRegistry(nets, payment.NewFakeProvider(domain.PaymentMethodPayPal)),
	}, checkout.WithOversellPolicy(policy))

	handler := httpapi.NewHandler(httpapi.Dependencies{
		Catalog:  catalog.NewService(s.products, s.orders, logger),
		Cart:     cart.NewService(s.products, sessions, logger),
		Checkout: coord,
		Streams: map[domain.PaymentMethod]*confirmation.Relay{
			domain.PaymentMethodNETS: confirmation.NewRelay(nets, confirmation.WithInterval(10*time.Millisecond)),
		},
		Methods:     []domain.PaymentMethod{domain.PaymentMethodNETS, domain.PaymentMethodPayPal},
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository()),
	}, httpapi.WithLogger(logger))

	s.server = httptest.NewServer(handler.Router())
	for _, p := range []domain.Product{
		{ID: 1, Name: "Kopi", Price: decimal.RequireFromString("2.20"), Quantity: 5},
		{ID: 2, Name: "Kaya toast", Price: decimal.RequireFromString("3.80"), Quantity: 1},
	} {
		_, err := s.products.Create(context.Background(), p)
		s.Require().NoError(err)
	}
}

func (s *CheckoutFlowTestSuite) SetupTest() {
	s.setup(checkout.OversellReject)
}

func (s *CheckoutFlowTestSuite) TearDownTest() {
	s.server.Close()
}

type shopper struct {
	t      *testing.T
	base   string
	client *http.Client
	userID string
}

func (s *CheckoutFlowTestSuite) newShopper(userID string) *shopper {
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	return &shopper{
		t:    s.T(),
		base: s.server.URL,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userID: userID,
	}
}

func (sh *shopper) do(method, path, body string) *http.Response {
	sh.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, sh.base+path, reader)
	require.NoError(sh.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(httpapi.HeaderUserID, sh.userID)
	resp, err := sh.client.Do(req)
	require.NoError(sh.t, err)
	sh.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func data[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

type intent struct {
	ProviderReference string `json:"provider_reference"`
	RedirectURL       string `json:"redirect_url"`
	StreamURL         string `json:"stream_url"`
}

func (s *CheckoutFlowTestSuite) TestNETSFlow_ConfirmThenFinalize() {
	sh := s.newShopper("user-nets")

	resp := sh.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = sh.do(http.MethodPost, "/api/v1/payments", `{"method":"nets"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	pay := data[intent](s.T(), resp)
	s.Require().NotEmpty(pay.StreamURL)

	stream := sh.do(http.MethodGet, pay.StreamURL, "")
	s.Require().Equal(http.StatusOK, stream.StatusCode)
	reader := bufio.NewReader(stream.Body)
	var frames []string
	for len(frames) < 2 {
		line, err := reader.ReadString('\n')
		s.Require().NoError(err)
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimSpace(line))
		}
	}
	s.Equal([]string{`data: {"pending":true}`, `data: {"success":true}`}, frames)

	resp = sh.do(http.MethodGet, "/checkout/finalize?method=nets&txnRetrievalRef="+pay.ProviderReference, "")
	s.Require().Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal(httpapi.PathSuccess, resp.Header.Get("Location"))

	product, err := s.products.Get(context.Background(), 1)
	s.Require().NoError(err)
	s.Equal(3, product.Quantity)

	orders := data[[]map[string]any](s.T(), sh.do(http.MethodGet, "/api/v1/orders", ""))
	s.Require().Len(orders, 1)
	s.Equal("4.40", orders[0]["total_amount"])
	s.Equal(pay.ProviderReference, orders[0]["provider_reference"])

	s.Require().Positive(s.worker.ProcessOnce(context.Background()))
	s.Contains(s.published.types(), domain.EventPaymentInitiated)
	s.Contains(s.published.types(), domain.EventOrderFinalized)
}

func (s *CheckoutFlowTestSuite) TestPayPalFlow_RepeatedCallbackIsIdempotent() {
	sh := s.newShopper("user-paypal")

	s.Require().Equal(http.StatusOK, sh.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`).StatusCode)
	pay := data[intent](s.T(), sh.do(http.MethodPost, "/api/v1/payments", `{"method":"paypal"}`))
	s.Require().NotEmpty(pay.RedirectURL)

	for i := 0; i < 3; i++ {
		resp := sh.do(http.MethodGet, pay.RedirectURL, "")
		s.Require().Equal(http.StatusSeeOther, resp.StatusCode)
		s.Equal(httpapi.PathSuccess, resp.Header.Get("Location"))
	}

	all, err := s.orders.ListAll(context.Background(), 0)
	s.Require().NoError(err)
	s.Len(all, 1)

	product, err := s.products.Get(context.Background(), 2)
	s.Require().NoError(err)
	s.Zero(product.Quantity)

	flash := data[[]domain.FlashMessage](s.T(), sh.do(http.MethodGet, "/api/v1/flash", ""))
	s.Len(flash, 1)
}

func (s *CheckoutFlowTestSuite) TestOversell_RejectKeepsLoserCart() {
	winner := s.newShopper("user-a")
	loser := s.newShopper("user-b")

	for _, sh := range []*shopper{winner, loser} {
		s.Require().Equal(http.StatusOK, sh.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`).StatusCode)
	}

	payWinner := data[intent](s.T(), winner.do(http.MethodPost, "/api/v1/payments", `{"method":"paypal"}`))
	payLoser := data[intent](s.T(), loser.do(http.MethodPost, "/api/v1/payments", `{"method":"paypal"}`))

	s.Equal(httpapi.PathSuccess, winner.do(http.MethodGet, payWinner.RedirectURL, "").Header.Get("Location"))
	s.Equal(httpapi.PathCheckout, loser.do(http.MethodGet, payLoser.RedirectURL, "").Header.Get("Location"))

	product, err := s.products.Get(context.Background(), 2)
	s.Require().NoError(err)
	s.Zero(product.Quantity, "stock must never go negative under reject policy")

	loserCart := data[map[string]any](s.T(), loser.do(http.MethodGet, "/api/v1/cart", ""))
	s.Equal("3.80", loserCart["total"])
}

func (s *CheckoutFlowTestSuite) TestOversell_BackorderRecordsEvent() {
	s.server.Close()
	s.setup(checkout.OversellBackorder)

	sh := s.newShopper("user-backorder")
	s.Require().Equal(http.StatusOK, sh.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`).StatusCode)

	// остаток уходит в ноль между добавлением в корзину и оплатой
	_, err := s.products.Decrement(context.Background(), 2, 1)
	s.Require().NoError(err)

	pay := data[intent](s.T(), sh.do(http.MethodPost, "/api/v1/payments", `{"method":"paypal"}`))
	s.Equal(httpapi.PathSuccess, sh.do(http.MethodGet, pay.RedirectURL, "").Header.Get("Location"))

	s.worker.ProcessOnce(context.Background())
	s.Contains(s.published.types(), domain.EventStockOversold)
}

func TestCheckoutFlowSuite(t *testing.T) {
	suite.Run(t, new(CheckoutFlowTestSuite))
}
