package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

type storefront struct {
	server   *httptest.Server
	products domain.ProductRepository
	orders   domain.OrderRepository
}

func newStorefront(t *testing.T, stock int) *storefront {
	t.Helper()

	store := memory.NewStore()
	sessions := memory.NewSessionStore()
	sf := &storefront{
		products: memory.NewProductRepository(store),
		orders:   memory.NewOrderRepository(store),
	}
	_, err := sf.products.Create(context.Background(), domain.Product{
		ID: 1, Name: "load", Price: decimal.RequireFromString("2.50"), Quantity: stock,
	})
	require.NoError(t, err)

	coord := checkout.NewCoordinatorWithoutMetrics(checkout.Dependencies{
		Sessions:      sessions,
		Orders:        sf.orders,
		Finalizations: memory.NewFinalizationRepository(store),
		Store:         memory.NewFinalizationStore(store),
		Outbox:        memory.NewOutboxRepository(store),
		Providers: payment.NewRegistry(
			payment.NewFakeProvider(domain.PaymentMethodNETS),
			payment.NewFakeProvider(domain.PaymentMethodPayPal),
		),
	})

	logger := log.WithField("test", "loadtest")
	handler := httpapi.NewHandler(httpapi.Dependencies{
		Catalog:     catalog.NewService(sf.products, sf.orders, logger),
		Cart:        cart.NewService(sf.products, sessions, logger),
		Checkout:    coord,
		Methods:     []domain.PaymentMethod{domain.PaymentMethodPayPal},
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository()),
	}, httpapi.WithLogger(logger))

	sf.server = httptest.NewServer(handler.Router())
	t.Cleanup(sf.server.Close)
	return sf
}

func testConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		total:       12,
		concurrency: 4,
		timeout:     5 * time.Second,
		mode:        mode,
		productID:   1,
		quantity:    1,
		userTag:     "test",
		verify:      true,
	}
}

func TestRun_Checkout(t *testing.T) {
	sf := newStorefront(t, 100)

	result, err := run(context.Background(), testConfig(sf.server.URL, modeCheckout), http.DefaultTransport)
	require.NoError(t, err)

	assert.EqualValues(t, 12, result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.Empty(t, result.Violations)
	assert.EqualValues(t, 12, result.Steps["Finalize"].Calls)

	product, err := sf.products.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 88, product.Quantity)
}

func TestRun_ReplayDoesNotDuplicateOrders(t *testing.T) {
	sf := newStorefront(t, 100)

	result, err := run(context.Background(), testConfig(sf.server.URL, modeReplay), http.DefaultTransport)
	require.NoError(t, err)

	assert.Zero(t, result.FailedScenarios)
	assert.Empty(t, result.Violations)
	assert.EqualValues(t, 24, result.Steps["Finalize"].Calls)

	all, err := sf.orders.ListAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestRun_UnknownProductFailsScenarios(t *testing.T) {
	sf := newStorefront(t, 100)
	cfg := testConfig(sf.server.URL, modeCheckout)
	cfg.productID = 404
	cfg.verify = false

	result, err := run(context.Background(), cfg, http.DefaultTransport)
	require.NoError(t, err)
	assert.EqualValues(t, cfg.total, result.FailedScenarios)
	assert.EqualValues(t, cfg.total, result.Steps["AddToCart"].Statuses["404"])
}

func TestVerify_UnreachableServer(t *testing.T) {
	sf := newStorefront(t, 1)
	cfg := testConfig(sf.server.URL, modeCheckout)
	sf.server.Close()

	_, err := verify(context.Background(), cfg, http.DefaultTransport)
	assert.Error(t, err)
}

func TestDuplicateOrders(t *testing.T) {
	violations := duplicateOrders([]orderResponse{
		{ID: "o-1", ProviderReference: "PP-1"},
		{ID: "o-2", ProviderReference: "PP-2"},
		{ID: "o-3", ProviderReference: "PP-1"},
		{ID: "o-4"},
	})
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "PP-1")
	assert.Contains(t, violations[0], "o-3")
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-base-url=http://shop:8080/", "-mode=checkout-replay", "-total=5", "-concurrency=2"})
	require.NoError(t, err)
	assert.Equal(t, "http://shop:8080", cfg.baseURL)
	assert.Equal(t, modeReplay, cfg.mode)
	assert.Equal(t, 5, cfg.total)
	assert.True(t, cfg.verify)

	testCases := []struct {
		args    []string
		wantErr string
	}{
		{args: []string{"-mode=create"}, wantErr: "unsupported mode"},
		{args: []string{"-total=0"}, wantErr: "total must be > 0"},
		{args: []string{"-concurrency=0"}, wantErr: "concurrency must be > 0"},
		{args: []string{"-timeout=0s"}, wantErr: "timeout must be > 0"},
		{args: []string{"-product-id=0"}, wantErr: "product-id must be > 0"},
		{args: []string{"-quantity=0"}, wantErr: "quantity must be > 0"},
		{args: []string{"-user-tag= "}, wantErr: "user-tag is required"},
		{args: []string{"-base-url= "}, wantErr: "base-url is required"},
	}
	for _, tc := range testCases {
		_, err := parseConfig(tc.args)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("args %v: expected error containing %q, got %v", tc.args, tc.wantErr, err)
		}
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record("AddToCart", 10*time.Millisecond, http.StatusOK, nil)
	col.record("AddToCart", 20*time.Millisecond, http.StatusBadGateway, nil)
	col.record("Finalize", 5*time.Millisecond, 0, context.DeadlineExceeded)
	col.recordScenario(30*time.Millisecond, nil)
	col.recordScenario(40*time.Millisecond, context.DeadlineExceeded)

	result := col.buildReport(time.Now(), 2*time.Second)
	assert.EqualValues(t, 2, result.TotalScenarios)
	assert.EqualValues(t, 1, result.FailedScenarios)
	assert.InDelta(t, 0.5, result.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0, result.RPS, 1e-9)
	assert.NotContains(t, result.Steps, scenarioName)

	add := result.Steps["AddToCart"]
	assert.EqualValues(t, 2, add.Calls)
	assert.EqualValues(t, 1, add.Failed)
	assert.EqualValues(t, 1, add.Statuses["502"])
	assert.EqualValues(t, 1, result.Steps["Finalize"].Statuses["transport_error"])
}

func TestLatencyHelpers(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
	assert.Equal(t, 2.5, summary.P50)

	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.Zero(t, ratio(1, 0))
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3}))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 3, decoded.TotalScenarios)

	assert.Error(t, writeJSONReport(".", report{}))
	assert.Error(t, writeJSONReport("../escape.json", report{}))
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, report{
		TotalScenarios: 2,
		Steps: map[string]stepReport{
			"Finalize":  {Calls: 2},
			"AddToCart": {Calls: 2},
		},
		Violations: []string{"product 1 has negative stock -1"},
	}, config{mode: modeCheckout})

	text := out.String()
	assert.Contains(t, text, "mode=checkout total=2")
	assert.Less(t, strings.Index(text, "AddToCart"), strings.Index(text, "Finalize"))
	assert.Contains(t, text, "VIOLATION: product 1 has negative stock -1")
}
