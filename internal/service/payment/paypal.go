package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	paypalTokenPath  = "/v1/oauth2/token"
	paypalOrdersPath = "/v2/checkout/orders"

	// tokenExpirySkew — токен обновляется чуть раньше фактического истечения.
	tokenExpirySkew = 30 * time.Second
)

// PayPalConfig — параметры PayPal Orders v2 API.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
	ReturnURL    string
	CancelURL    string
}

// PayPalOption настраивает PayPalProvider.
type PayPalOption func(*PayPalProvider)

// WithPayPalLogger задаёт logger.
func WithPayPalLogger(logger *log.Entry) PayPalOption {
	return func(p *PayPalProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPayPalHTTPClient подменяет HTTP-клиент.
func WithPayPalHTTPClient(client *http.Client) PayPalOption {
	return func(p *PayPalProvider) { p.httpClient = client }
}

// WithPayPalBreaker задаёт параметры circuit breaker.
func WithPayPalBreaker(cfg BreakerConfig) PayPalOption {
	return func(p *PayPalProvider) { p.breakerCfg = cfg }
}

// PayPalProvider — redirect-confirm адаптер PayPal. Браузер уходит по approve-ссылке,
// а PayPal возвращает его на callback финализации с id заказа PayPal.
type PayPalProvider struct {
	cfg        PayPalConfig
	logger     *log.Entry
	httpClient *http.Client
	breakerCfg BreakerConfig
	now        func() time.Time

	client *breakerClient

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPalProvider создаёт адаптер PayPal.
func NewPayPalProvider(cfg PayPalConfig, opts ...PayPalOption) *PayPalProvider {
	p := &PayPalProvider{
		cfg:        cfg,
		logger:     log.WithField("component", "payment-paypal"),
		breakerCfg: DefaultBreakerConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.Currency == "" {
		p.cfg.Currency = "SGD"
	}
	p.cfg.BaseURL = strings.TrimRight(p.cfg.BaseURL, "/")
	p.client = newBreakerClient("paypal", p.httpClient, p.breakerCfg, p.logger)
	return p
}

// Method реализует domain.PaymentProvider.
func (p *PayPalProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodPayPal
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	Amount paypalAmount `json:"amount"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext *paypalAppContext    `json:"application_context,omitempty"`
}

type paypalAppContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// captured сообщает, что заказ завершён и все его captures списаны.
func (o paypalOrder) captured() bool {
	if o.Status != "COMPLETED" {
		return false
	}
	for _, unit := range o.PurchaseUnits {
		for _, c := range unit.Payments.Captures {
			if c.Status != "COMPLETED" {
				return false
			}
		}
	}
	return true
}

// paypalAPIError — ответ PayPal с кодом 4xx/5xx.
type paypalAPIError struct {
	operation string
	status    int
	body      string
}

// rejectsOrder: PayPal отказал по самому заказу, а не из-за авторизации или лимитов.
func (e *paypalAPIError) rejectsOrder() bool {
	switch e.status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func (e *paypalAPIError) Error() string {
	return fmt.Sprintf("paypal %s: status %d: %s", e.operation, e.status, e.body)
}

func (o paypalOrder) link(rel string) string {
	for _, l := range o.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

// Initiate создаёт заказ PayPal с intent CAPTURE и возвращает approve-ссылку.
func (p *PayPalProvider) Initiate(ctx context.Context, amount decimal.Decimal) (domain.PaymentIntent, error) {
	if !amount.IsPositive() {
		return domain.PaymentIntent{}, domain.ErrInvalidAmount
	}

	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			Amount: paypalAmount{CurrencyCode: p.cfg.Currency, Value: domain.RoundMoney(amount).StringFixed(2)},
		}},
	}
	if p.cfg.ReturnURL != "" || p.cfg.CancelURL != "" {
		body.ApplicationContext = &paypalAppContext{ReturnURL: p.cfg.ReturnURL, CancelURL: p.cfg.CancelURL}
	}

	var order paypalOrder
	if err := p.do(ctx, "initiate", http.MethodPost, paypalOrdersPath, body, &order); err != nil {
		p.logger.WithError(err).Warn("paypal create order failed")
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	approve := order.link("approve")
	if order.ID == "" || approve == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: paypal order without id or approve link", domain.ErrProviderUnavailable)
	}

	now := p.now()
	return domain.PaymentIntent{
		Method:            domain.PaymentMethodPayPal,
		Style:             domain.ConfirmRedirect,
		ProviderReference: order.ID,
		Amount:            domain.RoundMoney(amount),
		Status:            domain.PaymentStatusInitiated,
		RedirectURL:       approve,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Query читает статус заказа PayPal: COMPLETED даёт confirmed, VOIDED даёт failed, остальное pending.
func (p *PayPalProvider) Query(ctx context.Context, reference string) domain.PaymentStatus {
	var order paypalOrder
	if err := p.do(ctx, "query", http.MethodGet, paypalOrdersPath+"/"+url.PathEscape(reference), nil, &order); err != nil {
		p.logger.WithError(err).WithField("paypal_order_id", reference).Warn("paypal query failed, reporting pending")
		return domain.PaymentStatusPending
	}

	switch order.Status {
	case "COMPLETED":
		return domain.PaymentStatusConfirmed
	case "VOIDED":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

// Capture списывает одобренный покупателем заказ PayPal. Confirmed возвращается,
// только если заказ и его captures в статусе COMPLETED. Уже списанный заказ
// (ORDER_ALREADY_CAPTURED) проверяется через Query.
func (p *PayPalProvider) Capture(ctx context.Context, reference string) (domain.PaymentStatus, error) {
	logger := p.logger.WithField("paypal_order_id", reference)

	var order paypalOrder
	err := p.do(ctx, "capture", http.MethodPost, paypalOrdersPath+"/"+url.PathEscape(reference)+"/capture", struct{}{}, &order)
	var apiErr *paypalAPIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr) && apiErr.status == http.StatusUnprocessableEntity && strings.Contains(apiErr.body, "ORDER_ALREADY_CAPTURED"):
		logger.Info("paypal order already captured, checking status")
		return p.Query(ctx, reference), nil
	case errors.As(err, &apiErr) && apiErr.rejectsOrder():
		// заказ не одобрен покупателем, отменён или не существует
		logger.WithError(err).Warn("paypal capture rejected")
		return domain.PaymentStatusFailed, nil
	default:
		logger.WithError(err).Warn("paypal capture failed")
		return domain.PaymentStatusPending, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if !order.captured() {
		logger.WithField("status", order.Status).Warn("paypal capture did not complete")
		return domain.PaymentStatusPending, nil
	}
	logger.Info("paypal order captured")
	return domain.PaymentStatusConfirmed, nil
}

func (p *PayPalProvider) do(ctx context.Context, operation, method, path string, body, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal paypal %s body: %w", operation, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := newJSONRequest(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.invalidateToken()
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &paypalAPIError{operation: operation, status: resp.StatusCode, body: string(msg)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode paypal %s response: %w", operation, err)
	}
	return nil
}

// accessToken возвращает кэшированный client-credentials токен или получает новый.
func (p *PayPalProvider) accessToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+paypalTokenPath,
		strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()))
	if err != nil {
		return "", fmt.Errorf("build paypal token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.client.Do(req, "token")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("paypal token: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("paypal token: empty access_token")
	}

	p.token = payload.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenExpirySkew)
	return p.token, nil
}

func (p *PayPalProvider) invalidateToken() {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	p.token = ""
}

var (
	_ domain.PaymentProvider = (*PayPalProvider)(nil)
	_ domain.PaymentCapturer = (*PayPalProvider)(nil)
)
