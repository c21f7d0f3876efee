package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	netsRequestPath = "/api/v1/common/payments/nets-qr/request"
	netsQueryPath   = "/api/v1/common/payments/nets-qr/query"

	netsResponseOK     = "00"
	netsStatusAccepted = 1
	netsStatusFailed   = 3
	netsStatusCanceled = 4

	qrDataURLPrefix = "data:image/png;base64,"
)

// NETSConfig — параметры NETS QR API.
type NETSConfig struct {
	BaseURL   string
	APIKey    string
	ProjectID string
	// TxnID — идентификатор терминала/мерчанта, который NETS ждёт в каждом запросе.
	TxnID string
}

// NETSOption настраивает NETSProvider.
type NETSOption func(*NETSProvider)

// WithNETSLogger задаёт logger.
func WithNETSLogger(logger *log.Entry) NETSOption {
	return func(p *NETSProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNETSHTTPClient подменяет HTTP-клиент (тесты, таймауты).
func WithNETSHTTPClient(client *http.Client) NETSOption {
	return func(p *NETSProvider) { p.httpClient = client }
}

// WithNETSBreaker задаёт параметры circuit breaker.
func WithNETSBreaker(cfg BreakerConfig) NETSOption {
	return func(p *NETSProvider) { p.breakerCfg = cfg }
}

// WithNETSClock подменяет источник времени.
func WithNETSClock(now func() time.Time) NETSOption {
	return func(p *NETSProvider) { p.now = now }
}

// NETSProvider — poll-confirm адаптер NETS QR.
type NETSProvider struct {
	cfg        NETSConfig
	logger     *log.Entry
	httpClient *http.Client
	breakerCfg BreakerConfig
	now        func() time.Time

	client *breakerClient
}

// NewNETSProvider создаёт адаптер NETS.
func NewNETSProvider(cfg NETSConfig, opts ...NETSOption) *NETSProvider {
	p := &NETSProvider{
		cfg:        cfg,
		logger:     log.WithField("component", "payment-nets"),
		breakerCfg: DefaultBreakerConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg.BaseURL = strings.TrimRight(p.cfg.BaseURL, "/")
	p.client = newBreakerClient("nets", p.httpClient, p.breakerCfg, p.logger)
	return p
}

// Method реализует domain.PaymentProvider.
func (p *NETSProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodNETS
}

type netsRequestBody struct {
	TxnID        string      `json:"txn_id"`
	AmtInDollars json.Number `json:"amt_in_dollars"`
	NotifyMobile int         `json:"notify_mobile"`
}

type netsQueryBody struct {
	TxnRetrievalRef string `json:"txn_retrieval_ref"`
}

type netsEnvelope struct {
	Result struct {
		Data netsData `json:"data"`
	} `json:"result"`
}

type netsData struct {
	ResponseCode    string      `json:"response_code"`
	TxnStatus       json.Number `json:"txn_status"`
	QRCode          string      `json:"qr_code"`
	TxnRetrievalRef string      `json:"txn_retrieval_ref"`
}

func (d netsData) status() int {
	n, err := d.TxnStatus.Int64()
	if err != nil {
		return -1
	}
	return int(n)
}

// Initiate запрашивает QR-код на сумму amount.
func (p *NETSProvider) Initiate(ctx context.Context, amount decimal.Decimal) (domain.PaymentIntent, error) {
	if !amount.IsPositive() {
		return domain.PaymentIntent{}, domain.ErrInvalidAmount
	}

	data, err := p.call(ctx, "initiate", netsRequestPath, netsRequestBody{
		TxnID:        p.cfg.TxnID,
		AmtInDollars: json.Number(domain.RoundMoney(amount).StringFixed(2)),
		NotifyMobile: 0,
	})
	if err != nil {
		p.logger.WithError(err).Warn("nets qr request failed")
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if data.ResponseCode != netsResponseOK || data.status() != netsStatusAccepted || data.QRCode == "" || data.TxnRetrievalRef == "" {
		p.logger.WithFields(log.Fields{
			"response_code": data.ResponseCode,
			"txn_status":    data.TxnStatus.String(),
		}).Warn("nets qr request rejected")
		return domain.PaymentIntent{}, fmt.Errorf("%w: nets rejected qr request (code %q)", domain.ErrProviderUnavailable, data.ResponseCode)
	}

	now := p.now()
	return domain.PaymentIntent{
		Method:            domain.PaymentMethodNETS,
		Style:             domain.ConfirmPoll,
		ProviderReference: data.TxnRetrievalRef,
		Amount:            domain.RoundMoney(amount),
		Status:            domain.PaymentStatusInitiated,
		QRCode:            qrDataURLPrefix + data.QRCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Query — разовая проверка статуса QR-платежа вне потока подтверждения.
// Одного ответа accepted для подтверждения мало, поэтому он даёт pending.
func (p *NETSProvider) Query(ctx context.Context, reference string) domain.PaymentStatus {
	return p.query(ctx, reference, &acceptStreak{})
}

// NewPoller возвращает poller одного потока подтверждения со своей серией accepted.
func (p *NETSProvider) NewPoller(reference string) domain.StatusPoller {
	return &netsPoller{provider: p, reference: reference}
}

type netsPoller struct {
	provider  *NETSProvider
	reference string
	streak    acceptStreak
}

func (n *netsPoller) Poll(ctx context.Context) domain.PaymentStatus {
	return n.provider.query(ctx, n.reference, &n.streak)
}

// query опрашивает статус QR-платежа.
//
// txn_status 3/4: failed. Ответ 00 + txn_status 1 («accepted») даёт pending в первый раз
// и confirmed во второй раз подряд в той же серии. Любой другой ответ даёт pending
// и прерывает серию. Ошибка транспорта даёт pending и серию не трогает.
func (p *NETSProvider) query(ctx context.Context, reference string, streak *acceptStreak) domain.PaymentStatus {
	data, err := p.call(ctx, "query", netsQueryPath, netsQueryBody{TxnRetrievalRef: reference})
	if err != nil {
		p.logger.WithError(err).WithField("txn_retrieval_ref", reference).Warn("nets query failed, reporting pending")
		return domain.PaymentStatusPending
	}

	status := data.status()
	logger := p.logger.WithFields(log.Fields{
		"txn_retrieval_ref": reference,
		"response_code":     data.ResponseCode,
		"txn_status":        status,
	})

	switch {
	case status == netsStatusFailed || status == netsStatusCanceled:
		streak.Reset()
		logger.Info("nets payment failed")
		return domain.PaymentStatusFailed
	case data.ResponseCode == netsResponseOK && status == netsStatusAccepted:
		if streak.Accepted() {
			logger.Info("nets payment accepted twice in a row, treating as confirmed")
			return domain.PaymentStatusConfirmed
		}
		logger.Debug("nets payment accepted, waiting for second observation")
		return domain.PaymentStatusPending
	default:
		streak.Reset()
		logger.Debug("nets payment pending")
		return domain.PaymentStatusPending
	}
}

func (p *NETSProvider) call(ctx context.Context, operation, path string, body any) (netsData, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return netsData{}, fmt.Errorf("marshal nets %s body: %w", operation, err)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return netsData{}, err
	}
	req.Header.Set("api-key", p.cfg.APIKey)
	req.Header.Set("project-id", p.cfg.ProjectID)

	resp, err := p.client.Do(req, operation)
	if err != nil {
		return netsData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return netsData{}, fmt.Errorf("nets %s: status %d: %s", operation, resp.StatusCode, msg)
	}

	var envelope netsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return netsData{}, fmt.Errorf("decode nets %s response: %w", operation, err)
	}
	return envelope.Result.Data, nil
}

var (
	_ domain.PaymentProvider = (*NETSProvider)(nil)
	_ domain.PollerProvider  = (*NETSProvider)(nil)
)
