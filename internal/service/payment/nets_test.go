package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// netsStub отвечает на query по очереди из responses; последний ответ повторяется.
type netsStub struct {
	mu        sync.Mutex
	responses []string
	calls     int
	lastBody  map[string]any
	headers   http.Header
}

func (s *netsStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		body := map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.lastBody = body
		s.headers = r.Header.Clone()

		if len(s.responses) == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		i := s.calls
		if i >= len(s.responses) {
			i = len(s.responses) - 1
		}
		s.calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.responses[i]))
	}
}

func netsQueryResponse(code string, status int) string {
	return fmt.Sprintf(`{"result":{"data":{"response_code":%q,"txn_status":%d}}}`, code, status)
}

func newTestNETS(t *testing.T, stub *netsStub) *NETSProvider {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	return NewNETSProvider(NETSConfig{
		BaseURL:   server.URL,
		APIKey:    "key-1",
		ProjectID: "project-1",
		TxnID:     "sandbox_nets|m|txn",
	}, WithNETSBreaker(BreakerConfig{MaxRequests: 1, Timeout: time.Second, FailureRatio: 0.5, MinRequests: 100}))
}

func TestNETSProvider_InitiateBuildsQRIntent(t *testing.T) {
	stub := &netsStub{responses: []string{
		`{"result":{"data":{"response_code":"00","txn_status":1,"qr_code":"QUJD","txn_retrieval_ref":"txn-ref-1"}}}`,
	}}
	provider := newTestNETS(t, stub)

	intent, err := provider.Initiate(context.Background(), decimal.RequireFromString("17"))
	require.NoError(t, err)

	assert.Equal(t, "txn-ref-1", intent.ProviderReference)
	assert.Equal(t, "data:image/png;base64,QUJD", intent.QRCode)
	assert.Equal(t, domain.ConfirmPoll, intent.Style)
	assert.Equal(t, domain.PaymentStatusInitiated, intent.Status)

	assert.Equal(t, "sandbox_nets|m|txn", stub.lastBody["txn_id"])
	assert.Equal(t, float64(17), stub.lastBody["amt_in_dollars"])
	assert.Equal(t, float64(0), stub.lastBody["notify_mobile"])
	assert.Equal(t, "key-1", stub.headers.Get("api-key"))
	assert.Equal(t, "project-1", stub.headers.Get("project-id"))
}

func TestNETSProvider_InitiateFailures(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{name: "bad response code", response: `{"result":{"data":{"response_code":"09","txn_status":1,"qr_code":"QUJD","txn_retrieval_ref":"r"}}}`},
		{name: "no qr code", response: `{"result":{"data":{"response_code":"00","txn_status":1,"txn_retrieval_ref":"r"}}}`},
		{name: "wrong status", response: `{"result":{"data":{"response_code":"00","txn_status":2,"qr_code":"QUJD","txn_retrieval_ref":"r"}}}`},
		{name: "garbage", response: `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newTestNETS(t, &netsStub{responses: []string{tc.response}})
			_, err := provider.Initiate(context.Background(), decimal.NewFromInt(5))
			require.ErrorIs(t, err, domain.ErrProviderUnavailable)
		})
	}

	provider := newTestNETS(t, &netsStub{})
	_, err := provider.Initiate(context.Background(), decimal.Zero)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestNETSProvider_QueryTwoConsecutiveAccepted(t *testing.T) {
	cases := []struct {
		name      string
		responses []string
		want      []domain.PaymentStatus
	}{
		{
			name:      "accepted twice confirms",
			responses: []string{netsQueryResponse("00", 1), netsQueryResponse("00", 1)},
			want:      []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusConfirmed},
		},
		{
			name:      "pending then accepted twice",
			responses: []string{netsQueryResponse("09", 0), netsQueryResponse("00", 1), netsQueryResponse("00", 1)},
			want:      []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusPending, domain.PaymentStatusConfirmed},
		},
		{
			name:      "interrupted streak starts over",
			responses: []string{netsQueryResponse("00", 1), netsQueryResponse("09", 0), netsQueryResponse("00", 1), netsQueryResponse("00", 1)},
			want: []domain.PaymentStatus{
				domain.PaymentStatusPending, domain.PaymentStatusPending,
				domain.PaymentStatusPending, domain.PaymentStatusConfirmed,
			},
		},
		{
			name:      "status 3 fails",
			responses: []string{netsQueryResponse("00", 1), netsQueryResponse("00", 3)},
			want:      []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusFailed},
		},
		{
			name:      "status 4 fails",
			responses: []string{netsQueryResponse("68", 4)},
			want:      []domain.PaymentStatus{domain.PaymentStatusFailed},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newTestNETS(t, &netsStub{responses: tc.responses})
			poller := provider.NewPoller("txn-ref-1")
			for i, want := range tc.want {
				got := poller.Poll(context.Background())
				require.Equal(t, want, got, "query #%d", i+1)
			}
		})
	}
}

func TestNETSProvider_QueryTransportErrorIsPending(t *testing.T) {
	stub := &netsStub{}
	provider := newTestNETS(t, stub)

	assert.Equal(t, domain.PaymentStatusPending, provider.Query(context.Background(), "txn-ref-1"))

	unreachable := NewNETSProvider(NETSConfig{BaseURL: "http://127.0.0.1:1"})
	assert.Equal(t, domain.PaymentStatusPending, unreachable.Query(context.Background(), "txn-ref-1"))
}

func TestNETSProvider_BreakerOpensOnServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	provider := NewNETSProvider(NETSConfig{BaseURL: server.URL},
		WithNETSBreaker(BreakerConfig{MaxRequests: 1, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2}))

	for i := 0; i < 2; i++ {
		_, err := provider.Initiate(context.Background(), decimal.NewFromInt(1))
		require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, provider.client.State())

	_, err := provider.Initiate(context.Background(), decimal.NewFromInt(1))
	require.True(t, errors.Is(err, domain.ErrProviderUnavailable))
}

func TestNETSProvider_StreamsDoNotShareStreak(t *testing.T) {
	provider := newTestNETS(t, &netsStub{responses: []string{netsQueryResponse("00", 1)}})

	first := provider.NewPoller("txn-ref-1")
	second := provider.NewPoller("txn-ref-1")

	// второй поток на том же reference начинает свою серию
	require.Equal(t, domain.PaymentStatusPending, first.Poll(context.Background()))
	require.Equal(t, domain.PaymentStatusPending, second.Poll(context.Background()))
	require.Equal(t, domain.PaymentStatusConfirmed, first.Poll(context.Background()))
	require.Equal(t, domain.PaymentStatusConfirmed, second.Poll(context.Background()))
}

func TestNETSProvider_QueryNeverConfirmsAlone(t *testing.T) {
	provider := newTestNETS(t, &netsStub{responses: []string{netsQueryResponse("00", 1)}})

	for i := 0; i < 3; i++ {
		require.Equal(t, domain.PaymentStatusPending, provider.Query(context.Background(), "txn-ref-1"), "query #%d", i+1)
	}
}
