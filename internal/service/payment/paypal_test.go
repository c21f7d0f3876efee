package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paypalStub struct {
	tokenCalls   atomic.Int32
	captureCalls atomic.Int32
	status       string
	createBody   paypalCreateOrder

	captureCode int
	captureBody string
}

func (s *paypalStub) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.createBody))
		_, _ = w.Write([]byte(`{"id":"PP-ORDER-1","status":"CREATED","links":[
			{"href":"https://paypal.test/checkoutnow?token=PP-ORDER-1","rel":"approve"},
			{"href":"https://api.paypal.test/v2/checkout/orders/PP-ORDER-1","rel":"self"}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"PP-ORDER-1","status":"` + s.status + `"}`))
	})

	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		s.captureCalls.Add(1)
		if s.captureCode != 0 {
			w.WriteHeader(s.captureCode)
		}
		_, _ = w.Write([]byte(s.captureBody))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPayPalProvider_InitiateReturnsApproveLink(t *testing.T) {
	stub := &paypalStub{}
	server := stub.server(t)
	provider := NewPayPalProvider(PayPalConfig{
		BaseURL:      server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Currency:     "SGD",
	})

	intent, err := provider.Initiate(context.Background(), decimal.RequireFromString("17.005"))
	require.NoError(t, err)

	assert.Equal(t, "PP-ORDER-1", intent.ProviderReference)
	assert.Equal(t, "https://paypal.test/checkoutnow?token=PP-ORDER-1", intent.RedirectURL)
	assert.Equal(t, domain.ConfirmRedirect, intent.Style)
	assert.Equal(t, "CAPTURE", stub.createBody.Intent)
	require.Len(t, stub.createBody.PurchaseUnits, 1)
	assert.Equal(t, "17.01", stub.createBody.PurchaseUnits[0].Amount.Value)
	assert.Equal(t, "SGD", stub.createBody.PurchaseUnits[0].Amount.CurrencyCode)
}

func TestPayPalProvider_QueryMapsStatusAndCachesToken(t *testing.T) {
	stub := &paypalStub{}
	server := stub.server(t)
	provider := NewPayPalProvider(PayPalConfig{BaseURL: server.URL, ClientID: "client", ClientSecret: "secret"})

	cases := []struct {
		status string
		want   domain.PaymentStatus
	}{
		{status: "APPROVED", want: domain.PaymentStatusPending},
		{status: "COMPLETED", want: domain.PaymentStatusConfirmed},
		{status: "VOIDED", want: domain.PaymentStatusFailed},
		{status: "PAYER_ACTION_REQUIRED", want: domain.PaymentStatusPending},
	}
	for _, tc := range cases {
		stub.status = tc.status
		assert.Equal(t, tc.want, provider.Query(context.Background(), "PP-ORDER-1"), tc.status)
	}

	assert.Equal(t, int32(1), stub.tokenCalls.Load(), "token must be cached between calls")
	assert.Equal(t, domain.PaymentStatusPending, provider.Query(context.Background(), "UNKNOWN"))
}

func TestPayPalProvider_BadCredentialsAreProviderUnavailable(t *testing.T) {
	server := (&paypalStub{}).server(t)
	provider := NewPayPalProvider(PayPalConfig{BaseURL: server.URL, ClientID: "client", ClientSecret: "wrong"})

	_, err := provider.Initiate(context.Background(), decimal.NewFromInt(10))
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestPayPalProvider_Capture(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		body    string
		status  string
		want    domain.PaymentStatus
		wantErr error
	}{
		{
			name: "funds captured",
			body: `{"id":"PP-ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"C1","status":"COMPLETED"}]}}]}`,
			want: domain.PaymentStatusConfirmed,
		},
		{
			name: "capture held for review",
			body: `{"id":"PP-ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"C1","status":"PENDING"}]}}]}`,
			want: domain.PaymentStatusPending,
		},
		{
			name: "buyer did not approve",
			code: http.StatusUnprocessableEntity,
			body: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`,
			want: domain.PaymentStatusFailed,
		},
		{
			name:   "already captured",
			code:   http.StatusUnprocessableEntity,
			body:   `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`,
			status: "COMPLETED",
			want:   domain.PaymentStatusConfirmed,
		},
		{
			name:    "provider down",
			code:    http.StatusServiceUnavailable,
			want:    domain.PaymentStatusPending,
			wantErr: domain.ErrProviderUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &paypalStub{captureCode: tc.code, captureBody: tc.body, status: tc.status}
			server := stub.server(t)
			provider := NewPayPalProvider(PayPalConfig{BaseURL: server.URL, ClientID: "client", ClientSecret: "secret"})

			got, err := provider.Capture(context.Background(), "PP-ORDER-1")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
			assert.Equal(t, int32(1), stub.captureCalls.Load())
		})
	}
}
