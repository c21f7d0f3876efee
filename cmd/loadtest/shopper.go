package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
	pathSuccess          = "/checkout/success"
)

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type paymentResponse struct {
	ProviderReference string `json:"provider_reference"`
	RedirectURL       string `json:"redirect_url"`
}

// shopper — один покупатель со своей cookie-сессией.
type shopper struct {
	cfg    config
	client *http.Client
	userID string
	col    *collector
}

func newShopper(cfg config, transport http.RoundTripper, userID string, col *collector) (*shopper, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &shopper{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userID: userID,
		col:    col,
	}, nil
}

// checkout: корзина, инициация PayPal, callback (один или два параллельно), страница успеха.
func (s *shopper) checkout(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.col.recordScenario(time.Since(start), err) }()

	body := fmt.Sprintf(`{"product_id":%d,"quantity":%d}`, s.cfg.productID, s.cfg.quantity)
	if _, err := s.call(ctx, "AddToCart", http.MethodPost, "/api/v1/cart/items", body, http.StatusOK, nil); err != nil {
		return err
	}

	raw, err := s.call(ctx, "InitiatePayment", http.MethodPost, "/api/v1/payments", `{"method":"paypal"}`, http.StatusCreated,
		map[string]string{headerIdempotencyKey: "lt-pay-" + s.userID})
	if err != nil {
		return err
	}
	var intent envelope[paymentResponse]
	if err := json.Unmarshal(raw, &intent); err != nil {
		return fmt.Errorf("decode payment: %w", err)
	}
	if intent.Data.RedirectURL == "" {
		return errors.New("payment response without redirect_url")
	}

	callbacks := 1
	if s.cfg.mode == modeReplay {
		callbacks = 2
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < callbacks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.finalize(ctx, intent.Data.RedirectURL); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	raw, err = s.call(ctx, "Success", http.MethodGet, pathSuccess, "", http.StatusOK, nil)
	if err != nil {
		return err
	}
	var success envelope[map[string]string]
	if err := json.Unmarshal(raw, &success); err != nil {
		return fmt.Errorf("decode success: %w", err)
	}
	if success.Data["order_id"] == "" {
		return errors.New("success page without order_id")
	}
	return nil
}

func (s *shopper) finalize(ctx context.Context, redirectURL string) error {
	resp, err := s.send(ctx, "Finalize", http.MethodGet, redirectURL, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("finalize: unexpected status %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != pathSuccess {
		return fmt.Errorf("finalize redirected to %s", loc)
	}
	return nil
}

// call выполняет запрос и возвращает тело, если статус совпал с want.
func (s *shopper) call(ctx context.Context, name, method, path, body string, want int, headers map[string]string) ([]byte, error) {
	resp, err := s.send(ctx, name, method, path, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (s *shopper) send(ctx context.Context, name, method, path, body string, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerUserID, s.userID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	s.col.record(name, time.Since(start), status, err)
	return resp, err
}
