package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type productResponse struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type orderResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	ProviderReference string `json:"provider_reference"`
}

const adminOrdersLimit = 100000

// verify проверяет инварианты после прогона: остаток не отрицательный (если не backorder)
// и ни один payment reference не породил больше одного заказа.
func verify(ctx context.Context, cfg config, transport http.RoundTripper) ([]string, error) {
	client := &http.Client{Transport: transport, Timeout: cfg.timeout}
	var violations []string

	var product envelope[productResponse]
	if err := getJSON(ctx, client, fmt.Sprintf("%s/api/v1/products/%d", cfg.baseURL, cfg.productID), &product); err != nil {
		return nil, err
	}
	if product.Data.Quantity < 0 && !cfg.backorder {
		violations = append(violations, fmt.Sprintf("product %d has negative stock %d", cfg.productID, product.Data.Quantity))
	}

	var orders envelope[[]orderResponse]
	if err := getJSON(ctx, client, fmt.Sprintf("%s/api/v1/admin/orders?limit=%d", cfg.baseURL, adminOrdersLimit), &orders); err != nil {
		return nil, err
	}
	violations = append(violations, duplicateOrders(orders.Data)...)
	return violations, nil
}

func duplicateOrders(orders []orderResponse) []string {
	seen := make(map[string]string, len(orders))
	var violations []string
	for _, o := range orders {
		if o.ProviderReference == "" {
			continue
		}
		if first, ok := seen[o.ProviderReference]; ok {
			violations = append(violations, fmt.Sprintf("payment %s finalized twice: orders %s and %s", o.ProviderReference, first, o.ID))
			continue
		}
		seen[o.ProviderReference] = o.ID
	}
	return violations
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerUserRole, "admin")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
