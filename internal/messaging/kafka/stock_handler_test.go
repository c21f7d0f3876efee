package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestStockEventHandler(t *testing.T) {
	var got []domain.StockOversoldPayload
	handler := NewStockEventHandler(func(_ context.Context, p domain.StockOversoldPayload) error {
		got = append(got, p)
		return nil
	}, nil)

	oversold := &sarama.ConsumerMessage{Value: []byte(`{"id":"e1","aggregate_type":"product","aggregate_id":"7","event_type":"stock.oversold","payload":{"order_id":"o-1","product_id":7,"quantity":2}}`)}
	if err := handler(context.Background(), oversold); err != nil {
		t.Fatalf("handle oversold: %v", err)
	}
	other := &sarama.ConsumerMessage{Value: []byte(`{"id":"e2","event_type":"order.finalized","payload":{}}`)}
	if err := handler(context.Background(), other); err != nil {
		t.Fatalf("unrelated events must be skipped: %v", err)
	}

	if len(got) != 1 || got[0].ProductID != 7 || got[0].Quantity != 2 || got[0].OrderID != "o-1" {
		t.Fatalf("unexpected backorders %+v", got)
	}
}

func TestStockEventHandler_Errors(t *testing.T) {
	boom := errors.New("boom")
	handler := NewStockEventHandler(func(context.Context, domain.StockOversoldPayload) error { return boom }, nil)

	if err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")}); err == nil {
		t.Fatal("expected parse error")
	}
	noPayload := &sarama.ConsumerMessage{Value: []byte(`{"event_type":"stock.oversold"}`)}
	if err := handler(context.Background(), noPayload); err == nil {
		t.Fatal("expected empty payload error")
	}
	valid := &sarama.ConsumerMessage{Value: []byte(`{"event_type":"stock.oversold","payload":{"product_id":1,"quantity":1}}`)}
	if err := handler(context.Background(), valid); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
