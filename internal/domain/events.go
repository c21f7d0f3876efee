package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы агрегатов в transactional outbox.
const (
	AggregateOrder   = "order"
	AggregatePayment = "payment"
	AggregateProduct = "product"
)

// Типы событий, которые checkout пишет в outbox.
const (
	EventOrderFinalized   = "order.finalized"
	EventPaymentInitiated = "payment.initiated"
	EventPaymentFailed    = "payment.failed"
	EventStockOversold    = "stock.oversold"
)

// OrderFinalizedPayload — содержимое события order.finalized.
type OrderFinalizedPayload struct {
	OrderID           string          `json:"order_id"`
	UserID            string          `json:"user_id"`
	SessionID         string          `json:"session_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	ProviderReference string          `json:"provider_reference"`
	LinesCount        int             `json:"lines_count"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PaymentEventPayload — содержимое событий payment.initiated и payment.failed.
type PaymentEventPayload struct {
	SessionID         string          `json:"session_id"`
	Method            PaymentMethod   `json:"method"`
	ProviderReference string          `json:"provider_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Status            PaymentStatus   `json:"status"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// StockOversoldPayload — позиция заказа, для которой остаток не был списан.
type StockOversoldPayload struct {
	OrderID   string `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
