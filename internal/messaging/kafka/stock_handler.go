package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// BackorderFunc вызывается для каждой позиции, проданной сверх остатка.
type BackorderFunc func(ctx context.Context, payload domain.StockOversoldPayload) error

// NewStockEventHandler разбирает события storefront.stock.events.
// Неизвестные типы событий пропускаются, битые сообщения возвращают ошибку (retry, затем DLQ).
func NewStockEventHandler(onBackorder BackorderFunc, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "stock-event-handler")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		env, err := ParseEnvelope(message)
		if err != nil {
			return err
		}
		if env.EventType != domain.EventStockOversold {
			logger.WithField("event_type", env.EventType).Debug("skip stock event")
			return nil
		}

		var payload domain.StockOversoldPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"order_id":   payload.OrderID,
			"product_id": payload.ProductID,
			"quantity":   payload.Quantity,
		}).Warn("order line sold without stock, restock required")

		if onBackorder == nil {
			return nil
		}
		return onBackorder(ctx, payload)
	}
}
