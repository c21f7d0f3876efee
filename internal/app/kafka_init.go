package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const kafkaClientID = "storefront"

// initKafkaProducer инициализирует Kafka producer, если brokers не пустой.
// Пустой brokers даёт nil, nil: outbox копится до появления Kafka.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := splitBrokers(strings.Split(brokers, ","))
	producer, err := kafka.NewProducer(brokerList, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOutboxWorker собирает воркер публикации outbox: события уходят в топик по типу агрегата,
// а исчерпавшие попытки сообщения уходят в DLQ.
func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewFixedTopicPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// startStockConsumer подписывается на события склада и логирует позиции, проданные сверх остатка.
// Ошибка подключения не мешает запуску storefront.
func startStockConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	consumerLogger := logger.WithField("component", "stock-consumer")
	handler := kafka.NewStockEventHandler(func(_ context.Context, payload domain.StockOversoldPayload) error {
		consumerLogger.WithFields(log.Fields{
			"order_id":   payload.OrderID,
			"product_id": payload.ProductID,
			"quantity":   payload.Quantity,
		}).Info("backorder registered")
		return nil
	}, consumerLogger)

	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(consumerLogger)}
	if producer != nil {
		opts = append(opts, kafka.WithDLQ(producer))
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, []string{kafka.TopicStockEvents}, handler, opts...)
	if err != nil {
		consumerLogger.WithError(err).Warn("failed to create kafka consumer, continuing without it")
		return nil
	}
	if err := consumer.Start(ctx); err != nil {
		consumerLogger.WithError(err).Warn("failed to start kafka consumer")
		_ = consumer.Stop()
		return nil
	}
	return consumer
}
