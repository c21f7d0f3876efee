package kafka

import (
	"errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения, выбирая topic по типу агрегата.
// Если topic задан явно, все сообщения идут в него (так публикуется DLQ).
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher с маршрутизацией по TopicFor.
func NewOutboxPublisher(producer *Producer) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

// NewFixedTopicPublisher создаёт publisher в один topic.
func NewFixedTopicPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Topic возвращает topic, в который уйдёт сообщение.
func (p *OutboxTopicPublisher) Topic(event domain.OutboxMessage) string {
	if p.topic != "" {
		return p.topic
	}
	return TopicFor(event.AggregateType)
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.PublishEvent(p.Topic(event), key, event.EventType, NewEnvelope(event))
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
