package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

// consumerFailure — сообщение, которое не смог обработать consumer.
type consumerFailure struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxFailure — outbox-событие, исчерпавшее попытки публикации.
type outboxFailure struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// decodeDLQMessage распознаёт оба формата DLQ. ok=false для чужих сообщений.
// Пустой target означает маршрутизацию по типу агрегата.
func decodeDLQMessage(raw []byte, target string) (replayMessage, bool, error) {
	var failure consumerFailure
	if err := json.Unmarshal(raw, &failure); err == nil && failure.OriginalValue != "" {
		topic := firstNonEmpty(target, failure.OriginalTopic)
		if topic == "" {
			return replayMessage{}, false, errors.New("consumer dlq message without original topic")
		}
		var original kafka.Envelope
		_ = json.Unmarshal([]byte(failure.OriginalValue), &original)
		return replayMessage{
			topic:     topic,
			key:       failure.OriginalKey,
			eventType: original.EventType,
			value:     []byte(failure.OriginalValue),
		}, true, nil
	}

	var envelope kafka.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}

	var outbox outboxFailure
	if err := json.Unmarshal(envelope.Payload, &outbox); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(outbox.Payload) == 0 {
		return replayMessage{}, false, errors.New("outbox dlq payload does not contain original event payload")
	}

	replay := kafka.Envelope{
		ID:            firstNonEmpty(outbox.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(outbox.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(outbox.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(outbox.EventType, envelope.EventType),
		Payload:       outbox.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic:     firstNonEmpty(target, kafka.TopicFor(replay.AggregateType)),
		key:       firstNonEmpty(replay.AggregateID, replay.ID),
		eventType: replay.EventType,
		value:     encoded,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
