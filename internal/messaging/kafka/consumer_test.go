package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeErr  error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error { return m.errorsCh }

func (m *mockConsumerGroup) Close() error {
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return m.closeErr
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return TopicStockEvents }
func (m *mockClaim) Partition() int32                         { return 0 }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func stockMessage(offset int64, value string, retries int) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic:  TopicStockEvents,
		Offset: offset,
		Key:    []byte(fmt.Sprintf("product-%d", offset)),
		Value:  []byte(value),
	}
	if retries > 0 {
		msg.Headers = []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(fmt.Sprint(retries))}}
	}
	return msg
}

const oversoldValue = `{"id":"e1","aggregate_type":"product","aggregate_id":"7","event_type":"stock.oversold","payload":{"order_id":"o-1","product_id":7,"quantity":2}}`

func TestNewConsumer_UnreachableBrokers(t *testing.T) {
	handler := NewStockEventHandler(nil, nil)
	if _, err := NewConsumer([]string{"127.0.0.1:1"}, "storefront", []string{TopicStockEvents}, handler, WithMaxRetries(3)); err == nil {
		t.Fatal("expected error for unreachable brokers")
	}
}

func TestConsumer_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var subscribed []string
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
			subscribed = topics
			cancel()
			return errors.New("rebalance")
		},
	}
	consumer := &Consumer{
		consumer: group,
		topics:   []string{TopicStockEvents},
		handler:  NewStockEventHandler(nil, nil),
		logger:   log.WithField("test", "consumer"),
	}

	errorsCh <- errors.New("background error")
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(subscribed) != 1 || subscribed[0] != TopicStockEvents {
		t.Fatalf("unexpected subscription %v", subscribed)
	}
}

func TestConsumer_StopError(t *testing.T) {
	group := &mockConsumerGroup{errorsCh: make(chan error), closeErr: errors.New("close failed")}
	consumer := &Consumer{consumer: group, logger: log.WithField("test", "stop")}
	if err := consumer.Stop(); err == nil {
		t.Fatal("expected stop error")
	}
	if err := consumer.Setup(nil); err != nil {
		t.Fatalf("setup should return nil: %v", err)
	}
	if err := consumer.Cleanup(nil); err != nil {
		t.Fatalf("cleanup should return nil: %v", err)
	}
}

func TestConsumeClaim_StockEvents(t *testing.T) {
	var backorders []domain.StockOversoldPayload
	consumer := &Consumer{
		handler: NewStockEventHandler(func(_ context.Context, p domain.StockOversoldPayload) error {
			backorders = append(backorders, p)
			return nil
		}, nil),
		logger:     log.WithField("test", "claim"),
		maxRetries: 1,
	}

	session := &mockSession{ctx: context.Background()}
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- stockMessage(1, oversoldValue, 0)
	claim.messages <- stockMessage(2, "{broken", 0)
	claim.messages <- stockMessage(3, `{"id":"e3","event_type":"order.finalized","payload":{}}`, 0)
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}

	// битое сообщение без DLQ не коммитится
	if len(session.marked) != 2 || session.marked[0].Offset != 1 || session.marked[1].Offset != 3 {
		t.Fatalf("unexpected marked messages %+v", session.marked)
	}
	if len(backorders) != 1 || backorders[0].ProductID != 7 {
		t.Fatalf("unexpected backorders %+v", backorders)
	}
}

func TestConsumeClaim_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &Consumer{
		handler:    NewStockEventHandler(nil, nil),
		logger:     log.WithField("test", "claim-stop"),
		maxRetries: 1,
	}
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}

func TestHandleMessageWithRetry(t *testing.T) {
	testCases := []struct {
		name         string
		retries      int
		value        string
		dlq          string // "", "ok", "fail"
		wantAttempts int
		wantErr      bool
	}{
		{name: "handled first time", value: oversoldValue, wantAttempts: 1},
		{name: "remaining attempts after redelivery", retries: 1, value: "{broken", wantAttempts: 2, wantErr: true},
		{name: "exhausted without dlq", retries: 3, value: "{broken", wantAttempts: 1, wantErr: true},
		{name: "exhausted with dlq", retries: 3, value: "{broken", dlq: "ok", wantAttempts: 1},
		{name: "dlq unavailable", retries: 3, value: "{broken", dlq: "fail", wantAttempts: 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			stock := NewStockEventHandler(nil, nil)
			consumer := &Consumer{
				handler: func(ctx context.Context, msg *sarama.ConsumerMessage) error {
					attempts++
					return stock(ctx, msg)
				},
				logger:     log.WithField("test", tc.name),
				maxRetries: 3,
			}

			var producer *mocks.SyncProducer
			switch tc.dlq {
			case "ok":
				producer = mocks.NewSyncProducer(t, nil)
				producer.ExpectSendMessageAndSucceed()
			case "fail":
				producer = mocks.NewSyncProducer(t, nil)
				producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
			}
			if producer != nil {
				consumer.dlqProducer = &Producer{producer: producer, logger: log.WithField("test", "dlq")}
			}

			err := consumer.handleMessageWithRetry(context.Background(), stockMessage(5, tc.value, tc.retries))
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if attempts != tc.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tc.wantAttempts, attempts)
			}
			if producer != nil {
				if err := producer.Close(); err != nil {
					t.Fatal(err)
				}
			}
		})
	}
}

func TestGetRetryCount(t *testing.T) {
	consumer := &Consumer{}

	if got := consumer.getRetryCount(stockMessage(1, "{}", 5)); got != 5 {
		t.Fatalf("unexpected retry count: %d", got)
	}
	invalid := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{nil, {Key: []byte(HeaderRetryCount), Value: []byte("bad")}}}
	if got := consumer.getRetryCount(invalid); got != 0 {
		t.Fatalf("invalid retry count should fallback to 0, got %d", got)
	}
}

func TestSendToDLQ_Payload(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var payload consumerDLQPayload
		if err := json.Unmarshal(val, &payload); err != nil {
			return err
		}
		if payload.OriginalTopic != TopicStockEvents || payload.OriginalOffset != 42 {
			return fmt.Errorf("unexpected origin %s@%d", payload.OriginalTopic, payload.OriginalOffset)
		}
		if payload.OriginalValue != oversoldValue || payload.OriginalKey != "product-42" {
			return fmt.Errorf("original message not preserved: %+v", payload)
		}
		if payload.ErrorMessage != "restock service down" || payload.RetryCount != 3 {
			return fmt.Errorf("unexpected failure details: %+v", payload)
		}
		return nil
	})

	consumer := &Consumer{
		dlqProducer: &Producer{producer: producer, logger: log.WithField("test", "send-dlq")},
		logger:      log.WithField("test", "consumer-send-dlq"),
	}
	if err := consumer.sendToDLQ(stockMessage(42, oversoldValue, 3), errors.New("restock service down")); err != nil {
		t.Fatalf("sendToDLQ failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}
