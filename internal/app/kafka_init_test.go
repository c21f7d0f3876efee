package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestInitKafkaProducer(t *testing.T) {
	logger := log.WithField("test", "kafka")

	testCases := []struct {
		name    string
		brokers string
		wantErr bool
	}{
		{name: "disabled", brokers: "", wantErr: false},
		{name: "unreachable broker", brokers: "127.0.0.1:1", wantErr: true},
		{name: "unreachable list with spaces", brokers: "127.0.0.1:1, 127.0.0.1:2,", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			producer, err := initKafkaProducer(tc.brokers, logger)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			// без Kafka storefront продолжает работу с nil producer
			if producer != nil {
				t.Fatal("expected nil producer")
			}
			closeKafka(producer, logger)
		})
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers([]string{" kafka-1:9092", "", "kafka-2:9092 ", "  "})
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if splitBrokers([]string{"", " "}) != nil {
		t.Fatal("blank brokers must disable kafka")
	}
}

func TestNewOutboxWorker_EmptyOutbox(t *testing.T) {
	cfg := DefaultConfig()
	repo := memory.NewOutboxRepository(memory.NewStore())

	worker := newOutboxWorker(cfg, repo, nil, log.WithField("test", "outbox"))
	if processed := worker.ProcessOnce(context.Background()); processed != 0 {
		t.Fatalf("expected nothing to publish, got %d", processed)
	}
}

func TestStartStockConsumer_UnreachableKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if consumer := startStockConsumer(ctx, cfg, nil, log.WithField("test", "stock-consumer")); consumer != nil {
		_ = consumer.Stop()
		t.Fatal("expected nil consumer when kafka is unreachable")
	}
}
