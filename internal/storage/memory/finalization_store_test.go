package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestFinalizationTx_CommitMakesEverythingVisible(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	p := seedProduct(t, products, "Apple", 5)

	order := newOrder("order-1", "user-1", time.Now().UTC())
	order.Lines[0].ProductID = p.ID

	tx, err := memory.NewFinalizationStore(store).Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := tx.AddOrderLine(ctx, order.Lines[0]); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if applied, err := tx.DecrementStock(ctx, p.ID, 2); err != nil || !applied {
		t.Fatalf("decrement: applied=%v err=%v", applied, err)
	}
	if err := tx.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: order.ID}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: order.ID, EventType: "order.finalized"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// До коммита заказ и финализация не видны.
	if _, err := memory.NewOrderRepository(store).Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order to be invisible before commit, got %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := memory.NewOrderRepository(store).Get(ctx, order.ID); err != nil {
		t.Fatalf("get order after commit: %v", err)
	}
	f, err := memory.NewFinalizationRepository(store).Lookup(ctx, "ref-1")
	if err != nil || f.OrderID != order.ID {
		t.Fatalf("lookup: %+v %v", f, err)
	}
	if got := len(memory.NewOutboxRepository(store).AllPending()); got != 1 {
		t.Fatalf("expected 1 outbox message, got %d", got)
	}
	stored, _ := products.Get(ctx, p.ID)
	if stored.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", stored.Quantity)
	}
}

func TestFinalizationTx_RollbackRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	p := seedProduct(t, products, "Apple", 5)

	tx, _ := memory.NewFinalizationStore(store).Begin(ctx)
	_ = tx.CreateOrder(ctx, newOrder("order-1", "user-1", time.Now().UTC()))
	if _, err := tx.DecrementStock(ctx, p.ID, 4); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	_ = tx.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: "order-1"})

	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	stored, _ := products.Get(ctx, p.ID)
	if stored.Quantity != 5 {
		t.Fatalf("expected quantity restored to 5, got %d", stored.Quantity)
	}
	if _, err := memory.NewFinalizationRepository(store).Lookup(ctx, "ref-1"); !errors.Is(err, domain.ErrFinalizationNotFound) {
		t.Fatalf("expected no finalization after rollback, got %v", err)
	}

	// Reference освобождён и может быть использован снова.
	tx2, _ := memory.NewFinalizationStore(store).Begin(ctx)
	defer func() { _ = tx2.Rollback() }()
	if err := tx2.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: "order-2"}); err != nil {
		t.Fatalf("expected reference to be free after rollback, got %v", err)
	}
}

func TestFinalizationTx_ReferenceIsUnique(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	fs := memory.NewFinalizationStore(store)

	first, _ := fs.Begin(ctx)
	second, _ := fs.Begin(ctx)
	defer func() {
		_ = first.Rollback()
		_ = second.Rollback()
	}()

	if err := first.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: "a"}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := second.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: "b"}); !domain.IsFinalizationExists(err) {
		t.Fatalf("expected ErrFinalizationExists for in-flight reference, got %v", err)
	}
	if err := first.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	third, _ := fs.Begin(ctx)
	defer func() { _ = third.Rollback() }()
	if err := third.RecordFinalization(ctx, domain.Finalization{ProviderReference: "ref-1", OrderID: "c"}); !domain.IsFinalizationExists(err) {
		t.Fatalf("expected ErrFinalizationExists for committed reference, got %v", err)
	}
}

func TestFinalizationTx_LineRequiresOrder(t *testing.T) {
	ctx := context.Background()
	tx, _ := memory.NewFinalizationStore(memory.NewStore()).Begin(ctx)
	defer func() { _ = tx.Rollback() }()

	err := tx.AddOrderLine(ctx, domain.OrderLine{OrderID: "missing", ProductID: 1, Quantity: 1})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
