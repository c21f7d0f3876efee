package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedProduct(t *testing.T, repo domain.ProductRepository, name string, qty int) domain.Product {
	t.Helper()
	p, err := repo.Create(context.Background(), domain.Product{
		Name:     name,
		Price:    decimal.RequireFromString("3.50"),
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func TestProductRepository_CreateAssignsIDAndSearch(t *testing.T) {
	repo := memory.NewProductRepository(memory.NewStore())
	apple := seedProduct(t, repo, "Green Apple", 5)
	pear := seedProduct(t, repo, "Pear", 5)

	if apple.ID == 0 || pear.ID <= apple.ID {
		t.Fatalf("expected increasing ids, got %d and %d", apple.ID, pear.ID)
	}

	found, err := repo.List(context.Background(), "apple")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 1 || found[0].ID != apple.ID {
		t.Fatalf("expected only apple, got %+v", found)
	}

	all, _ := repo.List(context.Background(), "")
	if len(all) != 2 {
		t.Fatalf("expected 2 products, got %d", len(all))
	}
}

func TestProductRepository_DecrementIsGuarded(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository(memory.NewStore())
	p := seedProduct(t, repo, "Apple", 3)

	applied, err := repo.Decrement(ctx, p.ID, 2)
	if err != nil || !applied {
		t.Fatalf("expected applied decrement, got applied=%v err=%v", applied, err)
	}

	applied, err = repo.Decrement(ctx, p.ID, 2)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if applied {
		t.Fatal("decrement below zero must not apply")
	}

	stored, _ := repo.Get(ctx, p.ID)
	if stored.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", stored.Quantity)
	}

	if _, err := repo.Decrement(ctx, 999, 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := repo.Decrement(ctx, p.ID, 0); !errors.Is(err, domain.ErrStockDeltaInvalid) {
		t.Fatalf("expected ErrStockDeltaInvalid, got %v", err)
	}
}

func TestProductRepository_ConcurrentDecrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository(memory.NewStore())
	p := seedProduct(t, repo, "Apple", 10)

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Decrement(ctx, p.ID, 1)
			if err != nil {
				t.Errorf("decrement: %v", err)
				return
			}
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != 10 {
		t.Fatalf("expected exactly 10 applied decrements, got %d", applied.Load())
	}
	stored, _ := repo.Get(ctx, p.ID)
	if stored.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", stored.Quantity)
	}
}

func TestProductRepository_Increment(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository(memory.NewStore())
	p := seedProduct(t, repo, "Apple", 0)

	if err := repo.Increment(ctx, p.ID, 4); err != nil {
		t.Fatalf("increment: %v", err)
	}
	stored, _ := repo.Get(ctx, p.ID)
	if stored.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", stored.Quantity)
	}
	if err := repo.Increment(ctx, p.ID, -1); !errors.Is(err, domain.ErrStockDeltaInvalid) {
		t.Fatalf("expected ErrStockDeltaInvalid, got %v", err)
	}
}
