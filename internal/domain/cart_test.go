package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func product(id int64, price string, qty int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "product",
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		Image:    "img.png",
	}
}

func TestCartSnapshot_TotalRoundsToCents(t *testing.T) {
	var cart domain.CartSnapshot
	if err := cart.Add(domain.NewCartLineFromProduct(product(7, "3.50", 10), 2)); err != nil {
		t.Fatalf("add 7: %v", err)
	}
	if err := cart.Add(domain.NewCartLineFromProduct(product(9, "10.00", 10), 1)); err != nil {
		t.Fatalf("add 9: %v", err)
	}

	if got := cart.Total(); !got.Equal(decimal.RequireFromString("17.00")) {
		t.Fatalf("expected total 17.00, got %s", got)
	}

	var odd domain.CartSnapshot
	_ = odd.Add(domain.NewCartLineFromProduct(product(1, "0.333", 10), 3))
	if got := odd.Total(); !got.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("expected rounded total 1.00, got %s", got)
	}
}

func TestCartSnapshot_AddMergesAndKeepsPriceSnapshot(t *testing.T) {
	var cart domain.CartSnapshot
	_ = cart.Add(domain.NewCartLineFromProduct(product(7, "3.50", 10), 1))

	repriced := product(7, "9.99", 10)
	if err := cart.Add(domain.NewCartLineFromProduct(repriced, 2)); err != nil {
		t.Fatalf("add again: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(cart.Lines))
	}
	line := cart.Lines[0]
	if line.Quantity != 3 {
		t.Fatalf("expected qty 3, got %d", line.Quantity)
	}
	if !line.UnitPrice.Equal(decimal.RequireFromString("3.50")) {
		t.Fatalf("price snapshot must not change, got %s", line.UnitPrice)
	}
}

func TestCartSnapshot_UpdateRemoveClear(t *testing.T) {
	var cart domain.CartSnapshot
	_ = cart.Add(domain.NewCartLineFromProduct(product(1, "1.00", 10), 1))
	_ = cart.Add(domain.NewCartLineFromProduct(product(2, "2.00", 10), 1))

	if err := cart.Update(1, 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Lines[0].Quantity != 4 {
		t.Fatalf("expected qty 4, got %d", cart.Lines[0].Quantity)
	}
	if err := cart.Update(1, 0); err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].ProductID != 2 {
		t.Fatalf("expected only product 2 left, got %+v", cart.Lines)
	}
	if err := cart.Remove(42); !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	if err := cart.Update(2, -1); !errors.Is(err, domain.ErrLineQtyInvalid) {
		t.Fatalf("expected ErrLineQtyInvalid, got %v", err)
	}

	cart.Clear()
	if !cart.IsEmpty() {
		t.Fatal("expected empty cart after clear")
	}
}

func TestCartLine_Validate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(l *domain.CartLine)
		want error
	}{
		{name: "zero qty", mut: func(l *domain.CartLine) { l.Quantity = 0 }, want: domain.ErrLineQtyInvalid},
		{name: "no product", mut: func(l *domain.CartLine) { l.ProductID = 0 }, want: domain.ErrProductIDRequired},
		{name: "negative price", mut: func(l *domain.CartLine) { l.UnitPrice = decimal.NewFromInt(-1) }, want: domain.ErrLinePriceInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := domain.NewCartLineFromProduct(product(1, "1.00", 1), 1)
			tc.mut(&line)
			if err := line.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartSnapshot_CloneIsIndependent(t *testing.T) {
	var cart domain.CartSnapshot
	_ = cart.Add(domain.NewCartLineFromProduct(product(1, "1.00", 1), 1))

	clone := cart.Clone()
	clone.Lines[0].Quantity = 99

	if cart.Lines[0].Quantity != 1 {
		t.Fatal("mutating clone changed the original")
	}
}
