package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания заказа из двух позиций на 17.00.
func makeOrder() domain.Order {
	return domain.Order{
		ID:                "order-1",
		UserID:            "user-1",
		TotalAmount:       decimal.RequireFromString("17.00"),
		PaymentMethod:     domain.PaymentMethodNETS,
		ProviderReference: "ref-1",
		CreatedAt:         time.Now().UTC(),
		Lines: []domain.OrderLine{
			{ID: "line-1", OrderID: "order-1", ProductID: 7, Quantity: 2, UnitPriceAtPurchase: decimal.RequireFromString("3.50")},
			{ID: "line-2", OrderID: "order-1", ProductID: 9, Quantity: 1, UnitPriceAtPurchase: decimal.RequireFromString("10.00")},
		},
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no user",
			mut:  func(o *domain.Order) { o.UserID = "" },
			want: domain.ErrUserRequired,
		},
		{
			name: "no lines",
			mut:  func(o *domain.Order) { o.Lines = nil; o.TotalAmount = decimal.Zero },
			want: domain.ErrCartEmpty,
		},
		{
			name: "zero qty",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = 0 },
			want: domain.ErrLineQtyInvalid,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalAmount = decimal.RequireFromString("16.99") },
			want: domain.ErrOrderTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestLineFromCart_Denormalizes(t *testing.T) {
	cartLine := domain.CartLine{
		ProductID:   7,
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("3.50"),
		DisplayName: "Apples",
		ImageRef:    "apples.png",
	}

	line := domain.LineFromCart("line-1", "order-1", cartLine)
	if line.ProductNameSnapshot != "Apples" || line.ImageRefSnapshot != "apples.png" {
		t.Fatalf("expected denormalized name/image, got %+v", line)
	}
	if !line.Subtotal().Equal(decimal.RequireFromString("7")) {
		t.Fatalf("unexpected subtotal %s", line.Subtotal())
	}
}
