package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine — позиция заказа. Название и картинка товара денормализуются
// в момент финализации, чтобы счёт не менялся вслед за каталогом.
type OrderLine struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	ProductID           int64           `json:"product_id"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"price"`
	ProductNameSnapshot string          `json:"product_name"`
	ImageRefSnapshot    string          `json:"product_image"`
}

// Subtotal возвращает quantity × price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order — заголовок заказа. После создания не изменяется и не удаляется.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	ProviderReference string          `json:"provider_reference"`
	CreatedAt         time.Time       `json:"created_at"`
	Lines             []OrderLine     `json:"lines,omitempty"`
}

// LineFromCart строит позицию заказа из позиции корзины.
func LineFromCart(id, orderID string, line CartLine) OrderLine {
	return OrderLine{
		ID:                  id,
		OrderID:             orderID,
		ProductID:           line.ProductID,
		Quantity:            line.Quantity,
		UnitPriceAtPurchase: line.UnitPrice,
		ProductNameSnapshot: line.DisplayName,
		ImageRefSnapshot:    line.ImageRef,
	}
}

// ValidateInvariants проверяет инварианты заказа вместе с позициями и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrCartEmpty)
	}

	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity < 1 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceAtPurchase.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		calc = calc.Add(line.Subtotal())
	}
	if !RoundMoney(calc).Equal(o.TotalAmount) {
		errs = append(errs, ErrOrderTotalMismatch)
	}

	return errs
}
