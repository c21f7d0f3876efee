package domain

import (
	"github.com/shopspring/decimal"
)

// CartLine — позиция корзины. Цена фиксируется в момент добавления товара
// и при финализации повторно из каталога не читается.
type CartLine struct {
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DisplayName string          `json:"display_name"`
	ImageRef    string          `json:"image_ref"`
}

// Subtotal возвращает quantity × unitPrice без округления.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate проверяет инварианты позиции.
func (l CartLine) Validate() error {
	if l.ProductID <= 0 {
		return ErrProductIDRequired
	}
	if l.Quantity < 1 {
		return ErrLineQtyInvalid
	}
	if l.UnitPrice.IsNegative() {
		return ErrLinePriceInvalid
	}
	return nil
}

// CartSnapshot — упорядоченный список позиций одной сессии.
type CartSnapshot struct {
	Lines []CartLine `json:"lines"`
}

// NewCartLineFromProduct снимает snapshot цены и отображаемых полей товара.
func NewCartLineFromProduct(p Product, qty int) CartLine {
	return CartLine{
		ProductID:   p.ID,
		Quantity:    qty,
		UnitPrice:   p.Price,
		DisplayName: p.Name,
		ImageRef:    p.Image,
	}
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c *CartSnapshot) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Add добавляет позицию. Если товар уже в корзине, увеличивается количество,
// а цена остаётся той, что была зафиксирована при первом добавлении.
func (c *CartSnapshot) Add(line CartLine) error {
	if err := line.Validate(); err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// Update выставляет количество позиции; qty == 0 удаляет её.
func (c *CartSnapshot) Update(productID int64, qty int) error {
	if qty < 0 {
		return ErrLineQtyInvalid
	}
	if qty == 0 {
		return c.Remove(productID)
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove удаляет позицию с товаром productID.
func (c *CartSnapshot) Remove(productID int64) error {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear очищает корзину.
func (c *CartSnapshot) Clear() {
	c.Lines = nil
}

// Total — сумма позиций, округлённая до центов.
func (c *CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	return RoundMoney(total)
}

// Clone возвращает независимую копию snapshot.
func (c CartSnapshot) Clone() CartSnapshot {
	if c.Lines == nil {
		return CartSnapshot{}
	}
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return CartSnapshot{Lines: lines}
}

// RoundMoney округляет сумму до двух знаков (точность валюты).
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
