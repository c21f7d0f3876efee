package domain

import "github.com/shopspring/decimal"

// Product — запись каталога и одновременно строка складского учёта.
// Quantity никогда не опускается ниже нуля: уменьшается только guarded decrement.
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"product_name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
}
