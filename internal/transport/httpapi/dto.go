package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type productDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"product_name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image"`
}

func toProduct(p domain.Product) productDTO {
	return productDTO{ID: p.ID, Name: p.Name, Price: money(p.Price), Quantity: p.Quantity, Image: p.Image}
}

type cartLineDTO struct {
	ProductID   int64  `json:"product_id"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
	DisplayName string `json:"display_name"`
	ImageRef    string `json:"image_ref"`
}

type cartDTO struct {
	Lines []cartLineDTO `json:"lines"`
	Total string        `json:"total"`
}

func toCart(v cart.View) cartDTO {
	lines := make([]cartLineDTO, 0, len(v.Lines))
	for _, l := range v.Lines {
		lines = append(lines, cartLineDTO{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			UnitPrice:   money(l.UnitPrice),
			Subtotal:    money(l.Subtotal()),
			DisplayName: l.DisplayName,
			ImageRef:    l.ImageRef,
		})
	}
	return cartDTO{Lines: lines, Total: money(v.Total)}
}

type orderLineDTO struct {
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image"`
}

type orderDTO struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	TotalAmount       string         `json:"total_amount"`
	PaymentMethod     string         `json:"payment_method"`
	ProviderReference string         `json:"provider_reference"`
	CreatedAt         time.Time      `json:"created_at"`
	Lines             []orderLineDTO `json:"lines,omitempty"`
}

func toOrder(o domain.Order) orderDTO {
	dto := orderDTO{
		ID:                o.ID,
		UserID:            o.UserID,
		TotalAmount:       money(o.TotalAmount),
		PaymentMethod:     string(o.PaymentMethod),
		ProviderReference: o.ProviderReference,
		CreatedAt:         o.CreatedAt,
	}
	for _, l := range o.Lines {
		dto.Lines = append(dto.Lines, orderLineDTO{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Price:        money(l.UnitPriceAtPurchase),
			ProductName:  l.ProductNameSnapshot,
			ProductImage: l.ImageRefSnapshot,
		})
	}
	return dto
}

func toOrders(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	return out
}

type paymentDTO struct {
	Method            string `json:"method"`
	Style             string `json:"style"`
	ProviderReference string `json:"provider_reference"`
	Amount            string `json:"amount"`
	Status            string `json:"status"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	QRCode            string `json:"qr_code,omitempty"`
	StreamURL         string `json:"stream_url,omitempty"`
}

func toPayment(p domain.PaymentIntent) paymentDTO {
	dto := paymentDTO{
		Method:            string(p.Method),
		Style:             string(p.Style),
		ProviderReference: p.ProviderReference,
		Amount:            money(p.Amount),
		Status:            string(p.Status),
		RedirectURL:       p.RedirectURL,
		QRCode:            p.QRCode,
	}
	if p.Style == domain.ConfirmPoll {
		dto.StreamURL = "/nets-qr/sse/" + p.ProviderReference
	}
	return dto
}

// Тела запросов.

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=0"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type initiatePaymentRequest struct {
	Method string `json:"method" validate:"required,oneof=paypal nets"`
}

type adjustStockRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}
