package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod — способ оплаты, как его называет callback финализации.
type PaymentMethod string

const (
	// PaymentMethodPayPal — кошелёк с подтверждением через redirect.
	PaymentMethodPayPal PaymentMethod = "paypal"
	// PaymentMethodNETS — QR-код, подтверждение узнаём опросом провайдера.
	PaymentMethodNETS PaymentMethod = "nets"
)

// ConfirmationStyle — способ, которым провайдер сообщает об оплате.
type ConfirmationStyle string

const (
	// ConfirmRedirect — провайдер сам возвращает браузер с доказательством оплаты.
	ConfirmRedirect ConfirmationStyle = "redirect-confirm"
	// ConfirmPoll — статус нужно периодически запрашивать у провайдера.
	ConfirmPoll ConfirmationStyle = "poll-confirm"
)

// Style возвращает стиль подтверждения для способа оплаты.
func (m PaymentMethod) Style() ConfirmationStyle {
	if m == PaymentMethodNETS {
		return ConfirmPoll
	}
	return ConfirmRedirect
}

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPayPal || m == PaymentMethodNETS
}

// PaymentStatus описывает состояние платежа у провайдера.
type PaymentStatus string

const (
	// PaymentStatusInitiated — платёж только что создан у провайдера.
	PaymentStatusInitiated PaymentStatus = "initiated"
	// PaymentStatusPending — провайдер ещё не дал окончательного ответа.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusConfirmed — провайдер явно подтвердил оплату.
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	// PaymentStatusFailed — провайдер явно отклонил или отменил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusExpired — платёж просрочен.
	PaymentStatusExpired PaymentStatus = "expired"
)

// Terminal сообщает, что из статуса переходов больше нет.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус известен.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

// PaymentIntent — платёж, созданный у провайдера под текущую корзину.
type PaymentIntent struct {
	Method            PaymentMethod     `json:"method"`
	Style             ConfirmationStyle `json:"style"`
	ProviderReference string            `json:"provider_reference"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            PaymentStatus     `json:"status"`
	// RedirectURL заполняется для redirect-confirm.
	RedirectURL string `json:"redirect_url,omitempty"`
	// QRCode — data URL картинки для poll-confirm.
	QRCode    string    `json:"qr_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition переводит платёж в новый статус. Конечные статусы не покидаются;
// повтор того же конечного статуса не считается ошибкой.
func (p *PaymentIntent) Transition(next PaymentStatus, now time.Time) error {
	if !next.Valid() {
		return ErrPaymentStatusInvalid
	}
	if p.Status == next {
		return nil
	}
	if p.Status.Terminal() {
		return ErrPaymentTerminal
	}
	if next == PaymentStatusInitiated {
		return ErrPaymentStatusInvalid
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}
