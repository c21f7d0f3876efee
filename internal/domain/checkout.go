package domain

import (
	"strings"
	"time"
)

// CheckoutState — состояние координатора финализации для одной сессии.
type CheckoutState string

const (
	CheckoutIdle            CheckoutState = "idle"
	CheckoutAwaitingPayment CheckoutState = "awaiting_payment"
	CheckoutFinalizing      CheckoutState = "finalizing"
	CheckoutCompleted       CheckoutState = "completed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutIdle:            {CheckoutAwaitingPayment, CheckoutFinalizing},
	CheckoutAwaitingPayment: {CheckoutAwaitingPayment, CheckoutIdle, CheckoutFinalizing},
	CheckoutFinalizing:      {CheckoutCompleted, CheckoutAwaitingPayment, CheckoutIdle},
	CheckoutCompleted:       {CheckoutIdle, CheckoutAwaitingPayment, CheckoutFinalizing},
}

// CanTransitionTo проверяет допустимость перехода from → to.
// Idle → Finalizing разрешён для redirect-confirm, когда платёж создавался на стороне браузера.
func CanTransitionTo(from, to CheckoutState) bool {
	if from == "" {
		from = CheckoutIdle
	}
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Proof — доказательство оплаты, с которым приходит сигнал финализации.
// Реализации: RedirectProof и PollSuccess.
type Proof interface {
	Method() PaymentMethod
	// Reference — provider reference, он же ключ идемпотентности финализации.
	Reference() string
	isProof()
}

// RedirectProof приходит с redirect-callback провайдера.
type RedirectProof struct {
	ProviderOrderID string
}

func (p RedirectProof) Method() PaymentMethod { return PaymentMethodPayPal }
func (p RedirectProof) Reference() string     { return strings.TrimSpace(p.ProviderOrderID) }
func (RedirectProof) isProof()                {}

// PollSuccess приходит после того, как поток подтверждения отдал success.
type PollSuccess struct {
	RetrievalReference string
}

func (p PollSuccess) Method() PaymentMethod { return PaymentMethodNETS }
func (p PollSuccess) Reference() string     { return strings.TrimSpace(p.RetrievalReference) }
func (PollSuccess) isProof()                {}

// ProofFromCallback собирает Proof из параметров callback финализации.
func ProofFromCallback(method, paypalOrderID, txnRetrievalRef string) (Proof, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(method))) {
	case PaymentMethodPayPal:
		p := RedirectProof{ProviderOrderID: paypalOrderID}
		if p.Reference() == "" {
			return nil, ErrProofMissing
		}
		return p, nil
	case PaymentMethodNETS:
		p := PollSuccess{RetrievalReference: txnRetrievalRef}
		if p.Reference() == "" {
			return nil, ErrProofMissing
		}
		return p, nil
	default:
		return nil, ErrPaymentMethodUnsupported
	}
}

// Finalization связывает provider reference с созданным по нему заказом.
type Finalization struct {
	ProviderReference string
	OrderID           string
	SessionID         string
	Method            PaymentMethod
	CreatedAt         time.Time
}
