package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// InitiatePayment создаёт платёж у провайдера на сумму корзины и сохраняет его в сессии.
// Пустая корзина: ErrCartEmpty; сбой провайдера: ErrProviderUnavailable, intent не сохраняется.
func (c *Coordinator) InitiatePayment(ctx context.Context, sessionID string, method domain.PaymentMethod) (domain.PaymentIntent, error) {
	provider, err := c.providers.Provider(method)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	session, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if session.Cart.IsEmpty() {
		return domain.PaymentIntent{}, domain.ErrCartEmpty
	}
	if !domain.CanTransitionTo(session.CheckoutState(), domain.CheckoutAwaitingPayment) {
		return domain.PaymentIntent{}, domain.ErrIllegalTransition
	}

	amount := session.Cart.Total()
	logger := c.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"method":     method,
		"amount":     amount.StringFixed(2),
	})

	intent, err := provider.Initiate(ctx, amount)
	if err != nil {
		logger.WithError(err).Warn("payment initiation failed")
		if c.metrics != nil {
			c.metrics.RecordFailed(metrics.FailureProvider)
		}
		if domain.IsValidation(err) || errors.Is(err, domain.ErrProviderUnavailable) {
			return domain.PaymentIntent{}, err
		}
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if intent.Status == "" {
		intent.Status = domain.PaymentStatusInitiated
	}

	_, err = c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := s.MoveTo(domain.CheckoutAwaitingPayment); err != nil {
			return err
		}
		pending := intent
		s.PendingPayment = &pending
		return nil
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	logger.WithField("reference", intent.ProviderReference).Info("payment initiated")
	if c.metrics != nil {
		c.metrics.RecordPaymentInitiated(string(method))
	}
	c.enqueuePaymentEvent(ctx, domain.EventPaymentInitiated, sessionID, intent)
	return intent, nil
}

// ObservePayment применяет статус, прочитанный у провайдера, к ожидающему платежу сессии.
// Если платёж сессии относится к другому reference, сессия не меняется.
// Неуспешный платёж возвращает сессию в Idle; корзина остаётся.
func (c *Coordinator) ObservePayment(ctx context.Context, sessionID, reference string, status domain.PaymentStatus) error {
	var failed *domain.PaymentIntent

	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		pending := s.PendingPayment
		if pending == nil || pending.ProviderReference != reference {
			return errNoChange
		}
		before := pending.Status
		if err := pending.Transition(status, c.now()); err != nil {
			if errors.Is(err, domain.ErrPaymentTerminal) {
				return errNoChange
			}
			return err
		}
		if pending.Status == before {
			return errNoChange
		}

		if pending.Status == domain.PaymentStatusFailed || pending.Status == domain.PaymentStatusExpired {
			if s.CheckoutState() == domain.CheckoutAwaitingPayment {
				if err := s.MoveTo(domain.CheckoutIdle); err != nil {
					return err
				}
			}
			s.AddFlash(domain.FlashError, "Payment was not completed. Please try again.")
			snapshot := *pending
			failed = &snapshot
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return err
	}

	if failed != nil {
		c.logger.WithFields(log.Fields{
			"session_id": sessionID,
			"reference":  reference,
			"status":     failed.Status,
		}).Warn("payment failed at provider")
		c.enqueuePaymentEvent(ctx, domain.EventPaymentFailed, sessionID, *failed)
	}
	return nil
}

// CancelPayment отменяет ожидающий платёж сессии и возвращает её в Idle.
func (c *Coordinator) CancelPayment(ctx context.Context, sessionID string) error {
	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.PendingPayment == nil || s.CheckoutState() != domain.CheckoutAwaitingPayment {
			return domain.ErrNoPendingPayment
		}
		if err := s.MoveTo(domain.CheckoutIdle); err != nil {
			return err
		}
		s.PendingPayment = nil
		return nil
	})
	return err
}

func (c *Coordinator) enqueuePaymentEvent(ctx context.Context, eventType, sessionID string, intent domain.PaymentIntent) {
	payload, err := json.Marshal(domain.PaymentEventPayload{
		SessionID:         sessionID,
		Method:            intent.Method,
		ProviderReference: intent.ProviderReference,
		Amount:            intent.Amount,
		Status:            intent.Status,
		OccurredAt:        c.now(),
	})
	if err != nil {
		c.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	c.enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregatePayment,
		AggregateID:   intent.ProviderReference,
		EventType:     eventType,
		Payload:       payload,
	})
}
