package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Result — итог финализации.
type Result struct {
	Order domain.Order
	// Duplicate — заказ по этому reference уже существовал, ничего не записано.
	Duplicate bool
}

// Finalize превращает корзину сессии в заказ по подтверждению оплаты proof.
// Повторный вызов с тем же reference возвращает уже созданный заказ.
func (c *Coordinator) Finalize(ctx context.Context, sessionID, userID string, proof domain.Proof) (Result, error) {
	if proof == nil || proof.Reference() == "" {
		return Result{}, domain.ErrProofMissing
	}
	if sessionID == "" {
		return Result{}, domain.ErrSessionRequired
	}

	ref := proof.Reference()
	v, err, _ := c.inflight.Do(string(proof.Method())+":"+ref, func() (any, error) {
		return c.finalize(ctx, sessionID, userID, proof)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *Coordinator) finalize(ctx context.Context, sessionID, userID string, proof domain.Proof) (Result, error) {
	ref := proof.Reference()
	logger := c.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"reference":  ref,
		"method":     proof.Method(),
	})

	session, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	// Пустая корзина без заказа в сессии не может быть повтором: reference не ищется.
	if session.Cart.IsEmpty() && session.LastOrderID == "" {
		logger.WithError(domain.ErrCartEmpty).Info("finalization rejected")
		c.recordFailure(metrics.FailureValidation)
		return Result{}, domain.ErrCartEmpty
	}

	if existing, err := c.finalizations.Lookup(ctx, ref); err == nil {
		return c.resolveDuplicate(ctx, sessionID, existing, logger)
	} else if !errors.Is(err, domain.ErrFinalizationNotFound) {
		logger.WithError(err).Error("finalization lookup failed")
		c.recordFailure(metrics.FailurePersistence)
		return Result{}, fmt.Errorf("lookup finalization: %w", err)
	}

	if err := validateFinalization(session, userID, proof); err != nil {
		logger.WithError(err).Info("finalization rejected")
		c.recordFailure(metrics.FailureValidation)
		return Result{}, err
	}

	session, err = c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if err := validateFinalization(*s, userID, proof); err != nil {
			return err
		}
		return s.MoveTo(domain.CheckoutFinalizing)
	})
	if err != nil {
		logger.WithError(err).Info("finalization rejected")
		c.recordFailure(metrics.FailureValidation)
		return Result{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordFinalizationStarted()
		defer c.metrics.RecordFinalizationFinished()
	}

	if err := c.capture(ctx, proof, logger); err != nil {
		c.abort(ctx, sessionID, err, logger)
		return Result{}, err
	}

	start := time.Now()
	order, err := c.commit(ctx, session, userID, proof, logger)
	if c.metrics != nil {
		c.metrics.RecordCommitDuration(time.Since(start))
	}
	if err != nil {
		if errors.Is(err, domain.ErrFinalizationExists) {
			if existing, lookupErr := c.finalizations.Lookup(ctx, ref); lookupErr == nil {
				return c.resolveDuplicate(ctx, sessionID, existing, logger)
			}
		}
		c.abort(ctx, sessionID, err, logger)
		return Result{}, err
	}

	if err := c.withRetry(ctx, "complete_session", sessionID, func(ctx context.Context) error {
		return c.completeSession(ctx, sessionID, order.ID, ref, true)
	}); err != nil {
		// Заказ записан: повторный сигнал найдёт reference и доведёт сессию.
		logger.WithError(err).WithField("order_id", order.ID).Error("order committed but session update failed")
	}

	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.TotalAmount.StringFixed(2),
		"lines":    len(order.Lines),
	}).Info("order finalized")
	if c.metrics != nil {
		c.metrics.RecordCompleted()
	}
	return Result{Order: order}, nil
}

// validateFinalization проверяет всё, что можно проверить до записи.
func validateFinalization(session domain.Session, userID string, proof domain.Proof) error {
	if userID == "" {
		return domain.ErrUserRequired
	}
	if session.Cart.IsEmpty() {
		return domain.ErrCartEmpty
	}
	if _, ok := proof.(domain.PollSuccess); ok {
		pending := session.PendingPayment
		if pending == nil || pending.Method != domain.PaymentMethodNETS || pending.ProviderReference != proof.Reference() {
			return domain.ErrProofMismatch
		}
		if pending.Status != domain.PaymentStatusConfirmed {
			return fmt.Errorf("nets payment %s %s: %w", pending.ProviderReference, pending.Status, domain.ErrPaymentNotConfirmed)
		}
	}
	for _, line := range session.Cart.Lines {
		if err := line.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// capture списывает деньги у redirect-провайдера до записи заказа.
// Одобрение покупателя без списания даёт ErrPaymentNotConfirmed.
func (c *Coordinator) capture(ctx context.Context, proof domain.Proof, logger *log.Entry) error {
	if _, ok := proof.(domain.RedirectProof); !ok || c.providers == nil {
		return nil
	}
	provider, err := c.providers.Provider(proof.Method())
	if err != nil {
		return err
	}
	capturer, ok := provider.(domain.PaymentCapturer)
	if !ok {
		return nil
	}

	status, err := capturer.Capture(ctx, proof.Reference())
	if err != nil {
		logger.WithError(err).Warn("payment capture failed")
		return err
	}
	if status != domain.PaymentStatusConfirmed {
		logger.WithField("status", status).Info("payment not captured")
		return fmt.Errorf("%s order %s %s: %w", proof.Method(), proof.Reference(), status, domain.ErrPaymentNotConfirmed)
	}
	return nil
}

// commit выполняет протокол фиксации в одной единице работы стора.
func (c *Coordinator) commit(ctx context.Context, session domain.Session, userID string, proof domain.Proof, logger *log.Entry) (domain.Order, error) {
	cart := session.Cart.Clone()
	now := c.now()
	order := domain.Order{
		ID:                c.newID(),
		UserID:            userID,
		TotalAmount:       cart.Total(),
		PaymentMethod:     proof.Method(),
		ProviderReference: proof.Reference(),
		CreatedAt:         now,
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin finalization: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithError(rbErr).Warn("finalization rollback failed")
			}
		}
	}()

	stepStart := time.Now()
	if err := tx.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	c.recordStep("order_header", stepStart)

	stepStart = time.Now()
	lines, oversold, err := c.writeLines(ctx, tx, order.ID, cart.Lines, logger)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	c.recordStep("order_lines", stepStart)

	stepStart = time.Now()
	if err := tx.RecordFinalization(ctx, domain.Finalization{
		ProviderReference: order.ProviderReference,
		OrderID:           order.ID,
		SessionID:         session.ID,
		Method:            order.PaymentMethod,
		CreatedAt:         now,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("record finalization: %w", err)
	}

	events, err := c.orderEvents(session.ID, order, oversold)
	if err != nil {
		return domain.Order{}, err
	}
	for _, msg := range events {
		if err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return domain.Order{}, fmt.Errorf("enqueue %s: %w", msg.EventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit finalization: %w", err)
	}
	committed = true
	c.recordStep("commit", stepStart)

	if c.metrics != nil {
		for range events {
			c.metrics.RecordOutboxEvent()
		}
	}
	return order, nil
}

// writeLines пишет позиции и списывает остатки конкурентно; заголовок заказа уже создан.
func (c *Coordinator) writeLines(ctx context.Context, tx domain.FinalizationTx, orderID string, cartLines []domain.CartLine, logger *log.Entry) ([]domain.OrderLine, []domain.OrderLine, error) {
	lines := make([]domain.OrderLine, len(cartLines))
	for i, cl := range cartLines {
		lines[i] = domain.LineFromCart(c.newID(), orderID, cl)
	}

	var (
		mu       sync.Mutex
		oversold []domain.OrderLine
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, line := range lines {
		g.Go(func() error {
			if err := tx.AddOrderLine(gctx, line); err != nil {
				return fmt.Errorf("add order line for product %d: %w", line.ProductID, err)
			}
			applied, err := tx.DecrementStock(gctx, line.ProductID, line.Quantity)
			if errors.Is(err, domain.ErrProductNotFound) && c.oversell == OversellBackorder {
				// товар удалён из каталога после добавления в корзину: позиция уходит в backorder
				applied, err = false, nil
			}
			if err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", line.ProductID, err)
			}
			if applied {
				return nil
			}

			if c.metrics != nil {
				c.metrics.RecordOversell()
			}
			if c.oversell == OversellReject {
				return fmt.Errorf("product %d quantity %d: %w", line.ProductID, line.Quantity, domain.ErrOversell)
			}
			logger.WithFields(log.Fields{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			}).Warn("stock insufficient, line recorded as backorder")
			mu.Lock()
			oversold = append(oversold, line)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	sort.Slice(oversold, func(i, j int) bool { return oversold[i].ProductID < oversold[j].ProductID })
	return lines, oversold, nil
}

func (c *Coordinator) orderEvents(sessionID string, order domain.Order, oversold []domain.OrderLine) ([]domain.OutboxMessage, error) {
	payload, err := json.Marshal(domain.OrderFinalizedPayload{
		OrderID:           order.ID,
		UserID:            order.UserID,
		SessionID:         sessionID,
		TotalAmount:       order.TotalAmount,
		PaymentMethod:     order.PaymentMethod,
		ProviderReference: order.ProviderReference,
		LinesCount:        len(order.Lines),
		CreatedAt:         order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", domain.EventOrderFinalized, err)
	}

	events := []domain.OutboxMessage{{
		ID:            c.newID(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventOrderFinalized,
		Payload:       payload,
	}}
	for _, line := range oversold {
		payload, err := json.Marshal(domain.StockOversoldPayload{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", domain.EventStockOversold, err)
		}
		events = append(events, domain.OutboxMessage{
			ID:            c.newID(),
			AggregateType: domain.AggregateProduct,
			AggregateID:   fmt.Sprintf("%d", line.ProductID),
			EventType:     domain.EventStockOversold,
			Payload:       payload,
		})
	}
	return events, nil
}

// completeSession записывает последний заказ, очищает корзину и ожидающий платёж.
// force=false применяется к повторному сигналу: сессия меняется, только если
// она ещё в Finalizing или ждёт именно этот reference.
func (c *Coordinator) completeSession(ctx context.Context, sessionID, orderID, ref string, force bool) error {
	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		owns := s.PendingPayment != nil && s.PendingPayment.ProviderReference == ref
		if !force && s.CheckoutState() != domain.CheckoutFinalizing && !owns {
			return errNoChange
		}
		if s.LastOrderID == orderID && s.CheckoutState() == domain.CheckoutCompleted && !owns {
			return errNoChange
		}
		s.LastOrderID = orderID
		s.Cart.Clear()
		s.PendingPayment = nil
		// Заказ уже записан, поэтому состояние выставляется без проверки перехода.
		s.State = domain.CheckoutCompleted
		s.AddFlash(domain.FlashSuccess, "Your order has been placed.")
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

func (c *Coordinator) resolveDuplicate(ctx context.Context, sessionID string, existing domain.Finalization, logger *log.Entry) (Result, error) {
	logger = logger.WithField("order_id", existing.OrderID)
	logger.Info("payment reference already finalized")
	if c.metrics != nil {
		c.metrics.RecordDuplicate()
	}

	if existing.SessionID == sessionID {
		if err := c.withRetry(ctx, "complete_session", sessionID, func(ctx context.Context) error {
			return c.completeSession(ctx, sessionID, existing.OrderID, existing.ProviderReference, false)
		}); err != nil {
			logger.WithError(err).Warn("session update for finalized reference failed")
		}
	}

	order, err := c.orders.Get(ctx, existing.OrderID)
	if err != nil {
		return Result{}, fmt.Errorf("load finalized order: %w", err)
	}
	return Result{Order: order, Duplicate: true}, nil
}

// abort возвращает сессию из Finalizing; корзина не трогается.
func (c *Coordinator) abort(ctx context.Context, sessionID string, cause error, logger *log.Entry) {
	kind := domain.KindOf(cause)
	logger.WithError(cause).WithField("kind", kind).Warn("finalization failed, cart kept")

	switch kind {
	case domain.ErrorKindOversell:
		c.recordFailure(metrics.FailureOversell)
	case domain.ErrorKindValidation:
		c.recordFailure(metrics.FailureValidation)
	case domain.ErrorKindProvider:
		c.recordFailure(metrics.FailureProvider)
	default:
		c.recordFailure(metrics.FailurePersistence)
	}

	message := "We could not place your order. Please try again."
	switch {
	case kind == domain.ErrorKindOversell:
		message = "Some items in your cart are out of stock."
	case errors.Is(cause, domain.ErrPaymentNotConfirmed):
		message = "Your payment has not been completed."
	}

	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.CheckoutState() != domain.CheckoutFinalizing {
			return errNoChange
		}
		next := domain.CheckoutIdle
		if s.PendingPayment != nil {
			next = domain.CheckoutAwaitingPayment
		}
		if err := s.MoveTo(next); err != nil {
			return err
		}
		s.AddFlash(domain.FlashError, message)
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		logger.WithError(err).Error("restore session after failed finalization")
	}
}

func (c *Coordinator) recordFailure(reason string) {
	if c.metrics != nil {
		c.metrics.RecordFailed(reason)
	}
}

func (c *Coordinator) recordStep(step string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStepDuration(step, time.Since(start))
	}
}
