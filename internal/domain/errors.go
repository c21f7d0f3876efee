package domain

import "errors"

var (
	// ErrCartEmpty — корзина пуста, финализировать нечего.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrLineQtyInvalid — количество в позиции корзины меньше единицы.
	ErrLineQtyInvalid = errors.New("cart line quantity must be at least 1")
	// ErrLinePriceInvalid — отрицательная цена позиции.
	ErrLinePriceInvalid = errors.New("cart line price must be non-negative")
	// ErrLineNotFound — позиции с таким товаром нет в корзине.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrProductIDRequired — не указан идентификатор товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// ErrProductNotFound — товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrStockDeltaInvalid — нулевое изменение остатка.
	ErrStockDeltaInvalid = errors.New("stock delta must be non-zero")
	// ErrInsufficientStock — guarded decrement не применён при ручной корректировке остатка.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким ID уже записан.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrUserRequired — не указан пользователь, от имени которого создаётся заказ.
	ErrUserRequired = errors.New("user_id is required")
	// ErrOrderTotalMismatch — сумма заказа не совпадает с суммой позиций.
	ErrOrderTotalMismatch = errors.New("order total does not match lines sum")

	// ErrInvalidAmount — сумма платежа должна быть положительной.
	ErrInvalidAmount = errors.New("payment amount must be greater than zero")
	// ErrPaymentMethodUnsupported — неизвестный способ оплаты.
	ErrPaymentMethodUnsupported = errors.New("payment method is not supported")
	// ErrProviderUnavailable — платёжный провайдер недоступен или отклонил запрос на создание платежа.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrPaymentTerminal — попытка вывести платёж из конечного статуса.
	ErrPaymentTerminal = errors.New("payment intent is already in a terminal state")
	// ErrPaymentStatusInvalid — переход в неизвестный статус.
	ErrPaymentStatusInvalid = errors.New("payment status is invalid")
	// ErrNoPendingPayment — у сессии нет ожидающего платежа.
	ErrNoPendingPayment = errors.New("session has no pending payment")

	// ErrProofMissing — в callback не передано подтверждение для заявленного способа оплаты.
	ErrProofMissing = errors.New("payment proof is missing")
	// ErrProofMismatch — reference из callback не совпадает с reference созданного платежа.
	ErrProofMismatch = errors.New("payment proof does not match pending payment")
	// ErrPaymentNotConfirmed — провайдер ещё не подтвердил перевод денег.
	ErrPaymentNotConfirmed = errors.New("payment is not confirmed by provider")
	// ErrIllegalTransition — недопустимый переход состояния checkout.
	ErrIllegalTransition = errors.New("illegal checkout state transition")

	// ErrOversell — guarded decrement не применён, политика запрещает продажу без остатка.
	ErrOversell = errors.New("product stock is insufficient for order line")
	// ErrFinalizationExists — для provider reference уже создан заказ.
	ErrFinalizationExists = errors.New("payment reference already finalized")
	// ErrFinalizationNotFound — для provider reference заказ ещё не создавался.
	ErrFinalizationNotFound = errors.New("payment reference not finalized")
	// ErrSessionRequired — не передан идентификатор сессии.
	ErrSessionRequired = errors.New("session id is required")
	// ErrSessionConflict — конкурентное изменение сессии, операцию можно повторить.
	ErrSessionConflict = errors.New("session was modified concurrently")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind группирует ошибки по способу реакции пользовательского слоя.
type ErrorKind string

const (
	// ErrorKindValidation — некорректный ввод, состояние не меняется.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindProvider — сбой на стороне платёжного провайдера.
	ErrorKindProvider ErrorKind = "provider"
	// ErrorKindOversell — на складе не хватает товара.
	ErrorKindOversell ErrorKind = "oversell"
	// ErrorKindPersistence — всё остальное: сбои хранилища и неожиданные ошибки.
	ErrorKindPersistence ErrorKind = "persistence"
)

var validationErrors = []error{
	ErrCartEmpty,
	ErrLineQtyInvalid,
	ErrLinePriceInvalid,
	ErrLineNotFound,
	ErrProductIDRequired,
	ErrProductNotFound,
	ErrStockDeltaInvalid,
	ErrInsufficientStock,
	ErrUserRequired,
	ErrInvalidAmount,
	ErrPaymentMethodUnsupported,
	ErrNoPendingPayment,
	ErrProofMissing,
	ErrProofMismatch,
	ErrPaymentNotConfirmed,
	ErrIllegalTransition,
	ErrSessionRequired,
}

// KindOf классифицирует ошибку. nil считается отсутствием ошибки и даёт пустой kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return ErrorKindValidation
		}
	}
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return ErrorKindProvider
	case errors.Is(err, ErrOversell):
		return ErrorKindOversell
	default:
		return ErrorKindPersistence
	}
}

// IsValidation сообщает, относится ли ошибка к ошибкам ввода.
func IsValidation(err error) bool {
	return KindOf(err) == ErrorKindValidation
}

// IsFinalizationExists проверяет конфликт повторной финализации.
func IsFinalizationExists(err error) bool {
	return errors.Is(err, ErrFinalizationExists)
}
