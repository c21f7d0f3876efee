package domain

import "context"

// ProductRepository — каталог и складской учёт. Остаток меняется только
// условными операциями; безусловная запись quantity не предусмотрена.
type ProductRepository interface {
	// Create добавляет товар (наполнение каталога, тесты). ID назначается хранилищем, если он нулевой.
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// List возвращает товары, чьё название содержит query (без учёта регистра); пустой query: все.
	List(ctx context.Context, query string) ([]Product, error)
	// Decrement уменьшает остаток на qty, только если остаток >= qty. applied=false: запись не изменилась.
	Decrement(ctx context.Context, id int64, qty int) (applied bool, err error)
	// Increment увеличивает остаток на qty > 0.
	Increment(ctx context.Context, id int64, qty int) error
}

// OrderRepository — чтение заказов. Запись идёт только через FinalizationStore.
type OrderRepository interface {
	// Get возвращает заказ вместе с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit <= 0: без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListAll возвращает все заказы, новые первыми.
	ListAll(ctx context.Context, limit int) ([]Order, error)
}

// FinalizationRepository отвечает на вопрос «создан ли уже заказ по этому reference».
type FinalizationRepository interface {
	// Lookup возвращает запись или ErrFinalizationNotFound.
	Lookup(ctx context.Context, providerReference string) (Finalization, error)
}

// FinalizationStore открывает unit of work для протокола фиксации заказа.
type FinalizationStore interface {
	Begin(ctx context.Context) (FinalizationTx, error)
}

// FinalizationTx — одна попытка фиксации: либо всё записывается Commit, либо ничего (Rollback).
// Методы AddOrderLine и DecrementStock безопасны для конкурентного вызова после CreateOrder.
type FinalizationTx interface {
	CreateOrder(ctx context.Context, order Order) error
	AddOrderLine(ctx context.Context, line OrderLine) error
	DecrementStock(ctx context.Context, productID int64, qty int) (applied bool, err error)
	// RecordFinalization возвращает ErrFinalizationExists, если reference уже занят.
	RecordFinalization(ctx context.Context, f Finalization) error
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
	Commit() error
	Rollback() error
}
