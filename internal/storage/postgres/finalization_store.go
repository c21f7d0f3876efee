package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type finalizationRepository struct {
	db *sql.DB
}

// NewFinalizationRepository создаёт PostgreSQL-реализацию FinalizationRepository.
func NewFinalizationRepository(store *Store) domain.FinalizationRepository {
	return &finalizationRepository{db: store.DB()}
}

func (r *finalizationRepository) Lookup(ctx context.Context, providerReference string) (domain.Finalization, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		f      domain.Finalization
		method string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT provider_reference, order_id, session_id, method, created_at
		FROM payment_finalizations
		WHERE provider_reference = $1
	`, providerReference).Scan(&f.ProviderReference, &f.OrderID, &f.SessionID, &method, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Finalization{}, domain.ErrFinalizationNotFound
		}
		return domain.Finalization{}, fmt.Errorf("lookup finalization: %w", err)
	}
	f.Method = domain.PaymentMethod(method)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

type finalizationStore struct {
	db *sql.DB
}

// NewFinalizationStore открывает транзакции финализации поверх одной SQL-транзакции.
func NewFinalizationStore(store *Store) domain.FinalizationStore {
	return &finalizationStore{db: store.DB()}
}

func (s *finalizationStore) Begin(ctx context.Context) (domain.FinalizationTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin finalization tx: %w", err)
	}
	return &finalizationTx{tx: tx}, nil
}

// finalizationTx сериализует операторы: одно соединение транзакции
// не принимает параллельных запросов.
type finalizationTx struct {
	mu sync.Mutex
	tx *sql.Tx
}

func (t *finalizationTx) CreateOrder(ctx context.Context, order domain.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, payment_method, provider_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.UserID, order.TotalAmount, string(order.PaymentMethod), order.ProviderReference, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *finalizationTx) AddOrderLine(ctx context.Context, line domain.OrderLine) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if line.ID == "" {
		line.ID = uuid.NewString()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, product_name, product_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		line.ID, line.OrderID, line.ProductID, line.Quantity,
		line.UnitPriceAtPurchase, line.ProductNameSnapshot, line.ImageRefSnapshot,
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (t *finalizationTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return guardedDecrement(ctx, t.tx, productID, qty)
}

func (t *finalizationTx) RecordFinalization(ctx context.Context, f domain.Finalization) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_finalizations (provider_reference, order_id, session_id, method, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, f.ProviderReference, f.OrderID, f.SessionID, string(f.Method), f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrFinalizationExists
		}
		return fmt.Errorf("insert finalization: %w", err)
	}
	return nil
}

func (t *finalizationTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := insertOutboxMessage(ctx, t.tx, msg)
	return err
}

func (t *finalizationTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit finalization: %w", err)
	}
	return nil
}

// Rollback после Commit возвращает nil, его можно звать в defer.
func (t *finalizationTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback finalization: %w", err)
	}
	return nil
}

var (
	_ domain.FinalizationRepository = (*finalizationRepository)(nil)
	_ domain.FinalizationStore      = (*finalizationStore)(nil)
	_ domain.FinalizationTx         = (*finalizationTx)(nil)
)
