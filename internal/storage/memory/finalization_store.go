package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// errTxDone — операция над уже завершённой транзакцией.
var errTxDone = errors.New("memory: transaction already committed or rolled back")

type finalizationRepositoryInMemory struct {
	store *Store
}

// NewFinalizationRepository возвращает in-memory реализацию FinalizationRepository.
func NewFinalizationRepository(store *Store) domain.FinalizationRepository {
	return &finalizationRepositoryInMemory{store: store}
}

func (r *finalizationRepositoryInMemory) Lookup(_ context.Context, providerReference string) (domain.Finalization, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.finalizations[providerReference]
	if !ok {
		return domain.Finalization{}, domain.ErrFinalizationNotFound
	}
	return f, nil
}

type finalizationStoreInMemory struct {
	store *Store
}

// NewFinalizationStore открывает транзакции финализации поверх store.
//
// Списания остатка применяются сразу и откатываются по журналу при Rollback.
// Заказ, позиции, запись финализации и outbox-события становятся видимы только после Commit.
// Reference и ID заказа резервируются при записи, поэтому конкурентная транзакция
// с тем же reference получает ErrFinalizationExists ещё до коммита первой.
func NewFinalizationStore(store *Store) domain.FinalizationStore {
	return &finalizationStoreInMemory{store: store}
}

func (f *finalizationStoreInMemory) Begin(ctx context.Context) (domain.FinalizationTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &finalizationTx{store: f.store}, nil
}

type stockUndo struct {
	productID int64
	qty       int
}

type finalizationTx struct {
	store *Store

	mu           sync.Mutex
	done         bool
	order        *domain.Order
	finalization *domain.Finalization
	outbox       []domain.OutboxMessage
	undo         []stockUndo
}

func (tx *finalizationTx) CreateOrder(_ context.Context, order domain.Order) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTxDone
	}
	if tx.order != nil {
		return domain.ErrOrderAlreadyExists
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	_, committed := s.orders[order.ID]
	_, reserved := s.reservedOrders[order.ID]
	if committed || reserved {
		return domain.ErrOrderAlreadyExists
	}
	s.reservedOrders[order.ID] = struct{}{}

	staged := cloneOrder(order)
	staged.Lines = nil
	tx.order = &staged
	return nil
}

func (tx *finalizationTx) AddOrderLine(_ context.Context, line domain.OrderLine) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTxDone
	}
	if tx.order == nil || tx.order.ID != line.OrderID {
		return domain.ErrOrderNotFound
	}
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	tx.order.Lines = append(tx.order.Lines, line)
	return nil
}

func (tx *finalizationTx) DecrementStock(_ context.Context, productID int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockDeltaInvalid
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return false, errTxDone
	}

	s := tx.store
	s.mu.Lock()
	applied, err := s.decrementLocked(productID, qty)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if applied {
		tx.undo = append(tx.undo, stockUndo{productID: productID, qty: qty})
	}
	return applied, nil
}

func (tx *finalizationTx) RecordFinalization(_ context.Context, f domain.Finalization) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTxDone
	}
	if tx.finalization != nil {
		return domain.ErrFinalizationExists
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	_, committed := s.finalizations[f.ProviderReference]
	_, reserved := s.reservedRefs[f.ProviderReference]
	if committed || reserved {
		return domain.ErrFinalizationExists
	}
	s.reservedRefs[f.ProviderReference] = struct{}{}

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	tx.finalization = &f
	return nil
}

func (tx *finalizationTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTxDone
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (tx *finalizationTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return errTxDone
	}
	tx.done = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.order != nil {
		order := *tx.order
		sort.SliceStable(order.Lines, func(i, j int) bool {
			return order.Lines[i].ProductID < order.Lines[j].ProductID
		})
		s.orders[order.ID] = order
		delete(s.reservedOrders, order.ID)
	}
	if tx.finalization != nil {
		s.finalizations[tx.finalization.ProviderReference] = *tx.finalization
		delete(s.reservedRefs, tx.finalization.ProviderReference)
	}
	now := time.Now().UTC()
	for _, msg := range tx.outbox {
		s.outbox[msg.ID] = &outboxRecord{msg: msg, status: outboxStatusPending, createdAt: now, updatedAt: now}
	}
	return nil
}

// Rollback после Commit ничего не делает, его можно звать в defer.
func (tx *finalizationTx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		product, ok := s.products[u.productID]
		if !ok {
			continue
		}
		product.Quantity += u.qty
		s.products[u.productID] = product
	}
	if tx.order != nil {
		delete(s.reservedOrders, tx.order.ID)
	}
	if tx.finalization != nil {
		delete(s.reservedRefs, tx.finalization.ProviderReference)
	}
	tx.order = nil
	tx.finalization = nil
	tx.outbox = nil
	tx.undo = nil
	return nil
}

var (
	_ domain.FinalizationRepository = (*finalizationRepositoryInMemory)(nil)
	_ domain.FinalizationStore      = (*finalizationStoreInMemory)(nil)
	_ domain.FinalizationTx         = (*finalizationTx)(nil)
)
