package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory каталог поверх store.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	if product.Quantity < 0 {
		return domain.Product{}, domain.ErrStockDeltaInvalid
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		s.nextProductID++
		product.ID = s.nextProductID
	} else if product.ID > s.nextProductID {
		s.nextProductID = product.ID
	}
	s.products[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) List(_ context.Context, query string) ([]domain.Product, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if query != "" && !strings.Contains(strings.ToLower(product.Name), query) {
			continue
		}
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *productRepositoryInMemory) Decrement(_ context.Context, id int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockDeltaInvalid
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.decrementLocked(id, qty)
}

func (r *productRepositoryInMemory) Increment(_ context.Context, id int64, qty int) error {
	if qty <= 0 {
		return domain.ErrStockDeltaInvalid
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Quantity += qty
	s.products[id] = product
	return nil
}

// decrementLocked — guarded decrement, вызывается под s.mu.
func (s *Store) decrementLocked(id int64, qty int) (bool, error) {
	product, ok := s.products[id]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if product.Quantity < qty {
		return false, nil
	}
	product.Quantity -= qty
	s.products[id] = product
	return true, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
