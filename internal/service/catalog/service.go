package catalog

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultHistoryLimit ограничивает выдачу истории заказов.
const DefaultHistoryLimit = 100

// Service отдаёт каталог, остатки и историю заказов.
type Service struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, orders domain.OrderRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{products: products, orders: orders, logger: logger}
}

// Products ищет товары по подстроке названия; пустой query: все товары.
func (s *Service) Products(ctx context.Context, query string) ([]domain.Product, error) {
	return s.products.List(ctx, query)
}

// Product возвращает товар.
func (s *Service) Product(ctx context.Context, id int64) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

// AdjustStock меняет остаток на delta. Уменьшение выполняется guarded decrement:
// если товара не хватает, остаток не меняется и возвращается ErrInsufficientStock.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (domain.Product, error) {
	switch {
	case delta == 0:
		return domain.Product{}, domain.ErrStockDeltaInvalid
	case delta > 0:
		if err := s.products.Increment(ctx, id, delta); err != nil {
			return domain.Product{}, err
		}
	default:
		applied, err := s.products.Decrement(ctx, id, -delta)
		if err != nil {
			return domain.Product{}, err
		}
		if !applied {
			return domain.Product{}, domain.ErrInsufficientStock
		}
	}

	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": id,
		"delta":      delta,
		"quantity":   product.Quantity,
	}).Info("stock adjusted")
	return product, nil
}

// History возвращает заказы пользователя, новые первыми.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return s.orders.ListByUser(ctx, userID, normalizeLimit(limit))
}

// Invoice возвращает заказ с позициями. Чужой заказ выглядит как отсутствующий,
// если запрос не от администратора.
func (s *Service) Invoice(ctx context.Context, userID, orderID string, admin bool) (domain.Order, error) {
	if userID == "" && !admin {
		return domain.Order{}, domain.ErrUserRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !admin && order.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// AllOrders возвращает все заказы для администратора.
func (s *Service) AllOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.orders.ListAll(ctx, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}

// IsNotFound сообщает, что запрошенный товар или заказ не существует.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrOrderNotFound)
}
