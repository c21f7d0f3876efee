package cart

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// View — корзина вместе с итоговой суммой.
type View struct {
	Lines []domain.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

func viewOf(session domain.Session) View {
	lines := session.Cart.Clone().Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return View{Lines: lines, Total: session.Cart.Total()}
}

// Service изменяет корзину сессии.
type Service struct {
	products domain.ProductRepository
	sessions domain.SessionStore
	logger   *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(products domain.ProductRepository, sessions domain.SessionStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{products: products, sessions: sessions, logger: logger}
}

// Get возвращает корзину сессии.
func (s *Service) Get(ctx context.Context, sessionID string) (View, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return viewOf(session), nil
}

// Add добавляет товар в корзину, снимая snapshot цены, названия и картинки.
// Повторное добавление увеличивает количество и сохраняет первоначальную цену.
func (s *Service) Add(ctx context.Context, sessionID string, productID int64, qty int) (View, error) {
	if productID <= 0 {
		return View{}, domain.ErrProductIDRequired
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return View{}, domain.ErrLineQtyInvalid
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return View{}, err
	}

	session, err := s.mutate(ctx, sessionID, func(cart *domain.CartSnapshot) error {
		return cart.Add(domain.NewCartLineFromProduct(product, qty))
	})
	if err != nil {
		return View{}, err
	}

	s.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"product_id": productID,
		"quantity":   qty,
	}).Debug("product added to cart")
	return viewOf(session), nil
}

// Update выставляет количество позиции; 0 удаляет её.
func (s *Service) Update(ctx context.Context, sessionID string, productID int64, qty int) (View, error) {
	session, err := s.mutate(ctx, sessionID, func(cart *domain.CartSnapshot) error {
		return cart.Update(productID, qty)
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(session), nil
}

// Remove удаляет позицию.
func (s *Service) Remove(ctx context.Context, sessionID string, productID int64) (View, error) {
	session, err := s.mutate(ctx, sessionID, func(cart *domain.CartSnapshot) error {
		return cart.Remove(productID)
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(session), nil
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, sessionID string) (View, error) {
	session, err := s.mutate(ctx, sessionID, func(cart *domain.CartSnapshot) error {
		cart.Clear()
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(session), nil
}

// mutate меняет корзину. Пока идёт финализация, корзина заморожена;
// после завершённого заказа новая корзина возвращает сессию в Idle.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*domain.CartSnapshot) error) (domain.Session, error) {
	return s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		switch session.CheckoutState() {
		case domain.CheckoutFinalizing:
			return domain.ErrIllegalTransition
		case domain.CheckoutCompleted:
			if err := session.MoveTo(domain.CheckoutIdle); err != nil {
				return err
			}
		}
		return fn(&session.Cart)
	})
}
