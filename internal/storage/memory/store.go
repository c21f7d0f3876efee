package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — общее in-memory хранилище каталога, заказов, финализаций и outbox.
// Репозитории этого пакета являются view поверх одного Store, поэтому
// финализация может атомарно затронуть несколько «таблиц» сразу.
type Store struct {
	mu sync.RWMutex

	products      map[int64]domain.Product
	nextProductID int64

	orders        map[string]domain.Order
	finalizations map[string]domain.Finalization
	outbox        map[string]*outboxRecord

	// reserved — reference и order ID, занятые незакоммиченными транзакциями.
	reservedRefs   map[string]struct{}
	reservedOrders map[string]struct{}
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products:       make(map[int64]domain.Product),
		orders:         make(map[string]domain.Order),
		finalizations:  make(map[string]domain.Finalization),
		outbox:         make(map[string]*outboxRecord),
		reservedRefs:   make(map[string]struct{}),
		reservedOrders: make(map[string]struct{}),
	}
}
