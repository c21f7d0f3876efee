package payment

import (
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Registry выбирает адаптер провайдера по способу оплаты.
type Registry struct {
	providers map[domain.PaymentMethod]domain.PaymentProvider
}

// NewRegistry регистрирует providers; при совпадении method побеждает последний.
func NewRegistry(providers ...domain.PaymentProvider) *Registry {
	r := &Registry{providers: make(map[domain.PaymentMethod]domain.PaymentProvider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Method()] = p
		}
	}
	return r
}

// Provider возвращает адаптер или ErrPaymentMethodUnsupported.
func (r *Registry) Provider(method domain.PaymentMethod) (domain.PaymentProvider, error) {
	if r == nil {
		return nil, domain.ErrPaymentMethodUnsupported
	}
	p, ok := r.providers[method]
	if !ok {
		return nil, domain.ErrPaymentMethodUnsupported
	}
	return p, nil
}

// Methods возвращает зарегистрированные способы оплаты в стабильном порядке.
func (r *Registry) Methods() []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(r.providers))
	for m := range r.providers {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
