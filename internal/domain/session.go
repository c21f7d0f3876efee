package domain

import "time"

// FlashLevel — уровень одноразового сообщения для пользователя.
type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashError   FlashLevel = "error"
)

// FlashMessage — сообщение, которое показывается один раз после redirect.
type FlashMessage struct {
	Level   FlashLevel `json:"level"`
	Message string     `json:"message"`
}

// Session — всё, что storefront хранит за идентификатором сессии.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Cart           CartSnapshot   `json:"cart"`
	PendingPayment *PaymentIntent `json:"pending_payment,omitempty"`
	State          CheckoutState  `json:"state"`
	LastOrderID    string         `json:"last_order_id,omitempty"`
	Flash          []FlashMessage `json:"flash,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewSession создаёт пустую сессию в состоянии Idle.
func NewSession(id string) Session {
	return Session{ID: id, State: CheckoutIdle}
}

// CheckoutState возвращает текущее состояние, пустое значение трактуется как Idle.
func (s Session) CheckoutState() CheckoutState {
	if s.State == "" {
		return CheckoutIdle
	}
	return s.State
}

// MoveTo переводит сессию в состояние to, если переход разрешён.
func (s *Session) MoveTo(to CheckoutState) error {
	from := s.CheckoutState()
	if !CanTransitionTo(from, to) {
		return ErrIllegalTransition
	}
	s.State = to
	return nil
}

// AddFlash добавляет одноразовое сообщение.
func (s *Session) AddFlash(level FlashLevel, message string) {
	s.Flash = append(s.Flash, FlashMessage{Level: level, Message: message})
}

// PopFlash возвращает и очищает накопленные сообщения.
func (s *Session) PopFlash() []FlashMessage {
	flash := s.Flash
	s.Flash = nil
	return flash
}

// Clone возвращает копию сессии без общих слайсов и указателей.
func (s Session) Clone() Session {
	dst := s
	dst.Cart = s.Cart.Clone()
	if s.PendingPayment != nil {
		intent := *s.PendingPayment
		dst.PendingPayment = &intent
	}
	if s.Flash != nil {
		dst.Flash = append([]FlashMessage(nil), s.Flash...)
	}
	return dst
}
