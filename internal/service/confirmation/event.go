package confirmation

import (
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Event — событие потока подтверждения, которое видит браузер.
type Event string

const (
	EventPending Event = "pending"
	EventSuccess Event = "success"
	EventFail    Event = "fail"
)

// EventFor переводит статус провайдера в событие потока.
func EventFor(status domain.PaymentStatus) Event {
	switch status {
	case domain.PaymentStatusConfirmed:
		return EventSuccess
	case domain.PaymentStatusFailed, domain.PaymentStatusExpired:
		return EventFail
	default:
		return EventPending
	}
}

// Terminal сообщает, что после события поток закрывается.
func (e Event) Terminal() bool {
	return e == EventSuccess || e == EventFail
}

// MarshalJSON кодирует событие объектом с единственным ключом: {"pending":true}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e {
	case EventPending, EventSuccess, EventFail:
		return []byte(`{"` + string(e) + `":true}`), nil
	default:
		return nil, fmt.Errorf("unknown confirmation event %q", string(e))
	}
}

// SSEFrame возвращает событие в формате text/event-stream: "data: <json>\n\n".
func (e Event) SSEFrame() ([]byte, error) {
	payload, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
