package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FakeProvider — конфигурируемая заглушка провайдера для локального запуска и тестов.
// Query отдаёт статусы из сценария по очереди; последний статус повторяется.
type FakeProvider struct {
	method domain.PaymentMethod

	mu          sync.Mutex
	script      []domain.PaymentStatus
	cursor      map[string]int
	initiateErr error
	nextRef     func() string
	capture     domain.PaymentStatus
	captureErr  error

	initiateCalls int
	queryCalls    int
	captureCalls  int
}

// NewFakeProvider возвращает fake, который подтверждает платёж со второго опроса.
func NewFakeProvider(method domain.PaymentMethod) *FakeProvider {
	return &FakeProvider{
		method:  method,
		script:  []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusConfirmed},
		cursor:  make(map[string]int),
		capture: domain.PaymentStatusConfirmed,
		nextRef: func() string { return "fake-" + string(method) + "-" + uuid.NewString() },
	}
}

// Script задаёт последовательность статусов для каждого reference.
func (f *FakeProvider) Script(statuses ...domain.PaymentStatus) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append([]domain.PaymentStatus(nil), statuses...)
	f.cursor = make(map[string]int)
	return f
}

// FailInitiate заставляет Initiate возвращать err (nil снимает ошибку).
func (f *FakeProvider) FailInitiate(err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiateErr = err
	return f
}

// CaptureResult задаёт ответ Capture (по умолчанию confirmed).
func (f *FakeProvider) CaptureResult(status domain.PaymentStatus, err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = status
	f.captureErr = err
	return f
}

// WithReference фиксирует reference, который вернёт Initiate.
func (f *FakeProvider) WithReference(ref string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRef = func() string { return ref }
	return f
}

// Method реализует domain.PaymentProvider.
func (f *FakeProvider) Method() domain.PaymentMethod {
	return f.method
}

// Initiate возвращает intent с заранее известным reference.
func (f *FakeProvider) Initiate(ctx context.Context, amount decimal.Decimal) (domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiateCalls++

	if !amount.IsPositive() {
		return domain.PaymentIntent{}, domain.ErrInvalidAmount
	}
	if f.initiateErr != nil {
		return domain.PaymentIntent{}, f.initiateErr
	}
	if err := ctx.Err(); err != nil {
		return domain.PaymentIntent{}, domain.ErrProviderUnavailable
	}

	now := time.Now().UTC()
	intent := domain.PaymentIntent{
		Method:            f.method,
		Style:             f.method.Style(),
		ProviderReference: f.nextRef(),
		Amount:            domain.RoundMoney(amount),
		Status:            domain.PaymentStatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if intent.Style == domain.ConfirmPoll {
		intent.QRCode = qrDataURLPrefix + "ZmFrZQ=="
	} else {
		intent.RedirectURL = "/checkout/finalize?method=" + string(f.method) + "&token=" + intent.ProviderReference + "&PayerID=FAKEPAYER"
	}
	return intent, nil
}

// Query возвращает следующий статус сценария для reference.
func (f *FakeProvider) Query(_ context.Context, reference string) domain.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++

	if len(f.script) == 0 {
		return domain.PaymentStatusPending
	}
	i := f.cursor[reference]
	if i >= len(f.script) {
		i = len(f.script) - 1
	} else {
		f.cursor[reference] = i + 1
	}
	return f.script[i]
}

// Capture отдаёт заданный CaptureResult.
func (f *FakeProvider) Capture(_ context.Context, _ string) (domain.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureCalls++
	return f.capture, f.captureErr
}

// CaptureCalls возвращает число вызовов Capture.
func (f *FakeProvider) CaptureCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureCalls
}

// Calls возвращает счётчики вызовов Initiate и Query.
func (f *FakeProvider) Calls() (initiate, query int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiateCalls, f.queryCalls
}

var (
	_ domain.PaymentProvider = (*FakeProvider)(nil)
	_ domain.PaymentCapturer = (*FakeProvider)(nil)
)
