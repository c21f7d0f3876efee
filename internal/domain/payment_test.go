package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestPaymentMethod_Style(t *testing.T) {
	if domain.PaymentMethodNETS.Style() != domain.ConfirmPoll {
		t.Fatal("nets must be poll-confirm")
	}
	if domain.PaymentMethodPayPal.Style() != domain.ConfirmRedirect {
		t.Fatal("paypal must be redirect-confirm")
	}
	if domain.PaymentMethod("cash").Valid() {
		t.Fatal("unknown method must be invalid")
	}
}

func TestPaymentIntent_TransitionTerminalIsSticky(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name     string
		from     domain.PaymentStatus
		to       domain.PaymentStatus
		wantErr  error
		wantStat domain.PaymentStatus
	}{
		{name: "initiated to pending", from: domain.PaymentStatusInitiated, to: domain.PaymentStatusPending, wantStat: domain.PaymentStatusPending},
		{name: "pending to confirmed", from: domain.PaymentStatusPending, to: domain.PaymentStatusConfirmed, wantStat: domain.PaymentStatusConfirmed},
		{name: "confirmed to confirmed", from: domain.PaymentStatusConfirmed, to: domain.PaymentStatusConfirmed, wantStat: domain.PaymentStatusConfirmed},
		{name: "confirmed to failed", from: domain.PaymentStatusConfirmed, to: domain.PaymentStatusFailed, wantErr: domain.ErrPaymentTerminal, wantStat: domain.PaymentStatusConfirmed},
		{name: "failed to pending", from: domain.PaymentStatusFailed, to: domain.PaymentStatusPending, wantErr: domain.ErrPaymentTerminal, wantStat: domain.PaymentStatusFailed},
		{name: "expired to confirmed", from: domain.PaymentStatusExpired, to: domain.PaymentStatusConfirmed, wantErr: domain.ErrPaymentTerminal, wantStat: domain.PaymentStatusExpired},
		{name: "back to initiated", from: domain.PaymentStatusPending, to: domain.PaymentStatusInitiated, wantErr: domain.ErrPaymentStatusInvalid, wantStat: domain.PaymentStatusPending},
		{name: "unknown status", from: domain.PaymentStatusPending, to: domain.PaymentStatus("paid"), wantErr: domain.ErrPaymentStatusInvalid, wantStat: domain.PaymentStatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := domain.PaymentIntent{Status: tc.from}
			err := intent.Transition(tc.to, now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			if intent.Status != tc.wantStat {
				t.Fatalf("expected status %s, got %s", tc.wantStat, intent.Status)
			}
		})
	}
}
