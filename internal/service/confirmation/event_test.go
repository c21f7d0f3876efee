package confirmation

import (
	"encoding/json"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestEventFor(t *testing.T) {
	cases := []struct {
		status domain.PaymentStatus
		want   Event
	}{
		{status: domain.PaymentStatusInitiated, want: EventPending},
		{status: domain.PaymentStatusPending, want: EventPending},
		{status: domain.PaymentStatusConfirmed, want: EventSuccess},
		{status: domain.PaymentStatusFailed, want: EventFail},
		{status: domain.PaymentStatusExpired, want: EventFail},
	}
	for _, tc := range cases {
		if got := EventFor(tc.status); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.status, tc.want, got)
		}
	}
}

func TestEvent_JSONHasSingleKey(t *testing.T) {
	for _, e := range []Event{EventPending, EventSuccess, EventFail} {
		raw, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal %s: %v", e, err)
		}
		var decoded map[string]bool
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if len(decoded) != 1 || !decoded[string(e)] {
			t.Fatalf("expected single key %q, got %s", e, raw)
		}
	}

	if _, err := json.Marshal(Event("unknown")); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestEvent_SSEFrame(t *testing.T) {
	frame, err := EventSuccess.SSEFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if string(frame) != "data: {\"success\":true}\n\n" {
		t.Fatalf("unexpected frame %q", frame)
	}
	if !EventFail.Terminal() || EventPending.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}
