package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/confirmation"
)

// streamConfirmation держит SSE-поток статуса оплаты по QR-коду.
// Каждый опрос провайдера даёт один кадр {"pending"|"success"|"fail": true};
// после success/fail поток закрывается, при отключении клиента опрос прекращается.
func (h *Handler) streamConfirmation(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "txnRetrievalRef"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", domain.ErrProofMissing.Error())
		return
	}
	relay := h.deps.Streams[domain.PaymentMethodNETS]
	if relay == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "confirmation stream is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sid := sessionID(r.Context())
	logger := h.logger.WithFields(log.Fields{"session_id": sid, "reference": ref})

	emit := func(event confirmation.Event) error {
		frame, err := event.SSEFrame()
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	observe := func(ctx context.Context, status domain.PaymentStatus) {
		if err := h.deps.Checkout.ObservePayment(ctx, sid, ref, status); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("failed to record observed payment status")
		}
	}

	if err := relay.Run(r.Context(), ref, emit, observe); err != nil {
		logger.WithError(err).Warn("confirmation stream aborted")
	}
}
