package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// HeaderIdempotencyKey — ключ идемпотентности создания платежа.
const HeaderIdempotencyKey = "Idempotency-Key"

// headerIdempotentReplay помечает ответ, отданный из сохранённой записи.
const headerIdempotentReplay = "Idempotent-Replayed"

func (h *Handler) paymentMethods(w http.ResponseWriter, _ *http.Request) {
	methods := make([]string, 0, len(h.deps.Methods))
	for _, m := range h.deps.Methods {
		methods = append(methods, string(m))
	}
	writeJSON(w, http.StatusOK, methods)
}

// initiatePayment создаёт платёж на сумму корзины.
// С заголовком Idempotency-Key повтор того же запроса получает сохранённый ответ.
func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "failed to read request body")
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.deps.Idempotency == nil {
		status, body := h.runInitiate(ctx, sid, raw)
		writeRaw(w, status, body)
		return
	}

	ticket, replayed, err := h.deps.Idempotency.Begin(ctx, key, domain.RequestHash(sid, raw))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if replayed != nil {
		h.logger.WithField("idempotency_key", key).Debug("payment initiation replayed")
		w.Header().Set(headerIdempotentReplay, "true")
		writeRaw(w, replayed.Status, replayed.Body)
		return
	}

	status, body := h.runInitiate(ctx, sid, raw)
	// ответ сохраняется, даже если клиент уже отключился
	storeCtx := context.WithoutCancel(ctx)
	if status < http.StatusBadRequest {
		ticket.Succeed(storeCtx, status, body)
	} else {
		ticket.Fail(storeCtx, status, body)
	}
	writeRaw(w, status, body)
}

func (h *Handler) runInitiate(ctx context.Context, sid string, raw []byte) (int, []byte) {
	var req initiatePaymentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return http.StatusBadRequest, mustEncodeError(&errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()})
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if errResp := validateStruct(&req); errResp != nil {
		return http.StatusBadRequest, mustEncodeError(errResp)
	}

	intent, err := h.deps.Checkout.InitiatePayment(ctx, sid, domain.PaymentMethod(req.Method))
	if err != nil {
		status, errResp := errorFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("session_id", sid).Warn("payment initiation failed")
		}
		return status, mustEncodeError(errResp)
	}

	body, err := encode(response{Data: toPayment(intent)})
	if err != nil {
		return http.StatusInternalServerError, mustEncodeError(&errorResponse{Code: "INTERNAL", Message: "failed to encode response"})
	}
	return http.StatusCreated, body
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Checkout.CancelPayment(r.Context(), sessionID(r.Context())); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
