package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Страницы, на которые уводит callback финализации.
const (
	PathCart     = "/cart"
	PathCheckout = "/checkout"
	PathSuccess  = "/checkout/success"
	PathShopping = "/shopping"
)

// finalize — callback после оплаты: ?method=paypal&paypalOrderId= или ?method=nets&txnRetrievalRef=.
// Return URL PayPal приходит с ?token=<order id>&PayerID=: token принимается вместо paypalOrderId.
func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sid := sessionID(ctx)
	logger := h.logger.WithFields(log.Fields{"session_id": sid, "method": q.Get("method")})

	proof, err := domain.ProofFromCallback(q.Get("method"), paypalOrderID(q), q.Get("txnRetrievalRef"))
	if err != nil {
		logger.WithError(err).Info("finalize callback without valid proof")
		http.Redirect(w, r, PathCheckout, http.StatusSeeOther)
		return
	}

	result, err := h.deps.Checkout.Finalize(ctx, sid, userID(ctx), proof)
	if err != nil {
		target := redirectFor(err)
		if target == PathCheckout && !domain.IsValidation(err) {
			logger.WithError(err).Warn("checkout finalization failed")
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	logger.WithFields(log.Fields{
		"order_id":  result.Order.ID,
		"duplicate": result.Duplicate,
	}).Info("checkout finalized")
	http.Redirect(w, r, PathSuccess, http.StatusSeeOther)
}

func paypalOrderID(q url.Values) string {
	if id := strings.TrimSpace(q.Get("paypalOrderId")); id != "" {
		return id
	}
	return q.Get("token")
}

// redirectFor выбирает страницу для неуспешной финализации.
func redirectFor(err error) string {
	if errors.Is(err, domain.ErrCartEmpty) {
		return PathCart
	}
	return PathCheckout
}

// success отдаёт номер последнего заказа сессии или уводит в каталог.
func (h *Handler) success(w http.ResponseWriter, r *http.Request) {
	orderID, err := h.deps.Checkout.LastOrderID(r.Context(), sessionID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if orderID == "" {
		http.Redirect(w, r, PathShopping, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID})
}

func (h *Handler) popFlash(w http.ResponseWriter, r *http.Request) {
	flash, err := h.deps.Checkout.PopFlash(r.Context(), sessionID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if flash == nil {
		flash = []domain.FlashMessage{}
	}
	writeJSON(w, http.StatusOK, flash)
}
