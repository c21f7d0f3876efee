package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Catalog.Products(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.deps.Catalog.Product(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(product))
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req adjustStockRequest
	if errResp := decodeAndValidate(w, r, &req); errResp != nil {
		writeRaw(w, http.StatusBadRequest, mustEncodeError(errResp))
		return
	}
	product, err := h.deps.Catalog.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(product))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Catalog.History(r.Context(), userID(r.Context()), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.deps.Catalog.Invoice(ctx, userID(ctx), chi.URLParam(r, "id"), isAdmin(ctx))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(order))
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Catalog.AllOrders(r.Context(), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryLimit читает ?limit; некорректное значение даёт лимит по умолчанию.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func mustEncodeError(e *errorResponse) []byte {
	body, _ := encode(response{Error: e})
	return body
}
