package httpapi

import (
	"net/http"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Cart.Get(r.Context(), sessionID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if errResp := decodeAndValidate(w, r, &req); errResp != nil {
		writeRaw(w, http.StatusBadRequest, mustEncodeError(errResp))
		return
	}
	view, err := h.deps.Cart.Add(r.Context(), sessionID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// updateCartItem задаёт количество; 0 удаляет позицию.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	var req updateItemRequest
	if errResp := decodeAndValidate(w, r, &req); errResp != nil {
		writeRaw(w, http.StatusBadRequest, mustEncodeError(errResp))
		return
	}
	view, err := h.deps.Cart.Update(r.Context(), sessionID(r.Context()), productID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	view, err := h.deps.Cart.Remove(r.Context(), sessionID(r.Context()), productID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Cart.Clear(r.Context(), sessionID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}
