package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/misprint/carddrop/internal/core/service"
	"github.com/misprint/carddrop/internal/port"
)

type HTTPHandler struct {
	purchaseService *service.PurchaseService
}

type PurchaseHTTPResponse struct {
	Message string `json:"message"`
	ItemID  string `json:"item_id"`
}

type ErrorHTTPResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHTTPHandler(purchaseService *service.PurchaseService) *HTTPHandler {
	return &HTTPHandler{purchaseService: purchaseService}
}

func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing item id")
		return
	}

	item, err := h.purchaseService.Status(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, port.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) Buy(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing item id")
		return
	}

	// Optional client-supplied idempotency token; retried requests with
	// the same token cannot buy the item twice.
	requestID := r.Header.Get("X-Request-ID")

	err := h.purchaseService.Purchase(r.Context(), itemID, requestID)
	if err != nil {
		switch {
		case errors.Is(err, port.ErrItemNotFound):
			writeError(w, http.StatusNotFound, "not_found", "item not found")
		case errors.Is(err, service.ErrSoldOut):
			writeError(w, http.StatusConflict, "sold_out", "item is sold out")
		case errors.Is(err, service.ErrDuplicateRequest):
			writeError(w, http.StatusConflict, "duplicate_request", "duplicate request")
		case errors.Is(err, service.ErrServerBusy):
			writeError(w, http.StatusServiceUnavailable, "server_busy", "server busy, please try again")
		case errors.Is(err, port.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, PurchaseHTTPResponse{
		Message: "purchase successful",
		ItemID:  itemID,
	})
}

func (h *HTTPHandler) Reset(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing item id")
		return
	}

	if err := h.purchaseService.Reset(r.Context(), itemID); err != nil {
		switch {
		case errors.Is(err, port.ErrItemNotFound):
			writeError(w, http.StatusNotFound, "not_found", "item not found")
		case errors.Is(err, port.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "item has been reset"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorHTTPResponse{Error: code, Message: message})
}
