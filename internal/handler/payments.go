package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kantin-app/api/internal/auth"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/middleware"
	"github.com/kantin-app/api/internal/service"
)

// PaymentServicer defines the service methods needed by payment handlers.
type PaymentServicer interface {
	ConfirmCashPayment(ctx context.Context, refCode string, cashier auth.Claims) (database.Order, error)
	ApplyGatewayNotification(ctx context.Context, refCode, transactionStatus string, payload json.RawMessage) (database.Order, service.GatewayOutcome, error)
}

// PaymentHandler handles cash confirmation and the gateway webhook.
type PaymentHandler struct {
	svc PaymentServicer
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// RegisterPublicRoutes registers the gateway-facing webhook.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/payments/webhook", h.Webhook)
}

// RegisterStaffRoutes registers the cashier endpoint. The router guards it
// with RequireRole(CASHIER, ADMIN).
func (h *PaymentHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/orders/{ref}/confirm-cash", h.ConfirmCash)
}

// gatewayNotification is the subset of the gateway's webhook body we read.
// The full body is stored on the order's audit log untouched.
type gatewayNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
}

// --- Handlers ---

// ConfirmCash handles POST /orders/{ref}/confirm-cash.
func (h *PaymentHandler) ConfirmCash(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := h.svc.ConfirmCashPayment(r.Context(), chi.URLParam(r, "ref"), *claims)
	if err != nil {
		writeOrderError(w, err, "confirm cash payment")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// Webhook handles POST /payments/webhook. The gateway retries on non-2xx,
// so every recognized order answers 200 even when the notification changes
// nothing; only an unknown order reference is a 404.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var notif gatewayNotification
	if err := json.Unmarshal(raw, &notif); err != nil || notif.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id is required"})
		return
	}

	order, outcome, err := h.svc.ApplyGatewayNotification(r.Context(), notif.OrderID, notif.TransactionStatus, raw)
	if err != nil {
		writeOrderError(w, err, "apply gateway notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome": outcome,
		"order":   toOrderResponse(order, nil),
	})
}
