package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/auth"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
	"github.com/kantin-app/api/internal/middleware"
	"github.com/kantin-app/api/internal/service"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, refCode string) (*service.OrderDetail, error)
	CancelOrder(ctx context.Context, refCode string) (database.Order, error)
	UpdateStatus(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error)
}

// OrderStore defines the database methods needed by the order list endpoint.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterPublicRoutes registers the customer-facing endpoints. Customers
// order by scanning a QR at the table; they carry no credentials.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/tenants/{tid}/orders", h.Create)
	r.Get("/orders/{ref}", h.Get)
	r.Delete("/orders/{ref}", h.Cancel)
}

// RegisterStaffRoutes registers the authenticated endpoints.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Patch("/orders/{ref}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableCode     string                   `json:"table_code"`
	Phone         string                   `json:"phone"`
	PaymentMethod string                   `json:"payment_method"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID       string   `json:"menu_item_id"`
	Qty              int32    `json:"qty"`
	Note             string   `json:"note"`
	VariantOptionIDs []string `json:"variant_option_ids"`
}

type orderResponse struct {
	RefCode       string              `json:"ref_code"`
	UUID          uuid.UUID           `json:"uuid"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	Total         string              `json:"total"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiredAt     *time.Time          `json:"expired_at"`
	PaidAt        *time.Time          `json:"paid_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID         uuid.UUID              `json:"id"`
	MenuItemID uuid.UUID              `json:"menu_item_id"`
	Qty        int32                  `json:"qty"`
	Price      string                 `json:"price"`
	Note       *string                `json:"note"`
	Variants   []orderVariantResponse `json:"variants,omitempty"`
}

type orderVariantResponse struct {
	VariantOptionID uuid.UUID `json:"variant_option_id"`
	Name            string    `json:"name"`
	PriceDelta      string    `json:"price_delta"`
}

type orderEventResponse struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// createOrderResponse extends orderResponse with the gateway payment
// instructions for TRANSFER orders.
type createOrderResponse struct {
	orderResponse
	Payment map[string]string `json:"payment,omitempty"`
}

// orderDetailResponse extends orderResponse with the audit trail.
type orderDetailResponse struct {
	orderResponse
	Events []orderEventResponse `json:"events"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create handles POST /tenants/{tid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_method is required"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.MenuItemID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "menu_item_id is required"),
			})
			return
		}
	}

	svcItems := make([]service.CreateOrderLineRequest, len(req.Items))
	for i, item := range req.Items {
		svcItems[i] = service.CreateOrderLineRequest{
			MenuItemID:       item.MenuItemID,
			Qty:              item.Qty,
			Note:             item.Note,
			VariantOptionIDs: item.VariantOptionIDs,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TenantID:      tenantID,
		TableCode:     req.TableCode,
		Phone:         req.Phone,
		PaymentMethod: req.PaymentMethod,
		Items:         svcItems,
	})
	if err != nil {
		writeOrderError(w, err, "create order")
		return
	}

	resp := createOrderResponse{
		orderResponse: toOrderResponse(result.Order, result.Items),
		Payment:       result.PaymentInfo,
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /orders/{ref}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeOrderError(w, err, "get order")
		return
	}

	events := make([]orderEventResponse, len(detail.Events))
	for i, e := range detail.Events {
		events[i] = orderEventResponse{
			EventType: e.EventType,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: toOrderResponse(detail.Order, detail.Items),
		Events:        events,
	})
}

// Cancel handles DELETE /orders/{ref}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeOrderError(w, err, "cancel order")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// UpdateStatus handles PATCH /orders/{ref}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !isValidOrderStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "ref"), req.Status, *claims)
	if err != nil {
		writeOrderError(w, err, "update order status")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// List handles GET /orders. Admins and cashiers see every tenant; other
// staff only the tenants they belong to.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Status:        r.URL.Query().Get("status"),
		PaymentMethod: r.URL.Query().Get("payment_method"),
		Limit:         int32(limit),
		Offset:        int32(offset),
	}
	if !claims.IsAdmin() && !claims.IsCashier() {
		params.FilterTenants = true
		params.TenantIDs = claims.TenantIDs
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// --- Helpers ---

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// writeOrderError maps service errors to HTTP responses. Unknown errors
// are logged and become 500s.
func writeOrderError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrItemUnavailable),
		errors.Is(err, service.ErrOrderExpired),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrTransitionNotAllowed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrTenantInactive) ||
		errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrInvalidVariantID) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrVariantMismatch) ||
		errors.Is(err, service.ErrNotCashOrder)
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusAwaitingPayment,
		enum.OrderStatusPaid,
		enum.OrderStatusProcessing,
		enum.OrderStatusReady,
		enum.OrderStatusCompleted,
		enum.OrderStatusCancelled,
		enum.OrderStatusExpired:
		return true
	}
	return false
}

func toOrderResponse(o database.Order, items []service.OrderLineResult) orderResponse {
	resp := orderResponse{
		RefCode:       o.RefCode,
		UUID:          o.UUID,
		TenantID:      o.TenantID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		Total:         numericToString(o.Total),
		CreatedAt:     o.CreatedAt,
	}
	if o.ExpiredAt.Valid {
		resp.ExpiredAt = &o.ExpiredAt.Time
	}
	if o.PaidAt.Valid {
		resp.PaidAt = &o.PaidAt.Time
	}

	resp.Items = make([]orderItemResponse, len(items))
	for i, line := range items {
		resp.Items[i] = toOrderItemResponse(line)
	}
	return resp
}

func toOrderItemResponse(line service.OrderLineResult) orderItemResponse {
	item := line.Item
	resp := orderItemResponse{
		ID:         item.ID,
		MenuItemID: item.MenuItemID,
		Qty:        item.Qty,
		Price:      numericToString(item.Price),
	}
	if item.Note.Valid {
		resp.Note = &item.Note.String
	}
	resp.Variants = make([]orderVariantResponse, len(line.Variants))
	for j, v := range line.Variants {
		resp.Variants[j] = orderVariantResponse{
			VariantOptionID: v.VariantOptionID,
			Name:            v.Name,
			PriceDelta:      numericToString(v.PriceDelta),
		}
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
