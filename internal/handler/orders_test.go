package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/auth"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/handler"
	"github.com/kantin-app/api/internal/middleware"
	"github.com/kantin-app/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn       func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	getFn          func(ctx context.Context, refCode string) (*service.OrderDetail, error)
	cancelFn       func(ctx context.Context, refCode string) (database.Order, error)
	updateStatusFn func(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, service.ErrOrderNotFound
}

func (m *mockOrderService) GetOrder(ctx context.Context, refCode string) (*service.OrderDetail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, refCode)
	}
	return nil, service.ErrOrderNotFound
}

func (m *mockOrderService) CancelOrder(ctx context.Context, refCode string) (database.Order, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, refCode)
	}
	return database.Order{}, service.ErrOrderNotFound
}

func (m *mockOrderService) UpdateStatus(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, refCode, status, actor)
	}
	return database.Order{}, service.ErrOrderNotFound
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	listOrdersFn func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

// --- Test helpers ---

const testJWTSecret = "test-secret-for-handlers"

func setupOrderRouter(svc *mockOrderService, store *mockOrderStore) *chi.Mux {
	h := handler.NewOrderHandler(svc, store)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterStaffRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	// Generate a real JWT token from claims
	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Role, claims.TenantIDs)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Helpers to build test data ---

func testNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatalf("scan numeric %q: %v", s, err)
	}
	return n
}

func sellerClaims(tenantIDs ...uuid.UUID) *auth.Claims {
	return &auth.Claims{
		UserID:    uuid.New(),
		Role:      "SELLER",
		TenantIDs: tenantIDs,
	}
}

func adminClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: "ADMIN"}
}

func testOrder(t *testing.T, tenantID uuid.UUID, status string) database.Order {
	return database.Order{
		ID:            1,
		UUID:          uuid.New(),
		RefCode:       "KNT-20250601120000-A1B2",
		TenantID:      tenantID,
		Status:        status,
		PaymentMethod: "CASH",
		Total:         testNumeric(t, "54000.00"),
		CreatedAt:     time.Now(),
		ExpiredAt:     pgtype.Timestamptz{Time: time.Now().Add(10 * time.Minute), Valid: true},
	}
}

// --- Tests ---

func TestOrderCreate_HappyPath(t *testing.T) {
	tenantID := uuid.New()
	itemID := uuid.New()

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.TenantID != tenantID {
				t.Errorf("tenant_id: got %v, want %v", req.TenantID, tenantID)
			}
			if req.PaymentMethod != "CASH" {
				t.Errorf("payment_method: got %v, want CASH", req.PaymentMethod)
			}
			if req.TableCode != "T-07" {
				t.Errorf("table_code: got %v, want T-07", req.TableCode)
			}
			if len(req.Items) != 1 || req.Items[0].Qty != 2 {
				t.Errorf("items: got %+v", req.Items)
			}
			return &service.CreateOrderResult{
				Order: testOrder(t, tenantID, "AWAITING_PAYMENT"),
			}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/orders", map[string]interface{}{
		"table_code":     "T-07",
		"payment_method": "CASH",
		"items": []map[string]interface{}{
			{"menu_item_id": itemID.String(), "qty": 2},
		},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["ref_code"] != "KNT-20250601120000-A1B2" {
		t.Errorf("ref_code: got %v", resp["ref_code"])
	}
	if resp["status"] != "AWAITING_PAYMENT" {
		t.Errorf("status: got %v, want AWAITING_PAYMENT", resp["status"])
	}
	if resp["total"] != "54000.00" {
		t.Errorf("total: got %v, want 54000.00", resp["total"])
	}
	if _, present := resp["payment"]; present {
		t.Errorf("cash order carries payment instructions: %v", resp["payment"])
	}
}

func TestOrderCreate_TransferCarriesPaymentInstructions(t *testing.T) {
	tenantID := uuid.New()

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			order := testOrder(t, tenantID, "AWAITING_PAYMENT")
			order.PaymentMethod = "TRANSFER"
			return &service.CreateOrderResult{
				Order: order,
				PaymentInfo: map[string]string{
					"method":    "VA",
					"va_number": "VA000A1B2",
					"bank":      "EXAMPLEBANK",
				},
			}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/orders", map[string]interface{}{
		"payment_method": "TRANSFER",
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.New().String(), "qty": 1},
		},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	payment, ok := resp["payment"].(map[string]interface{})
	if !ok {
		t.Fatalf("payment missing from transfer order response: %v", resp)
	}
	if payment["va_number"] != "VA000A1B2" {
		t.Errorf("va_number: got %v", payment["va_number"])
	}
}

func TestOrderCreate_RequestValidation(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			t.Fatal("service must not be called for invalid requests")
			return nil, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing payment method", map[string]interface{}{
			"items": []map[string]interface{}{{"menu_item_id": uuid.New().String(), "qty": 1}},
		}},
		{"no items", map[string]interface{}{
			"payment_method": "CASH",
			"items":          []map[string]interface{}{},
		}},
		{"item without menu_item_id", map[string]interface{}{
			"payment_method": "CASH",
			"items":          []map[string]interface{}{{"qty": 1}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/orders", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestOrderCreate_ServiceErrorMapping(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"tenant not found", service.ErrTenantNotFound, http.StatusNotFound},
		{"tenant inactive", service.ErrTenantInactive, http.StatusBadRequest},
		{"item unavailable", service.ErrItemUnavailable, http.StatusConflict},
		{"insufficient stock", service.ErrInsufficientStock, http.StatusConflict},
		{"variant mismatch", service.ErrVariantMismatch, http.StatusBadRequest},
		{"invalid quantity", service.ErrInvalidQuantity, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
					return nil, tt.err
				},
			}
			router := setupOrderRouter(svc, &mockOrderStore{})
			rr := doRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/orders", map[string]interface{}{
				"payment_method": "CASH",
				"items": []map[string]interface{}{
					{"menu_item_id": uuid.New().String(), "qty": 1},
				},
			})
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestOrderGet(t *testing.T) {
	tenantID := uuid.New()
	order := testOrder(t, tenantID, "PAID")

	svc := &mockOrderService{
		getFn: func(ctx context.Context, refCode string) (*service.OrderDetail, error) {
			if refCode != order.RefCode {
				t.Errorf("ref: got %v, want %v", refCode, order.RefCode)
			}
			return &service.OrderDetail{
				Order: order,
				Events: []database.OrderEvent{
					{ID: 1, OrderID: order.ID, EventType: "PAYMENT", Payload: json.RawMessage(`{"method":"CASH"}`), CreatedAt: time.Now()},
				},
			}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doRequest(t, router, "GET", "/orders/"+order.RefCode, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != "PAID" {
		t.Errorf("status: got %v, want PAID", resp["status"])
	}
	events, ok := resp["events"].([]interface{})
	if !ok || len(events) != 1 {
		t.Fatalf("events: got %v, want 1 entry", resp["events"])
	}
}

func TestOrderGet_NotFound(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doRequest(t, router, "GET", "/orders/KNT-NOPE", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestOrderCancel(t *testing.T) {
	tenantID := uuid.New()
	order := testOrder(t, tenantID, "CANCELLED")

	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, refCode string) (database.Order, error) {
			return order, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doRequest(t, router, "DELETE", "/orders/"+order.RefCode, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "CANCELLED" {
		t.Errorf("status: got %v, want CANCELLED", resp["status"])
	}
}

func TestOrderCancel_Conflict(t *testing.T) {
	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, refCode string) (database.Order, error) {
			return database.Order{}, service.ErrNotCancellable
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doRequest(t, router, "DELETE", "/orders/KNT-X", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestOrderUpdateStatus(t *testing.T) {
	tenantID := uuid.New()
	claims := sellerClaims(tenantID)
	order := testOrder(t, tenantID, "PROCESSING")

	svc := &mockOrderService{
		updateStatusFn: func(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error) {
			if status != "PROCESSING" {
				t.Errorf("status: got %v, want PROCESSING", status)
			}
			if actor.UserID != claims.UserID {
				t.Errorf("actor: got %v, want %v", actor.UserID, claims.UserID)
			}
			return order, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.RefCode+"/status",
		map[string]interface{}{"status": "PROCESSING"}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "PROCESSING" {
		t.Errorf("status: got %v, want PROCESSING", resp["status"])
	}
}

func TestOrderUpdateStatus_Unauthenticated(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doRequest(t, router, "PATCH", "/orders/KNT-X/status", map[string]interface{}{"status": "PROCESSING"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestOrderUpdateStatus_Errors(t *testing.T) {
	tenantID := uuid.New()
	claims := sellerClaims(tenantID)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"foreign tenant", service.ErrForbidden, http.StatusForbidden},
		{"skipped step", service.ErrTransitionNotAllowed, http.StatusConflict},
		{"unknown order", service.ErrOrderNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				updateStatusFn: func(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error) {
					return database.Order{}, tt.err
				},
			}
			router := setupOrderRouter(svc, &mockOrderStore{})
			rr := doAuthRequest(t, router, "PATCH", "/orders/KNT-X/status",
				map[string]interface{}{"status": "READY"}, claims)
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestOrderUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	claims := sellerClaims(uuid.New())
	svc := &mockOrderService{
		updateStatusFn: func(ctx context.Context, refCode, status string, actor auth.Claims) (database.Order, error) {
			t.Fatal("service must not be called for an unknown status")
			return database.Order{}, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "PATCH", "/orders/KNT-X/status",
		map[string]interface{}{"status": "SHIPPED"}, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOrderList_SellerScopedToOwnTenants(t *testing.T) {
	tenantID := uuid.New()
	claims := sellerClaims(tenantID)

	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if !arg.FilterTenants {
				t.Error("seller list must filter by tenant")
			}
			if len(arg.TenantIDs) != 1 || arg.TenantIDs[0] != tenantID {
				t.Errorf("tenant filter: got %v, want [%v]", arg.TenantIDs, tenantID)
			}
			return []database.Order{testOrder(t, tenantID, "PAID")}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET", "/orders?status=PAID", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	orders, ok := resp["orders"].([]interface{})
	if !ok || len(orders) != 1 {
		t.Fatalf("orders: got %v, want 1 entry", resp["orders"])
	}
}

func TestOrderList_AdminSeesAllTenants(t *testing.T) {
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if arg.FilterTenants {
				t.Error("admin list must not filter by tenant")
			}
			if arg.Limit != 100 {
				t.Errorf("limit: got %d, want capped at 100", arg.Limit)
			}
			return []database.Order{}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET", "/orders?limit=500", nil, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}
