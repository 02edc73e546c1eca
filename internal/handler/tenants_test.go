package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/enum"
	"github.com/kantin-app/api/internal/handler"
	"github.com/kantin-app/api/internal/middleware"
)

// --- Mock TenantStore ---

type mockTenantStore struct {
	createTenantFn func(ctx context.Context, arg database.CreateTenantParams) (database.Tenant, error)
	getTenantFn    func(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	listTenantsFn  func(ctx context.Context, activeOnly bool) ([]database.Tenant, error)
	updateTenantFn func(ctx context.Context, arg database.UpdateTenantParams) (database.Tenant, error)
}

func (m *mockTenantStore) CreateTenant(ctx context.Context, arg database.CreateTenantParams) (database.Tenant, error) {
	if m.createTenantFn != nil {
		return m.createTenantFn(ctx, arg)
	}
	return database.Tenant{}, pgx.ErrNoRows
}

func (m *mockTenantStore) GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error) {
	if m.getTenantFn != nil {
		return m.getTenantFn(ctx, id)
	}
	return database.Tenant{}, pgx.ErrNoRows
}

func (m *mockTenantStore) ListTenants(ctx context.Context, activeOnly bool) ([]database.Tenant, error) {
	if m.listTenantsFn != nil {
		return m.listTenantsFn(ctx, activeOnly)
	}
	return []database.Tenant{}, nil
}

func (m *mockTenantStore) UpdateTenant(ctx context.Context, arg database.UpdateTenantParams) (database.Tenant, error) {
	if m.updateTenantFn != nil {
		return m.updateTenantFn(ctx, arg)
	}
	return database.Tenant{}, pgx.ErrNoRows
}

func setupTenantRouter(store *mockTenantStore) *chi.Mux {
	h := handler.NewTenantHandler(store)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		h.RegisterAdminRoutes(r)
	})
	return r
}

func testTenant(name string, active bool) database.Tenant {
	return database.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Active:    active,
		CreatedAt: time.Now(),
	}
}

// --- Tests ---

func TestTenantListActive_Public(t *testing.T) {
	store := &mockTenantStore{
		listTenantsFn: func(ctx context.Context, activeOnly bool) ([]database.Tenant, error) {
			if !activeOnly {
				t.Error("public list must request active tenants only")
			}
			return []database.Tenant{testTenant("Warung Bu Siti", true)}, nil
		},
	}

	router := setupTenantRouter(store)
	rr := doRequest(t, router, "GET", "/tenants", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var tenants []map[string]interface{}
	mustDecodeList(t, rr, &tenants)
	if len(tenants) != 1 || tenants[0]["name"] != "Warung Bu Siti" {
		t.Fatalf("tenants: got %v", tenants)
	}
}

func TestTenantGet_InactiveHiddenFromPublic(t *testing.T) {
	tenant := testTenant("Closed Stall", false)
	store := &mockTenantStore{
		getTenantFn: func(ctx context.Context, id uuid.UUID) (database.Tenant, error) {
			return tenant, nil
		},
	}

	router := setupTenantRouter(store)
	rr := doRequest(t, router, "GET", "/tenants/"+tenant.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestTenantCreate_AdminOnly(t *testing.T) {
	store := &mockTenantStore{
		createTenantFn: func(ctx context.Context, arg database.CreateTenantParams) (database.Tenant, error) {
			if !arg.Active {
				t.Error("active must default to true")
			}
			return database.Tenant{
				ID: uuid.New(), Name: arg.Name, Description: arg.Description,
				Active: arg.Active, CreatedAt: time.Now(),
			}, nil
		},
	}

	router := setupTenantRouter(store)

	body := map[string]interface{}{"name": "Warung Baru", "description": "Menu harian"}

	// Seller is rejected by the role guard.
	rr := doAuthRequest(t, router, "POST", "/admin/tenants", body, sellerClaims(uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("seller status: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	// Admin goes through.
	rr = doAuthRequest(t, router, "POST", "/admin/tenants", body, adminClaims())
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["name"] != "Warung Baru" {
		t.Errorf("name: got %v", resp["name"])
	}
	if resp["active"] != true {
		t.Errorf("active: got %v, want true", resp["active"])
	}
}

func TestTenantCreate_RequiresName(t *testing.T) {
	router := setupTenantRouter(&mockTenantStore{})
	rr := doAuthRequest(t, router, "POST", "/admin/tenants", map[string]interface{}{
		"description": "nameless",
	}, adminClaims())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestTenantUpdate_Deactivate(t *testing.T) {
	tenant := testTenant("Warung Bu Siti", true)
	store := &mockTenantStore{
		updateTenantFn: func(ctx context.Context, arg database.UpdateTenantParams) (database.Tenant, error) {
			if arg.Active {
				t.Error("active: got true, want false")
			}
			tenant.Active = arg.Active
			tenant.Description = pgtype.Text{String: "Tutup sementara", Valid: true}
			return tenant, nil
		},
	}

	router := setupTenantRouter(store)
	active := false
	rr := doAuthRequest(t, router, "PUT", "/admin/tenants/"+tenant.ID.String(), map[string]interface{}{
		"name":        tenant.Name,
		"description": "Tutup sementara",
		"active":      active,
	}, adminClaims())

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["active"] != false {
		t.Errorf("active: got %v, want false", resp["active"])
	}
}

func TestTenantAdminList_IncludesInactive(t *testing.T) {
	store := &mockTenantStore{
		listTenantsFn: func(ctx context.Context, activeOnly bool) ([]database.Tenant, error) {
			if activeOnly {
				t.Error("admin list must include inactive tenants")
			}
			return []database.Tenant{testTenant("A", true), testTenant("B", false)}, nil
		},
	}

	router := setupTenantRouter(store)
	rr := doAuthRequest(t, router, "GET", "/admin/tenants", nil, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var tenants []map[string]interface{}
	mustDecodeList(t, rr, &tenants)
	if len(tenants) != 2 {
		t.Fatalf("tenants: got %d, want 2", len(tenants))
	}
}
