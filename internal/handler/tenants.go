package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
)

// TenantStore defines the database methods needed by tenant handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TenantStore interface {
	CreateTenant(ctx context.Context, arg database.CreateTenantParams) (database.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	ListTenants(ctx context.Context, activeOnly bool) ([]database.Tenant, error)
	UpdateTenant(ctx context.Context, arg database.UpdateTenantParams) (database.Tenant, error)
}

// TenantHandler handles tenant endpoints.
type TenantHandler struct {
	store TenantStore
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(store TenantStore) *TenantHandler {
	return &TenantHandler{store: store}
}

// RegisterPublicRoutes registers the customer-facing tenant directory.
// Customers only ever see active stalls.
func (h *TenantHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/tenants", h.ListActive)
	r.Get("/tenants/{tid}", h.Get)
}

// RegisterAdminRoutes registers tenant management. The router guards these
// with RequireRole(ADMIN).
func (h *TenantHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/tenants", h.ListAll)
	r.Post("/tenants", h.Create)
	r.Put("/tenants/{tid}", h.Update)
}

// --- Request / Response types ---

type tenantRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type tenantResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// --- Handlers ---

// ListActive handles GET /tenants (public).
func (h *TenantHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// ListAll handles GET /admin/tenants.
func (h *TenantHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *TenantHandler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	tenants, err := h.store.ListTenants(r.Context(), activeOnly)
	if err != nil {
		log.Printf("ERROR: list tenants: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		resp[i] = toTenantResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /tenants/{tid}.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		}
		log.Printf("ERROR: get tenant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	// Inactive stalls are invisible to customers.
	if !tenant.Active {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// Create handles POST /admin/tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	tenant, err := h.store.CreateTenant(r.Context(), database.CreateTenantParams{
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Active:      active,
	})
	if err != nil {
		log.Printf("ERROR: create tenant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

// Update handles PUT /admin/tenants/{tid}.
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return
	}

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	tenant, err := h.store.UpdateTenant(r.Context(), database.UpdateTenantParams{
		ID:          tenantID,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Active:      active,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		}
		log.Printf("ERROR: update tenant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// --- Helpers ---

func toTenantResponse(t database.Tenant) tenantResponse {
	resp := tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Active:    t.Active,
		CreatedAt: t.CreatedAt,
	}
	if t.Description.Valid {
		resp.Description = &t.Description.String
	}
	return resp
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
