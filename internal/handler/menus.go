package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kantin-app/api/internal/database"
	"github.com/kantin-app/api/internal/middleware"
	"github.com/shopspring/decimal"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	ListMenuItemsByTenant(ctx context.Context, tenantID uuid.UUID) ([]database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	ListPopularMenuItems(ctx context.Context, limit int32) ([]database.MenuItem, error)

	CreateVariantGroup(ctx context.Context, arg database.CreateVariantGroupParams) (database.VariantGroup, error)
	GetVariantGroup(ctx context.Context, id uuid.UUID) (database.VariantGroup, error)
	CreateVariantOption(ctx context.Context, arg database.CreateVariantOptionParams) (database.VariantOption, error)
	ListVariantOptionsByGroup(ctx context.Context, groupID uuid.UUID) ([]database.VariantOption, error)
	LinkMenuItemVariantGroup(ctx context.Context, arg database.LinkMenuItemVariantGroupParams) error
	ListVariantGroupIDsByMenuItem(ctx context.Context, menuItemID uuid.UUID) ([]uuid.UUID, error)
}

// MenuHandler handles menu item and variant endpoints.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterPublicRoutes registers the customer-facing menu endpoints.
func (h *MenuHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/tenants/{tid}/menu", h.TenantMenu)
	r.Get("/menu/popular", h.Popular)
}

// RegisterStaffRoutes registers menu management. Tenant membership is
// checked per handler; admins pass everywhere.
func (h *MenuHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/tenants/{tid}/menu-items", h.CreateItem)
	r.Put("/menu-items/{id}", h.UpdateItem)
	r.Post("/tenants/{tid}/variant-groups", h.CreateGroup)
	r.Post("/variant-groups/{gid}/options", h.CreateOption)
	r.Post("/menu-items/{id}/variant-groups/{gid}", h.LinkGroup)
}

// --- Request / Response types ---

type menuItemRequest struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Available   *bool  `json:"available"`
	Stock       int32  `json:"stock"`
	Description string `json:"description"`
}

type menuItemResponse struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Price       string    `json:"price"`
	Available   bool      `json:"available"`
	Stock       int32     `json:"stock"`
	Description *string   `json:"description"`
}

type menuItemWithVariantsResponse struct {
	menuItemResponse
	VariantGroups []variantGroupResponse `json:"variant_groups"`
}

type variantGroupResponse struct {
	ID      uuid.UUID               `json:"id"`
	Name    string                  `json:"name"`
	Options []variantOptionResponse `json:"options"`
}

type variantOptionResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceDelta string    `json:"price_delta"`
}

type variantGroupRequest struct {
	Name string `json:"name"`
}

type variantOptionRequest struct {
	Name       string `json:"name"`
	PriceDelta string `json:"price_delta"`
}

// --- Handlers ---

// TenantMenu handles GET /tenants/{tid}/menu. Only available items of an
// active tenant are listed, each with its variant groups and options.
func (h *MenuHandler) TenantMenu(w http.ResponseWriter, r *http.Request) {
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
		log.Printf("ERROR: get tenant for menu: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !tenant.Active {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	}

	items, err := h.store.ListMenuItemsByTenant(r.Context(), tenantID)
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]menuItemWithVariantsResponse, 0, len(items))
	for _, item := range items {
		if !item.Available {
			continue
		}
		groups, err := h.variantGroupsForItem(r.Context(), item.ID)
		if err != nil {
			log.Printf("ERROR: load variants for menu item: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp = append(resp, menuItemWithVariantsResponse{
			menuItemResponse: toMenuItemResponse(item),
			VariantGroups:    groups,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Popular handles GET /menu/popular.
func (h *MenuHandler) Popular(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListPopularMenuItems(r.Context(), 10)
	if err != nil {
		log.Printf("ERROR: list popular menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, item := range items {
		resp[i] = toMenuItemResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateItem handles POST /tenants/{tid}/menu-items.
func (h *MenuHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.authorizeTenant(w, r, chi.URLParam(r, "tid"))
	if !ok {
		return
	}

	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	price, ok := parsePrice(w, req)
	if !ok {
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	item, err := h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
		TenantID:    tenantID,
		Name:        req.Name,
		Price:       price,
		Available:   available,
		Stock:       req.Stock,
		Description: textOrNull(req.Description),
	})
	if err != nil {
		log.Printf("ERROR: create menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// UpdateItem handles PUT /menu-items/{id}. This is also the stock
// replenishment endpoint: staff set the new absolute stock level.
func (h *MenuHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if _, ok := h.authorizeTenant(w, r, item.TenantID.String()); !ok {
		return
	}

	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	price, ok := parsePrice(w, req)
	if !ok {
		return
	}
	if req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock must be >= 0"})
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	updated, err := h.store.UpdateMenuItem(r.Context(), database.UpdateMenuItemParams{
		ID:          itemID,
		Name:        req.Name,
		Price:       price,
		Available:   available,
		Stock:       req.Stock,
		Description: textOrNull(req.Description),
	})
	if err != nil {
		log.Printf("ERROR: update menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(updated))
}

// CreateGroup handles POST /tenants/{tid}/variant-groups.
func (h *MenuHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.authorizeTenant(w, r, chi.URLParam(r, "tid"))
	if !ok {
		return
	}

	var req variantGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	group, err := h.store.CreateVariantGroup(r.Context(), database.CreateVariantGroupParams{
		TenantID: tenantID,
		Name:     req.Name,
	})
	if err != nil {
		log.Printf("ERROR: create variant group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, variantGroupResponse{ID: group.ID, Name: group.Name, Options: []variantOptionResponse{}})
}

// CreateOption handles POST /variant-groups/{gid}/options.
func (h *MenuHandler) CreateOption(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid variant group ID"})
		return
	}

	group, err := h.store.GetVariantGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "variant group not found"})
			return
		}
		log.Printf("ERROR: get variant group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if _, ok := h.authorizeTenant(w, r, group.TenantID.String()); !ok {
		return
	}

	var req variantOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	delta := decimal.Zero
	if req.PriceDelta != "" {
		delta, err = decimal.NewFromString(req.PriceDelta)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price_delta"})
			return
		}
	}

	var deltaNum pgtype.Numeric
	_ = deltaNum.Scan(delta.StringFixed(2))
	option, err := h.store.CreateVariantOption(r.Context(), database.CreateVariantOptionParams{
		GroupID:    groupID,
		Name:       req.Name,
		PriceDelta: deltaNum,
	})
	if err != nil {
		log.Printf("ERROR: create variant option: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, variantOptionResponse{
		ID:         option.ID,
		Name:       option.Name,
		PriceDelta: numericToString(option.PriceDelta),
	})
}

// LinkGroup handles POST /menu-items/{id}/variant-groups/{gid}.
func (h *MenuHandler) LinkGroup(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid variant group ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item for link: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	group, err := h.store.GetVariantGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "variant group not found"})
			return
		}
		log.Printf("ERROR: get variant group for link: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	// A group can only be attached to items of its own tenant.
	if item.TenantID != group.TenantID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "variant group belongs to a different tenant"})
		return
	}
	if _, ok := h.authorizeTenant(w, r, item.TenantID.String()); !ok {
		return
	}

	if err := h.store.LinkMenuItemVariantGroup(r.Context(), database.LinkMenuItemVariantGroupParams{
		MenuItemID: itemID,
		GroupID:    groupID,
	}); err != nil {
		log.Printf("ERROR: link variant group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// authorizeTenant parses the tenant ID and checks the caller staffs it.
func (h *MenuHandler) authorizeTenant(w http.ResponseWriter, r *http.Request, rawID string) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(rawID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return uuid.Nil, false
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, false
	}
	if !claims.StaffOf(tenantID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this tenant"})
		return uuid.Nil, false
	}
	return tenantID, true
}

func parsePrice(w http.ResponseWriter, req menuItemRequest) (pgtype.Numeric, bool) {
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return pgtype.Numeric{}, false
	}
	if req.Price == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
		return pgtype.Numeric{}, false
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be a non-negative number"})
		return pgtype.Numeric{}, false
	}
	var n pgtype.Numeric
	_ = n.Scan(price.StringFixed(2))
	return n, true
}

func (h *MenuHandler) variantGroupsForItem(ctx context.Context, itemID uuid.UUID) ([]variantGroupResponse, error) {
	groupIDs, err := h.store.ListVariantGroupIDsByMenuItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	groups := make([]variantGroupResponse, 0, len(groupIDs))
	for _, gid := range groupIDs {
		group, err := h.store.GetVariantGroup(ctx, gid)
		if err != nil {
			return nil, err
		}
		options, err := h.store.ListVariantOptionsByGroup(ctx, gid)
		if err != nil {
			return nil, err
		}
		optResp := make([]variantOptionResponse, len(options))
		for i, o := range options {
			optResp[i] = variantOptionResponse{
				ID:         o.ID,
				Name:       o.Name,
				PriceDelta: numericToString(o.PriceDelta),
			}
		}
		groups = append(groups, variantGroupResponse{ID: group.ID, Name: group.Name, Options: optResp})
	}
	return groups, nil
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	resp := menuItemResponse{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		Price:     numericToString(m.Price),
		Available: m.Available,
		Stock:     m.Stock,
	}
	if m.Description.Valid {
		resp.Description = &m.Description.String
	}
	return resp
}
